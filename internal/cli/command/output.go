package command

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"minerva/internal/session"
)

// statusView is what status-printing commands report.
type statusView struct {
	session.SessionInfo
	State       session.State `json:"state"`
	Wallet      string        `json:"wallet"`
	Connected   bool          `json:"walletReportsAddress"`
	KycApproved bool          `json:"kycApproved"`
	PromptLink  bool          `json:"promptLink"`
	LoggedOut   bool          `json:"explicitlyLoggedOut"`
	Cancelled   bool          `json:"userCancelledConnection"`
}

func (rt *runtime) status(c *cli.Context) statusView {
	_, connected := rt.wallet.Address(c.Context)
	flags := rt.service.Flags()
	return statusView{
		SessionInfo: rt.service.SessionInfo(),
		State:       rt.service.State(),
		Wallet:      rt.wallet.Account(),
		Connected:   connected,
		KycApproved: rt.service.CheckKycStatus(),
		PromptLink:  rt.service.ShouldPromptLink(c.Context),
		LoggedOut:   flags.ExplicitlyLoggedOut,
		Cancelled:   flags.UserCancelledConnection,
	}
}

func (rt *runtime) printStatus(c *cli.Context) error {
	view := rt.status(c)
	if rt.flags.Output == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t%s\n", view.State)
	fmt.Fprintf(w, "Access level:\t%s\n", view.AccessLevel)
	if view.Email != "" {
		fmt.Fprintf(w, "KYC account:\t%s\n", view.Email)
	}
	if view.SessionExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s (in %s)\n",
			view.SessionExpiresAt.Format(time.RFC3339),
			time.Until(*view.SessionExpiresAt).Truncate(time.Second))
	}
	fmt.Fprintf(w, "Wallet:\t%s (connected: %t)\n", view.Wallet, view.Connected)
	if view.WalletAddress != "" {
		fmt.Fprintf(w, "Linked wallet:\t%s (kyc approved: %t)\n", view.WalletAddress, view.KycApproved)
	}
	if view.PromptLink {
		fmt.Fprintln(w, "Hint:\trun `minerva link` to link the connected wallet")
	}
	return w.Flush()
}

// notef prints a one-line confirmation in text mode.
func (rt *runtime) notef(c *cli.Context, format string, args ...any) {
	if rt.flags.Output == "json" {
		return
	}
	fmt.Fprintf(c.App.Writer, format, args...)
}
