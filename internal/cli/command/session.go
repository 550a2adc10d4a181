package command

import (
	"github.com/urfave/cli/v2"

	"minerva/internal/identity/kyc"
	"minerva/internal/session"
)

// demoConnector is the connector recorded when the CLI's own wallet is used.
var demoConnector = session.SelectedWallet{ID: "minerva-cli", Name: "Minerva demo wallet"}

// RegisterCommand creates a KYC identity.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create a KYC account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password", Required: true, EnvVars: []string{"MINERVA_PASSWORD"}},
			&cli.StringFlag{Name: "confirm-password", Usage: "Password confirmation"},
		},
		Action: sessionRegister,
	}
}

func sessionRegister(c *cli.Context) error {
	rt := getRuntime(c)
	id, err := rt.service.Register(c.Context, kyc.RegisterRequest{
		Username:        c.String("username"),
		Email:           c.String("email"),
		Password:        c.String("password"),
		ConfirmPassword: c.String("confirm-password"),
	})
	if err != nil {
		return err
	}
	rt.notef(c, "Registered %s <%s>\n", id.Username, id.Email)
	return rt.printStatus(c)
}

// LoginCommand signs in with email and password.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to a KYC account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password", Required: true, EnvVars: []string{"MINERVA_PASSWORD"}},
		},
		Action: sessionLogin,
	}
}

func sessionLogin(c *cli.Context) error {
	rt := getRuntime(c)
	id, err := rt.service.Login(c.Context, kyc.LoginRequest{
		Email:    c.String("email"),
		Password: c.String("password"),
	})
	if err != nil {
		return err
	}
	rt.notef(c, "Signed in as %s <%s>\n", id.Username, id.Email)
	return rt.printStatus(c)
}

// ConnectCommand connects the demo wallet without linking it.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:   "connect",
		Usage:  "Connect the demo wallet and clear prompt suppression",
		Action: sessionConnect,
	}
}

func sessionConnect(c *cli.Context) error {
	rt := getRuntime(c)
	if err := rt.service.BeginManualConnect(c.Context, demoConnector); err != nil {
		return err
	}
	if err := rt.wallet.Connect(c.Context); err != nil {
		return err
	}
	rt.notef(c, "Wallet %s connected\n", rt.wallet.Account())
	return rt.printStatus(c)
}

// LinkCommand signs the authority's challenge and pairs the wallet with the
// signed-in KYC identity.
func LinkCommand() *cli.Command {
	return &cli.Command{
		Name:   "link",
		Usage:  "Link the demo wallet to the signed-in KYC account",
		Action: sessionLink,
	}
}

func sessionLink(c *cli.Context) error {
	rt := getRuntime(c)
	if _, ok := rt.wallet.Address(c.Context); !ok {
		if err := rt.service.BeginManualConnect(c.Context, demoConnector); err != nil {
			return err
		}
		if err := rt.wallet.Connect(c.Context); err != nil {
			return err
		}
	}
	ws, err := rt.service.LinkWallet(c.Context)
	if err != nil {
		return err
	}
	rt.notef(c, "Linked %s to %s\n", ws.WalletAddress, ws.LinkedKycEmail)
	return rt.printStatus(c)
}

// CancelCommand dismisses the link prompt and disconnects the wallet.
func CancelCommand() *cli.Command {
	return &cli.Command{
		Name:   "cancel",
		Usage:  "Dismiss the wallet link prompt and disconnect the wallet",
		Action: sessionCancel,
	}
}

func sessionCancel(c *cli.Context) error {
	rt := getRuntime(c)
	if err := rt.service.CancelConnection(c.Context); err != nil {
		return err
	}
	return rt.printStatus(c)
}

// LogoutCommand ends the wallet session or the whole session.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "wallet (keep KYC) or full",
				Value:   string(session.LogoutFull),
			},
		},
		Action: sessionLogout,
	}
}

func sessionLogout(c *cli.Context) error {
	rt := getRuntime(c)
	if err := rt.service.Logout(c.Context, session.LogoutType(c.String("type"))); err != nil {
		return err
	}
	return rt.printStatus(c)
}

// RefreshCommand exchanges the refresh token for a new token set.
func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Refresh the KYC session",
		Action: sessionRefresh,
	}
}

func sessionRefresh(c *cli.Context) error {
	rt := getRuntime(c)
	if err := rt.service.Refresh(c.Context); err != nil {
		return err
	}
	return rt.printStatus(c)
}

// StatusCommand prints the restored session.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Show the current session",
		Action: func(c *cli.Context) error {
			return getRuntime(c).printStatus(c)
		},
	}
}
