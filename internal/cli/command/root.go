// Package command provides the minerva CLI commands.
//
// Every command restores the persisted session first, performs one
// transition and exits; watch keeps the expiry monitor running.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "minerva",
		Usage:   "KYC and wallet session client",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RegisterCommand(),
			LoginCommand(),
			LinkCommand(),
			LogoutCommand(),
			RefreshCommand(),
			StatusCommand(),
			ConnectCommand(),
			CancelCommand(),
			WatchCommand(),
		},
		Before: func(c *cli.Context) error {
			rt, err := newRuntime(c.Context, ParseGlobalFlags(c))
			if err != nil {
				return err
			}
			c.App.Metadata[runtimeKey] = rt
			return nil
		},
		After: func(c *cli.Context) error {
			if rt := getRuntime(c); rt != nil {
				return rt.Close()
			}
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			EnvVars: []string{"MINERVA_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "wallet-key",
			Usage:   "File holding the demo wallet's private key (default: wallet.key beside the store dir)",
			EnvVars: []string{"MINERVA_WALLET_KEY"},
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Approve signature requests without prompting",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, json",
			Value:   "text",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigPath string
	WalletKey  string
	AutoSign   bool
	Output     string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		ConfigPath: c.String("config"),
		WalletKey:  c.String("wallet-key"),
		AutoSign:   c.Bool("yes"),
		Output:     c.String("output"),
	}
}

func getRuntime(c *cli.Context) *runtime {
	rt, _ := c.App.Metadata[runtimeKey].(*runtime)
	return rt
}
