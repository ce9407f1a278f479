package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/app"
	"github.com/liteclaw/clawsync/internal/tui"
)

// gatewayFlags are the endpoint overrides shared by tui and login.
type gatewayFlags struct {
	host  string
	port  int
	tls   bool
	token string
}

func (f *gatewayFlags) register(cmd *cobra.Command, withToken bool) {
	cmd.Flags().StringVar(&f.host, "host", "", "Gateway host address")
	cmd.Flags().IntVar(&f.port, "port", 0, "Gateway port")
	cmd.Flags().BoolVar(&f.tls, "tls", false, "Connect with wss://")
	if withToken {
		cmd.Flags().StringVar(&f.token, "token", "", "Gateway authentication token")
	}
}

// patch returns the overrides the user actually passed.
func (f *gatewayFlags) patch(cmd *cobra.Command) (app.GatewayConfigPatch, bool) {
	var p app.GatewayConfigPatch
	changed := false
	if cmd.Flags().Changed("host") {
		p.Host = &f.host
		changed = true
	}
	if cmd.Flags().Changed("port") {
		p.Port = &f.port
		changed = true
	}
	if cmd.Flags().Changed("tls") {
		p.TLS = &f.tls
		changed = true
	}
	if cmd.Flags().Changed("token") {
		p.Token = &f.token
		changed = true
	}
	return p, changed
}

// NewTuiCommand creates the tui subcommand.
func NewTuiCommand() *cobra.Command {
	var (
		flags     gatewayFlags
		setupCode string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open a terminal UI connected to the Gateway",
		Long: `Open a terminal UI connected to the Gateway.

The saved gateway settings are used by default. --host, --port, --tls and
--token override them and are remembered for the next run.`,
		Example: `  clawsync tui                              # Connect using saved settings
  clawsync tui --host 192.168.1.100 --port 18789
  clawsync tui --setup-code <CODE>          # Apply a setup code and connect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runtimeOptions{logToFile: true}, func(ctx context.Context, rt *runtime) error {
				rt.app.Start(ctx)
				if p, ok := flags.patch(cmd); ok {
					rt.app.PatchConfig(p)
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if setupCode != "" {
						rt.app.ApplySetupCode(ctx, setupCode)
						return
					}
					rt.app.Connect(ctx)
				}()

				return tui.Run(ctx, rt.app)
			})
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&setupCode, "setup-code", "", "Setup code issued by the Gateway")

	return cmd
}
