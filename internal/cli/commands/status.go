package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/config"
	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/pkg/utils"
)

// StatusReport is the saved client configuration with secrets masked.
type StatusReport struct {
	URL         string `json:"url"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	TLS         bool   `json:"tls"`
	Token       string `json:"token,omitempty"`
	HasPassword bool   `json:"hasPassword"`
	SetupCode   bool   `json:"setupCode"`
	DeviceID    string `json:"deviceId"`
	InstanceID  string `json:"instanceId"`
	ConfigPath  string `json:"configPath"`
	StateDir    string `json:"stateDir"`
	LogFile     string `json:"logFile"`
}

// NewStatusCommand creates the status subcommand.
func NewStatusCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved Gateway settings",
		Long:  `Display the saved Gateway endpoint and credentials (masked), the device identity and the local state paths.`,
		Example: `  clawsync status
  clawsync status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				rt.app.Start(ctx)
				gw := rt.app.State().Gateway

				report := StatusReport{
					URL:         gateway.BuildURL(gw.Host, gw.Port, gw.TLS),
					Host:        gw.Host,
					Port:        gw.Port,
					TLS:         gw.TLS,
					Token:       utils.MaskSecret(gw.Token),
					HasPassword: gw.Password != "",
					SetupCode:   gw.SetupCode != "",
					DeviceID:    rt.deviceID,
					InstanceID:  rt.cfg.Client.InstanceID,
					ConfigPath:  config.ConfigPath(),
					StateDir:    rt.paths.StateDir,
					LogFile:     rt.paths.LogFile,
				}
				return printStatus(cmd.OutOrStdout(), report, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printStatus(out io.Writer, r StatusReport, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fprintf(out, "%s\n", data)
		return nil
	}

	token := r.Token
	if token == "" {
		token = "(not set)"
	}
	password := "(not set)"
	if r.HasPassword {
		password = "(set)"
	}

	fprintf(out, "clawsync Status\n")
	fprintf(out, "===============\n\n")
	fprintf(out, "Gateway:    %s\n", r.URL)
	fprintf(out, "Token:      %s\n", token)
	fprintf(out, "Password:   %s\n", password)
	if r.SetupCode {
		fprintf(out, "Setup code: applied\n")
	}
	fprintf(out, "\n")
	fprintf(out, "Device:     %s\n", r.DeviceID)
	fprintf(out, "Instance:   %s\n", r.InstanceID)
	fprintf(out, "Config:     %s\n", r.ConfigPath)
	fprintf(out, "State dir:  %s\n", r.StateDir)
	fprintf(out, "Log file:   %s\n", r.LogFile)
	return nil
}
