package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liteclaw/clawsync/internal/app"
)

// NewLoginCommand creates the login subcommand.
func NewLoginCommand() *cobra.Command {
	var (
		flags       gatewayFlags
		usePassword bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save Gateway credentials",
		Long: `Save the Gateway token (or password) to the encrypted credential store.

The secret is prompted for without echo when stdin is a terminal, and read
from the first line of stdin otherwise.`,
		Example: `  clawsync login
  clawsync login --host gw.example.com --port 443 --tls
  echo "$TOKEN" | clawsync login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := "Gateway token: "
			if usePassword {
				prompt = "Gateway password: "
			}
			secret, err := readSecret(cmd, prompt)
			if err != nil {
				return fmt.Errorf("failed to read secret: %w", err)
			}
			if secret == "" {
				return errors.New("secret cannot be empty")
			}

			return withRuntime(cmd, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				rt.app.Start(ctx)

				patch, _ := flags.patch(cmd)
				empty := ""
				if usePassword {
					patch.Password = &secret
					patch.Token = &empty
				} else {
					patch.Token = &secret
					patch.Password = &empty
				}
				rt.app.PatchConfig(patch)

				gw := rt.app.State().Gateway
				fprintf(cmd.OutOrStdout(), "Credentials saved for %s:%d\n", gw.Host, gw.Port)
				return nil
			})
		},
	}

	flags.register(cmd, false)
	cmd.Flags().BoolVar(&usePassword, "password", false, "Prompt for a password instead of a token")

	return cmd
}

// NewLogoutCommand creates the logout subcommand.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Forget saved Gateway credentials",
		Example: "  clawsync logout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				rt.app.Start(ctx)

				empty := ""
				rt.app.PatchConfig(app.GatewayConfigPatch{Token: &empty, Password: &empty})

				cmd.Println("Credentials cleared.")
				return nil
			})
		},
	}
}

func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fprintf(cmd.OutOrStdout(), "%s", prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fprintf(cmd.OutOrStdout(), "\n")
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
