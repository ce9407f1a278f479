package commands

import (
	"context"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List gateway conversation sessions",
		Long:  `View the chat sessions known to the Gateway.`,
	}

	cmd.AddCommand(newSessionsListCommand())

	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Example: `  clawsync sessions list --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runtimeOptions{sessionsLimit: limit}, func(ctx context.Context, rt *runtime) error {
				if err := rt.connect(ctx); err != nil {
					return err
				}

				s := rt.app.State()
				if len(s.SessionOptions) == 0 {
					cmd.Println("No sessions found.")
					return nil
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Session", "Current", "Model"})
				table.SetBorder(false)
				table.SetAutoWrapText(false)

				for _, key := range s.SessionOptions {
					current, model := "", ""
					if key == s.SessionKey {
						current = "*"
						model = s.ModelSelection
					}
					table.Append([]string{key, current, model})
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of sessions fetched (default: sessions.limit)")

	return cmd
}
