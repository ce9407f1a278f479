package commands

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/state"
)

func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Gateway model catalog",
	}

	cmd.AddCommand(newModelsListCommand())

	return cmd
}

func newModelsListCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the models offered by the Gateway",
		Example: "  clawsync models list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				if err := rt.connect(ctx); err != nil {
					return err
				}

				s := rt.app.State()
				models := append([]state.ModelOption(nil), s.ModelOptions...)
				sort.Slice(models, func(i, j int) bool {
					if models[i].Provider != models[j].Provider {
						return models[i].Provider < models[j].Provider
					}
					return models[i].ID < models[j].ID
				})

				if jsonOutput {
					data, _ := json.MarshalIndent(map[string]interface{}{
						"models":   models,
						"selected": s.ModelSelection,
					}, "", "  ")
					fprintf(cmd.OutOrStdout(), "%s\n", data)
					return nil
				}

				if len(models) == 0 {
					cmd.Println("No models offered.")
					return nil
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Provider", "Model ID", "Selected"})
				table.SetBorder(false)
				table.SetAutoWrapText(false)

				for _, m := range models {
					selected := ""
					if m.Ref() == s.ModelSelection {
						selected = "*"
					}
					table.Append([]string{m.Provider, m.ID, selected})
				}
				table.Render()

				if s.ModelSelection != "" {
					fprintf(cmd.OutOrStdout(), "\nCurrently Active Model: %s\n", s.ModelSelection)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
