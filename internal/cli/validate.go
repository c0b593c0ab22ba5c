package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command: compile workflow
// definitions without running anything.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflows-dir>",
		Short: "Validate CUE workflow definitions",
		Long: `Compile every workflow definition in the directory and report the
first error with its source position. Exits 0 when all definitions are
valid.

Example:
  twillot validate ./workflows`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			workflows, err := LoadWorkflows(args[0])
			if err != nil {
				_ = out.Error("E001", err.Error(), nil)
				return WrapExitError(ExitFailure, "validation failed", err)
			}

			if rootOpts.Format == "json" {
				names := make([]string, len(workflows))
				for i, wf := range workflows {
					names[i] = wf.Name
				}
				return out.Success(map[string]any{"workflows": names})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d workflow(s) valid:\n", len(workflows))
			for _, wf := range workflows {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s, %d actions)\n", wf.Name, wf.When, len(wf.ThenList))
			}
			return nil
		},
	}
	return cmd
}
