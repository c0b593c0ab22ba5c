package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twillot/twillot/internal/api"
	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Database string
	BaseURL  string
	Token    string
	UserID   string
}

// NewSyncCommand creates the sync command: a one-shot pass that walks
// every category until it finishes, pauses on a rate limit, or errors.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a full sync pass",
		Long: `Walk every content category from its persisted cursor until it is
exhausted. Resumable: rerunning continues where the last pass stopped,
and a rate-limited category waits out its announced reset.

Example:
  twillot sync --db ./twillot.db --user 123 --token $TOKEN`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "https://api.twitter.com", "remote API root")
	cmd.Flags().StringVar(&opts.Token, "token", "", "API bearer token")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "authenticated user id (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	client := api.NewClient(opts.BaseURL, opts.Token, opts.UserID)
	driver := syncer.NewDriver(st, client, opts.UserID, notify.NewBus())

	driver.Run(cmd.Context())

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	statuses := driver.StatusAll()

	if opts.Format == "json" {
		if err := out.Success(statuses); err != nil {
			return err
		}
	} else {
		for _, cat := range syncer.Categories {
			st := statuses[cat]
			line := fmt.Sprintf("%-10s %s (%d items)", cat, st.State, st.Done)
			if st.State == syncer.StatePaused {
				line += fmt.Sprintf(", resumes %s", st.ResetAt.Format("15:04:05"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}

	for _, st := range statuses {
		if st.State == syncer.StateErrored {
			return NewExitError(ExitFailure, "one or more categories errored")
		}
	}
	return nil
}
