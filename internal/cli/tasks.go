package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twillot/twillot/internal/api"
	"github.com/twillot/twillot/internal/engine"
	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
)

// TasksOptions holds flags shared by the tasks subcommands.
type TasksOptions struct {
	*RootOptions
	Database string
	BaseURL  string
	Token    string
	UserID   string
}

// NewTasksCommand creates the tasks command group: inspect and drain
// the durable task queue.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and run queued tasks",
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.UserID, "user", "", "authenticated user id (required)")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("user")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List queued tasks in execution order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTasks(opts, cmd)
		},
	}

	run := &cobra.Command{
		Use:           "run",
		Short:         "Drain the queue once",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(opts, cmd)
		},
	}
	run.Flags().StringVar(&opts.BaseURL, "base-url", "https://api.twitter.com", "remote API root")
	run.Flags().StringVar(&opts.Token, "token", "", "API bearer token")

	cmd.AddCommand(list)
	cmd.AddCommand(run)
	return cmd
}

func listTasks(opts *TasksOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	queue := engine.NewTaskQueue(st, opts.UserID, nil)
	tasks, err := queue.List(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read task queue", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.Success(tasks)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks queued.")
		return nil
	}
	for i, t := range tasks {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s target=%s id=%s\n", i+1, t.Name, t.TargetID, t.ID)
	}
	return nil
}

func runTasks(opts *TasksOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	queue := engine.NewTaskQueue(st, opts.UserID, nil)
	client := api.NewClient(opts.BaseURL, opts.Token, opts.UserID)
	executor := engine.NewExecutor(queue, st, opts.UserID, client, nil, notify.NewBus())

	if err := executor.RunAll(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "task drain failed", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Queue drained.")
	return nil
}
