package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/twillot/twillot/internal/api"
	"github.com/twillot/twillot/internal/engine"
	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/observer"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/syncer"
	"github.com/twillot/twillot/internal/workflow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Workflows string
	BaseURL   string
	Token     string
	UserID    string
	Interval  time.Duration

	// Tokens allows overriding the task id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens engine.TokenGenerator
}

// NewRunCommand creates the run command: the long-running coordinator
// that observes traffic, queues and executes tasks, and keeps the local
// replica synced on a timer.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the workflow coordinator",
		Long: `Start the twillot coordinator.

The coordinator loads workflow definitions, opens the local database
(creating it if needed), and runs three loops: the trigger pipeline
(observed calls to queued tasks), the task executor, and the periodic
incremental sync.

Example:
  twillot run --db ./twillot.db --user 123 --token $TOKEN --workflows ./workflows`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Workflows, "workflows", "", "directory of CUE workflow definitions (defaults seeded when empty)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "https://api.twitter.com", "remote API root")
	cmd.Flags().StringVar(&opts.Token, "token", "", "API bearer token")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "authenticated user id (required)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Minute, "incremental sync interval")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runCoordinator(opts *RunOptions, cmd *cobra.Command) error {
	workflows, err := loadOrDefaultWorkflows(opts.Workflows)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load workflows", err)
	}
	slog.Info("workflows loaded", "count", len(workflows))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	bus := notify.NewBus()
	queue := engine.NewTaskQueue(st, opts.UserID, bus)

	// Resume the logical clock past anything already queued.
	maxSeq, err := queue.MaxSeq(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read task queue", err)
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}
	coord := engine.NewCoordinator(queue, workflow.NewMatcher(workflows), tokens, engine.NewClockAt(maxSeq))

	// The observer wraps the client's transport: actions this process
	// performs against the remote flow through the trigger pipeline.
	obs := observer.New(nil)
	client := api.NewClient(opts.BaseURL, opts.Token, opts.UserID)
	client.SetTransport(obs)

	executor := engine.NewExecutor(queue, st, opts.UserID, client, nil, bus)
	driver := syncer.NewDriver(st, client, opts.UserID, bus)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Observed calls feed the coordinator.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case call := <-obs.Calls():
				coord.Submit(call)
			}
		}
	}()

	// The executor drains whenever the queue gains tasks. Removals also
	// publish changes; an empty queue makes those wakeups no-ops.
	go func() {
		sub := bus.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-sub:
				if n.Kind != notify.KindTasksChanged {
					continue
				}
				tasks, err := queue.List(ctx)
				if err != nil {
					slog.Error("task list read failed", "error", err)
					continue
				}
				if len(tasks) == 0 {
					continue
				}
				if err := executor.RunAll(ctx); err != nil {
					slog.Error("task drain failed", "error", err)
				}
			}
		}
	}()

	go driver.Start(ctx, opts.Interval)

	fmt.Fprintln(cmd.OutOrStdout(), "Coordinator started. Press Ctrl-C to stop.")

	if err := coord.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "coordinator error", err)
	}

	slog.Info("coordinator stopped gracefully")
	return nil
}

// loadOrDefaultWorkflows loads CUE definitions when a directory is
// given, else seeds the first-run defaults.
func loadOrDefaultWorkflows(dir string) ([]workflow.Workflow, error) {
	if dir == "" {
		return workflow.DefaultWorkflows("🔖"), nil
	}
	return LoadWorkflows(dir)
}
