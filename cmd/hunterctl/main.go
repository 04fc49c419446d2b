// Command hunterctl runs campaign stages and inspects campaigns from a shell,
// using the same configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/app"
	"github.com/unclebandit/leadhunter-backend/internal/config"
	"github.com/unclebandit/leadhunter-backend/internal/logger"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

type buildFunc func(ctx context.Context) (*app.App, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildFromEnv, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildFromEnv(ctx context.Context) (*app.App, error) {
	cfg, _, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, log)
}

func newRootCmd(build buildFunc, out io.Writer) *cobra.Command {
	var userID string
	var admin bool

	root := &cobra.Command{
		Use:          "hunterctl",
		Short:        "Run lead-hunting campaign stages by hand",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&userID, "user", "", "act as this user instead of the system caller")
	root.PersistentFlags().BoolVar(&admin, "admin", false, "act with the admin role (only with --user)")

	caller := func() service.Caller {
		if userID == "" {
			return service.System
		}
		return service.Caller{UserID: userID, Admin: admin}
	}

	// with builds the application, runs fn and prints its result as JSON.
	with := func(fn func(ctx context.Context, a *app.App, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := fn(cmd.Context(), a, args)
			if res != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(res); encErr != nil {
					a.Log.Warn("Failed to print result", zap.Error(encErr))
				}
			}
			return err
		}
	}

	stage := func(use, short string, run func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <campaign-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: with(func(ctx context.Context, a *app.App, args []string) (any, error) {
				return run(ctx, a, args[0], caller())
			}),
		}
	}

	huntCmd := stage("hunt", "Search, score and draft new prospects for a campaign",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			res, err := a.Hunt.Run(ctx, id, c)
			return nilIfEmpty(res), err
		})
	sendCmd := stage("send", "Send initial emails to ready prospects",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			res, err := a.Send.Run(ctx, id, c)
			return nilIfEmpty(res), err
		})
	followupCmd := stage("followup", "Send due follow-up emails",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			res, err := a.Followup.Run(ctx, id, c)
			return nilIfEmpty(res), err
		})
	statsCmd := stage("stats", "Show campaign counters and pending work",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			res, err := a.Campaigns.Stats(ctx, id, c)
			return nilIfEmpty(res), err
		})
	pauseCmd := stage("pause", "Pause an active campaign",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			if err := a.Campaigns.Pause(ctx, id, c); err != nil {
				return nil, err
			}
			return map[string]string{"id": id, "status": "paused"}, nil
		})
	activateCmd := stage("activate", "Activate a draft or paused campaign",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			if err := a.Campaigns.Activate(ctx, id, c); err != nil {
				return nil, err
			}
			return map[string]string{"id": id, "status": "active"}, nil
		})

	var limit int
	runsCmd := stage("runs", "List the most recent runs of a campaign",
		func(ctx context.Context, a *app.App, id string, c service.Caller) (any, error) {
			runs, err := a.Campaigns.Runs(ctx, id, c, limit)
			if err != nil {
				return nil, err
			}
			return runs, nil
		})
	runsCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")

	archiveCmd := &cobra.Command{
		Use:   "archive <prospect-id>",
		Short: "Close a prospect as lost",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app.App, args []string) (any, error) {
			if err := a.Campaigns.ArchiveProspect(ctx, args[0], caller()); err != nil {
				return nil, err
			}
			return map[string]string{"id": args[0], "status": "archived"}, nil
		}),
	}

	cycleCmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one scheduler cycle over every due campaign",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, a *app.App, _ []string) (any, error) {
			report, err := a.Scheduler.RunCycle(ctx)
			return nilIfEmpty(report), err
		}),
	}

	root.AddCommand(huntCmd, sendCmd, followupCmd, cycleCmd, runsCmd, statsCmd, pauseCmd, activateCmd, archiveCmd)
	return root
}

// nilIfEmpty turns a typed nil pointer into an untyped nil so nothing is printed.
func nilIfEmpty[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}
