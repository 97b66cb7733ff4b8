// Command flightscout manages durable flight-search sessions against the
// configured store: listing, inspection, rename, delete, and retention
// cleanup. It never drives agent turns.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightscout/flightscout"
	"github.com/flightscout/flightscout/compaction"
	"github.com/flightscout/flightscout/maintenance"
	"github.com/flightscout/flightscout/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "flightscout",
		Short:         "Manage flight-search sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(
		newListCmd(&configPath),
		newShowCmd(&configPath),
		newRenameCmd(&configPath),
		newDeleteCmd(&configPath),
		newCleanupCmd(&configPath),
	)
	return root
}

// cmdEnv is the shared runtime handed to each command.
type cmdEnv struct {
	cfg    *flightscout.Config
	store  storage.Store
	logger *zap.Logger
}

// withStore loads config, opens the configured store, and runs fn.
func withStore(configPath string, fn func(ctx context.Context, env *cmdEnv) error) error {
	cfg, err := flightscout.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	switch cfg.Storage.Driver {
	case flightscout.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		store := storage.NewPostgresStore(pool)
		if err := store.Init(ctx); err != nil {
			return err
		}
		return fn(ctx, &cmdEnv{cfg: cfg, store: store, logger: logger})
	default:
		store, err := storage.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(ctx, &cmdEnv{cfg: cfg, store: store, logger: logger})
	}
}

func newListCmd(configPath *string) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, env *cmdEnv) error {
				var (
					summaries []*storage.SessionSummary
					err       error
				)
				if status != "" {
					summaries, err = env.store.ListByStatus(ctx, storage.Status(status))
				} else {
					summaries, err = env.store.ListSummaries(ctx)
				}
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Println("no sessions")
					return nil
				}
				for _, s := range summaries {
					marker := ""
					if s.IsSummarized {
						marker = " [summarized]"
					}
					fmt.Printf("%s  %-30s  %-15s  %-9s  %d tokens%s\n",
						s.ID, s.Title, s.Phase, s.Status, s.TokenCount, marker)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, completed)")
	return cmd
}

func newShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, env *cmdEnv) error {
				rec, err := env.store.Get(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("ID:            %s\n", rec.ID)
				fmt.Printf("Title:         %s\n", rec.Title)
				fmt.Printf("Phase:         %s\n", rec.Phase)
				fmt.Printf("Status:        %s\n", rec.Status)
				fmt.Printf("Current agent: %s\n", rec.CurrentAgent.OrDefault())
				fmt.Printf("Created:       %s\n", rec.CreatedAt.Format(time.RFC3339))
				fmt.Printf("Updated:       %s\n", rec.UpdatedAt.Format(time.RFC3339))
				fmt.Printf("Tokens:        %d reported", rec.TokenCount)

				estimated := compaction.NewEstimator().Estimate(compaction.MemoryText(rec))
				fmt.Printf(", ~%d estimated\n", estimated)

				if rec.IsSummarized {
					fmt.Printf("Summarized:    yes (%d -> %d tokens", rec.OriginalTokenCount, rec.SummarizedTokenCount)
					if rec.SummarizedAt != nil {
						fmt.Printf(" at %s", rec.SummarizedAt.Format(time.RFC3339))
					}
					fmt.Println(")")
				}
				if rec.LastHandoff != nil {
					fmt.Printf("Last handoff:  %s -> %s (%q)\n",
						rec.LastHandoff.FromAgent, rec.LastHandoff.ToAgent, rec.LastHandoff.Indicator)
				}
				if rec.ResearchBrief != "" {
					fmt.Printf("\nBrief:\n%s\n", rec.ResearchBrief)
				}
				fmt.Printf("\nScoping messages: %d, chat messages: %d\n",
					len(rec.InitialMessages), len(rec.ChatMessages))
				return nil
			})
		},
	}
}

func newRenameCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <new-title>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, env *cmdEnv) error {
				if err := env.store.Rename(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("renamed %s\n", args[0])
				return nil
			})
		},
	}
}

func newDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, env *cmdEnv) error {
				if err := env.store.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newCleanupCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, env *cmdEnv) error {
				retention := days
				if retention <= 0 {
					retention = env.cfg.Retention.Days
				}
				sweeper := maintenance.NewSweeper(env.store, &maintenance.SweeperConfig{
					RetentionDays: retention,
				})
				count, err := sweeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				env.logger.Info("retention cleanup complete",
					zap.Int("deleted", count),
					zap.Int("retention_days", retention),
				)
				fmt.Printf("deleted %d session(s) older than %d day(s)\n", count, retention)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}
