// Package main provides finctl, the operator CLI for migrations, scheduled
// sweeps, the email worker and data exports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"famfinance/internal/amqp"
	"famfinance/internal/app"
	"famfinance/internal/config"
	"famfinance/internal/log"
	"famfinance/internal/service"
	"famfinance/internal/validation"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "finctl",
		Short:         "Family finance operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sweep := &cobra.Command{Use: "sweep", Short: "Run a scheduled sweep once"}
	sweep.AddCommand(sweepRemindersCmd(), sweepEmailsCmd())

	budgets := &cobra.Command{Use: "budgets", Short: "Budget maintenance"}
	budgets.AddCommand(generateBudgetsCmd())

	export := &cobra.Command{Use: "export", Short: "Export family data"}
	export.AddCommand(exportTransactionsCmd())

	cmd.AddCommand(migrateCmd(), sweep, budgets, export, workerCmd(), cleanupCmd())
	return cmd
}

// withApp loads configuration, wires the services and runs fn with a context
// that is cancelled on SIGINT or SIGTERM
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// app.New applies migrations while opening the database
			return withApp(func(ctx context.Context, a *app.App) error {
				fmt.Println("migrations up to date")
				return nil
			})
		},
	}
}

func sweepRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Email members about reminders that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				result, err := a.Reminders.Sweep(ctx, time.Now())
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func sweepEmailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emails",
		Short: "Deliver one batch of queued emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				result, err := a.EmailQueue.Process(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func generateBudgetsCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate budgets from templates for every family",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := validation.ParseMonth(month)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				totals, err := a.Budgets.GenerateAll(ctx, m)
				if err != nil {
					return err
				}
				return printJSON(totals)
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to generate as YYYY-MM (default current)")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued emails as their AMQP notifications arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if a.AMQP == nil {
					return errors.New("AMQP_URL is not configured or the broker is unreachable")
				}
				logger := a.Logger.WithComponent(log.ComponentWorker)
				logger.Info("email worker started")

				err := a.AMQP.ConsumeEmailJobs(ctx, func(ctx context.Context, msg *amqp.EmailJobMessage) error {
					_, err := a.EmailQueue.ProcessJob(ctx, msg.JobID)
					return err
				})
				if errors.Is(err, context.Canceled) {
					logger.Info("email worker stopped")
					return nil
				}
				return err
			})
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired reset tokens and invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				a.Cleanup(ctx)
				return nil
			})
		},
	}
}

func exportTransactionsCmd() *cobra.Command {
	var (
		familyID int64
		month    string
		all      bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Write a family's transactions to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if familyID <= 0 {
				return errors.New("--family is required")
			}
			m, err := validation.ParseMonth(month)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				q := service.TransactionQuery{Month: m, AllTime: all}
				if output == "" {
					label := "all"
					if !all {
						label = a.Transactions.Period(m).Label()
					}
					output = fmt.Sprintf("transactions-%s.xlsx", label)
				}

				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := a.Transactions.Export(ctx, familyID, q, f); err != nil {
					f.Close()
					os.Remove(output)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Println(output)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&familyID, "family", 0, "Family id")
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default current)")
	cmd.Flags().BoolVar(&all, "all", false, "Export every transaction instead of one month")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default transactions-<period>.xlsx)")
	return cmd
}
