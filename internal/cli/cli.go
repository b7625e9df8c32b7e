// Package cli is the remindbot command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/config"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
)

const defaultConfig = "./config.json"

type options struct {
	configFile string
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "remindbot",
		Short: "Personal reminder bot",
		Long: `remindbot sends each user randomized daily messages, check-ins and
task reminders over Telegram, email or Discord, and retries failed sends.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", defaultConfig, "config file path (JSON or YAML)")

	root.AddCommand(
		buildRunCommand(opts),
		buildScheduleCommand(opts),
		buildHistoryCommand(opts),
		buildValidateCommand(opts),
	)
	return root
}

func buildRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and retry queue until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configFile)
		},
	}
}

func run(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(parent); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopAppStop
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	case <-parent.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func buildScheduleCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Dry-run scheduling for one user and print the resulting jobs",
	}

	dryRun := func(w io.Writer, fn func(ctx context.Context, f schedule.Factory) (*schedule.Manager, error)) error {
		a, err := app.NewApp(opts.configFile)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		m, err := fn(context.Background(), a.DryRunFactory())
		if err != nil {
			return err
		}
		return printJobs(w, m.Jobs().Jobs())
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "user <user_id>",
			Short: "Schedule every category, check-in and task reminder for a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return dryRun(c.OutOrStdout(), func(ctx context.Context, f schedule.Factory) (*schedule.Manager, error) {
					return schedule.ProcessUserSchedules(ctx, f, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "category <user_id> <category>",
			Short: "Schedule one message category for a user",
			Args:  cobra.ExactArgs(2),
			RunE: func(c *cobra.Command, args []string) error {
				return dryRun(c.OutOrStdout(), func(ctx context.Context, f schedule.Factory) (*schedule.Manager, error) {
					return schedule.ProcessCategorySchedule(ctx, f, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "tasks <user_id>",
			Short: "Schedule task reminders for a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return dryRun(c.OutOrStdout(), func(ctx context.Context, f schedule.Factory) (*schedule.Manager, error) {
					return schedule.ScheduleAllTaskRemindersFor(ctx, f, args[0])
				})
			},
		},
	)
	return cmd
}

func printJobs(w io.Writer, jobs []schedule.ScheduledJob) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "no jobs scheduled")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tKIND\tNAME")
	for _, j := range jobs {
		at := j.At.Format(schedule.DateTimeLayout)
		if j.Recurring != nil {
			at += " (" + j.Spec + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", at, j.Kind, j.Name)
	}
	return tw.Flush()
}

func buildHistoryCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user_id>",
		Short: "Show recent deliveries for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := app.NewApp(opts.configFile)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			recs, err := a.History(c.Context(), args[0], limit)
			if errors.Is(err, storage.ErrDisabled) {
				return fmt.Errorf("delivery history needs storage to be configured")
			}
			if err != nil {
				return err
			}
			return printHistory(c.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func printHistory(w io.Writer, recs []storage.DeliveryRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "no deliveries recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tCATEGORY\tCHANNEL\tOUTCOME\tATTEMPT\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.At.Format(time.RFC3339), r.Category, r.Channel, r.Outcome, r.Attempt, r.Error)
	}
	return tw.Flush()
}

func buildValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(opts.configFile).Parse()
			if err != nil {
				return err
			}
			if err := app.Validate(cfg); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "%s: ok (channels: %v)\n", opts.configFile, config.EnabledChannels(cfg.Channels))
			return err
		},
	}
}
