package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/onewithdev/peterbot/internal/config"
	"github.com/onewithdev/peterbot/internal/jobscheduler"
	"github.com/onewithdev/peterbot/internal/store"
)

// scheduleCmd groups recurring-job management, adapted from the teacher's
// cronCmd list/delete/toggle subcommand pattern, targeting store.Schedule
// instead of a JSON-file cron store.
func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring schedules",
	}
	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleToggleCmd())
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	var cron, description, prompt string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new recurring schedule",
		Run: func(cmd *cobra.Command, args []string) {
			if !jobscheduler.ValidateCron(cron) {
				fmt.Fprintf(os.Stderr, "Error: %q is not a valid 5-field cron expression\n", cron)
				os.Exit(1)
			}
			js := mustOpenStore()
			defer js.Close()

			now := time.Now()
			nextRun, err := jobscheduler.NextRun(cron, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			sc, err := js.CreateSchedule(cmd.Context(), store.Schedule{
				Description:     description,
				NaturalSchedule: cron,
				ParsedCron:      cron,
				Prompt:          prompt,
				Enabled:         true,
				NextRunAt:       nextRun,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created schedule %s, next run at %s\n", sc.ID, sc.NextRunAt.Format(time.RFC3339))
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "5-field cron expression (required)")
	cmd.Flags().StringVar(&description, "description", "", "human-readable label")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt to run on each fire (required)")
	cmd.MarkFlagRequired("cron")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	var showDisabled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Run: func(cmd *cobra.Command, args []string) {
			js := mustOpenStore()
			defer js.Close()

			schedules, err := js.ListSchedules(cmd.Context(), showDisabled)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printSchedules(schedules)
		},
	}
	cmd.Flags().BoolVar(&showDisabled, "all", false, "include disabled schedules")
	return cmd
}

func scheduleToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [scheduleId] [true|false]",
		Short: "Enable or disable a schedule",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			enabled := args[1] == "true" || args[1] == "1" || args[1] == "on"
			js := mustOpenStore()
			defer js.Close()

			if err := js.SetScheduleEnabled(cmd.Context(), args[0], enabled, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Schedule %s enabled=%v\n", args[0], enabled)
		},
	}
}

func printSchedules(schedules []store.Schedule) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tENABLED\tCRON\tNEXT RUN\tDESCRIPTION")
	for _, sc := range schedules {
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", sc.ID, sc.Enabled, sc.ParsedCron,
			sc.NextRunAt.Format(time.RFC3339), sc.Description)
	}
}

// mustOpenStore opens the configured JobStore for one-shot CLI commands,
// exiting on failure. serve.go uses openStore directly since it also needs
// the error for graceful handling; CLI subcommands just want a clean exit.
func mustOpenStore() store.JobStore {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	js, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return js
}
