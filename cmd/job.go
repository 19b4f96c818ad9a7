package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/onewithdev/peterbot/internal/store"
)

// jobCmd exposes the same status/get/retry operations the chat dispatcher
// offers, for operating on the store directly without a chat round trip.
func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and manage jobs",
	}
	cmd.AddCommand(jobListCmd())
	cmd.AddCommand(jobGetCmd())
	cmd.AddCommand(jobRetryCmd())
	cmd.AddCommand(jobCancelCmd())
	return cmd
}

func jobListCmd() *cobra.Command {
	var chatID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Run: func(cmd *cobra.Command, args []string) {
			js := mustOpenStore()
			defer js.Close()

			jobs, err := js.ListJobsByChat(cmd.Context(), chatID, limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printJobs(jobs)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "chat ID to list jobs for (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max jobs to list")
	cmd.MarkFlagRequired("chat-id")
	return cmd
}

func jobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [jobId]",
		Short: "Print a completed job's output",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			js := mustOpenStore()
			defer js.Close()

			job, err := js.FindJobByPrefix(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if job.Status != store.JobCompleted {
				fmt.Printf("Job %s is %s, not completed yet.\n", job.ID, job.Status)
				return
			}
			if job.Output != nil {
				fmt.Println(*job.Output)
			}
		},
	}
}

func jobRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobId]",
		Short: "Re-queue a failed job's input as a new job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			js := mustOpenStore()
			defer js.Close()

			job, err := js.FindJobByPrefix(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if job.Status != store.JobFailed {
				fmt.Printf("Job %s is %s, not failed — nothing to retry.\n", job.ID, job.Status)
				return
			}
			newJob, err := js.CreateJob(cmd.Context(), store.JobTypeTask, job.Input, job.ChatID, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Created retry job %s\n", newJob.ID)
		},
	}
}

func jobCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel [jobId]",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			js := mustOpenStore()
			defer js.Close()

			job, err := js.FindJobByPrefix(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := js.CancelJob(cmd.Context(), job.ID, reason); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Canceled job %s\n", job.ID)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "canceled via CLI", "cancellation reason")
	return cmd
}

func printJobs(jobs []store.Job) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tINPUT")
	for _, j := range jobs {
		input := runewidth.Truncate(j.Input, 60, "…")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Status, j.Type, input)
	}
}
