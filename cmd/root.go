// Package cmd holds peterbot's CLI surface, grounded on the teacher's
// cobra-based cmd package layout (one file per subcommand, a root.go that
// wires them together).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command. Called from main.go.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peterbot",
		Short: "A single-user personal AI agent: chat in, jobs out.",
		Long: "peterbot runs a chat dispatcher, a durable job queue, and a cron " +
			"scheduler behind one authorized chat. Run `peterbot serve` to start it.",
		Run: func(cmd *cobra.Command, args []string) {
			serveCmd().Run(cmd, args)
		},
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(scheduleCmd())
	cmd.AddCommand(jobCmd())
	cmd.AddCommand(onboardCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}
