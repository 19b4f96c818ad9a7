// Package chatfmt holds the small text-formatting rules shared by the
// dispatcher and worker when composing chat-facing strings, grounded on the
// teacher's internal/cron.TruncateOutput (same truncate-with-suffix shape,
// applied to spec.md's chat-message limits instead of cron run-log limits).
package chatfmt

import "fmt"

const getOutputLimit = 4000

// TruncateForGet truncates a completed job's output for the /get command
// reply (spec.md §6).
func TruncateForGet(s string) string {
	if len(s) <= getOutputLimit {
		return s
	}
	return s[:getOutputLimit] + "... (truncated)"
}

// AckMessage is the acknowledgement sent when a task job is created
// (spec.md §4.4 step 5).
func AckMessage(jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Got it ✓ — I'll work on that. Job ID: `%s`. Send /status to check progress.", short)
}

// ApologyMessage is the generic apology sent when a quick-intent completion
// call fails (spec.md §4.4 step 4).
const ApologyMessage = "Sorry, I couldn't come up with an answer just now. Please try again."

// FailureMessage is the user-facing text for a failed job (spec.md §4.5
// result formatting): a short apology plus the truncated failure reason.
func FailureMessage(reason string) string {
	return fmt.Sprintf("Sorry, this task failed: %s", TruncateForGet(reason))
}

// RejectionMessage is sent to any chat other than the authorized one
// (spec.md §4.4 step 1).
const RejectionMessage = "This bot is private and not available for your account."
