// Package classifier decides whether an inbound chat message should be
// answered synchronously or enqueued as a job. It is a pure function with no
// I/O or state, grounded on the keyword-dispatch style of the teacher's
// internal/channels/telegram/commands.go switch statement but applied to
// free text instead of slash commands.
package classifier

import "strings"

// Intent is the outcome of classifying a message.
type Intent string

const (
	IntentQuick Intent = "quick"
	IntentTask  Intent = "task"
)

// taskKeywords triggers a task classification when present anywhere in the
// message, case-insensitively. Order doesn't matter; membership does.
var taskKeywords = []string{
	"research", "write", "analyze", "create", "build", "find", "summarize",
	"compile", "report", "draft", "generate", "make", "prepare", "search",
	"compare", "list", "collect", "gather", "extract", "translate",
}

// maxQuickBytes is the length past which a message is always a task,
// regardless of keyword content.
const maxQuickBytes = 100

// Classify returns IntentTask if text contains a task keyword or exceeds
// maxQuickBytes bytes, and IntentQuick otherwise.
func Classify(text string) Intent {
	if len(text) > maxQuickBytes {
		return IntentTask
	}
	lower := strings.ToLower(text)
	for _, kw := range taskKeywords {
		if strings.Contains(lower, kw) {
			return IntentTask
		}
	}
	return IntentQuick
}
