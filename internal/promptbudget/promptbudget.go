// Package promptbudget counts and truncates text by token count using
// tiktoken-go's cl100k_base encoding, so config.SystemPromptBuilder can keep
// SYSTEM_PROMPT + soul + memory under a configured budget before the
// dispatcher's quick-reply Completion call. Fit can also reserve room for
// the user input, but the builder passes none, and the worker's Completion
// calls do not go through this package. Grounded on the shape of
// internal/shared/token.tokenutil (CountTokens/TruncateToTokens) from the
// pack's cklxx-elephant.ai repo, which names tiktoken-go for the same job;
// the encoder here is built directly since that repo's own implementation
// file was not part of the retrieved pack.
package promptbudget

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("promptbudget: tiktoken encoding unavailable, falling back to rune estimate", "error", err)
			return
		}
		enc = e
	})
	return enc
}

// Count returns the token count of s, or a rough rune/4 estimate if the
// tiktoken encoding failed to load.
func Count(s string) int {
	if s == "" {
		return 0
	}
	if e := encoding(); e != nil {
		return len(e.Encode(s, nil, nil))
	}
	return len([]rune(s)) / 4
}

// Budget caps the combined token count of a system prompt, memory content
// and user input, truncating memory first (the largest and least essential
// in a single turn) to make room.
type Budget struct {
	MaxTokens int
}

func NewBudget(maxTokens int) Budget {
	return Budget{MaxTokens: maxTokens}
}

// Fit truncates memory so that systemPrompt + memory + input together fit
// within b.MaxTokens. Returns the (possibly truncated) memory content
// unchanged if the budget is non-positive or already satisfied.
func (b Budget) Fit(systemPrompt, memory, input string) string {
	if b.MaxTokens <= 0 {
		return memory
	}
	fixed := Count(systemPrompt) + Count(input)
	budget := b.MaxTokens - fixed
	if budget <= 0 {
		return ""
	}
	if Count(memory) <= budget {
		return memory
	}
	return truncateToTokens(memory, budget)
}

// truncateToTokens trims s to at most maxTokens tokens, appending "..." to
// signal the cut the way the pack's tokenutil.TruncateToTokens does.
func truncateToTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	e := encoding()
	if e == nil {
		return runeFallbackTruncate(s, maxTokens)
	}
	tokens := e.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	truncated := e.Decode(tokens[:maxTokens])
	return strings.TrimSpace(truncated) + "..."
}

func runeFallbackTruncate(s string, maxTokens int) string {
	maxRunes := maxTokens * 4
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}
