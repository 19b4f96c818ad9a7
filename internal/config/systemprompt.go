package config

import (
	"fmt"
	"log/slog"

	"github.com/onewithdev/peterbot/internal/promptbudget"
)

// SystemPromptBuilder assembles SYSTEM_PROMPT + soul.md + memory.md on
// demand each time Build is called (the dispatcher calls it for every
// quick-reply completion; the worker does not use it), truncating memory to fit maxTokens
// when it would otherwise blow the budget (spec.md §9 Design Notes: these
// files are read fresh each time, never cached).
type SystemPromptBuilder struct {
	store  *ConfigStore
	base   string
	budget promptbudget.Budget
}

func NewSystemPromptBuilder(store *ConfigStore, basePrompt string, maxTokens int) *SystemPromptBuilder {
	return &SystemPromptBuilder{store: store, base: basePrompt, budget: promptbudget.NewBudget(maxTokens)}
}

// Build reads soul.md and memory.md, truncates memory to fit the
// configured token budget alongside the base prompt, and concatenates them.
func (b *SystemPromptBuilder) Build() string {
	soul, err := b.store.Read(FileSoul)
	if err != nil {
		slog.Warn("systemprompt: read soul.md failed", "error", err)
	}
	memory, err := b.store.Read(FileMemory)
	if err != nil {
		slog.Warn("systemprompt: read memory.md failed", "error", err)
	}

	memContent := b.budget.Fit(b.base+soul.Content, memory.Content, "")

	var out string
	if soul.Content != "" {
		out = fmt.Sprintf("%s\n\n%s", b.base, soul.Content)
	} else {
		out = b.base
	}
	if memContent != "" {
		out = fmt.Sprintf("%s\n\n# Memory\n%s", out, memContent)
	}
	return out
}
