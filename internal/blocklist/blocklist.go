// Package blocklist compiles and evaluates the rules in blocklist.json
// against inbound chat messages. Each rule's expr is a CEL boolean
// expression over the message text and chat id, giving the strict/warn
// keys named in spec.md §6 an actual evaluation engine instead of literal
// substring matching.
package blocklist

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/titanous/json5"
)

// Rule is one blocklist entry: a human label and a CEL expression over
// `message` (string) and `chat_id` (string).
type Rule struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Rules is the parsed shape of blocklist.json: a strict list (violations
// reject the message outright) and a warn list (violations are logged but
// the message still proceeds).
type Rules struct {
	Strict []Rule `json:"strict"`
	Warn   []Rule `json:"warn"`
}

// ValidateRules checks that every rule's expr compiles, without requiring
// an Evaluator to be built. Used by config.ConfigStore.Write to reject a
// bad dashboard edit before it lands on disk.
func ValidateRules(r Rules) error {
	env, err := newCelEnv()
	if err != nil {
		return err
	}
	for _, rule := range append(append([]Rule{}, r.Strict...), r.Warn...) {
		if _, iss := env.Compile(rule.Expr); iss != nil && iss.Err() != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, iss.Err())
		}
	}
	return nil
}

func newCelEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("message", cel.StringType),
		cel.Variable("chat_id", cel.StringType),
	)
}

// compiledRule pairs a Rule with its compiled CEL program.
type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Evaluator holds the compiled strict/warn rule sets ready for fast
// per-message evaluation.
type Evaluator struct {
	strict []compiledRule
	warn   []compiledRule
}

// Load parses blocklist.json content (json5-tolerant, so operators can
// comment out a rule without it erroring) and compiles every rule.
func Load(content string) (*Evaluator, error) {
	var rules Rules
	if err := json5.Unmarshal([]byte(content), &rules); err != nil {
		return nil, fmt.Errorf("blocklist: parse: %w", err)
	}

	env, err := newCelEnv()
	if err != nil {
		return nil, fmt.Errorf("blocklist: build cel env: %w", err)
	}

	compile := func(rules []Rule) ([]compiledRule, error) {
		out := make([]compiledRule, 0, len(rules))
		for _, r := range rules {
			ast, iss := env.Compile(r.Expr)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, iss.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			out = append(out, compiledRule{rule: r, program: prg})
		}
		return out, nil
	}

	strict, err := compile(rules.Strict)
	if err != nil {
		return nil, err
	}
	warn, err := compile(rules.Warn)
	if err != nil {
		return nil, err
	}
	return &Evaluator{strict: strict, warn: warn}, nil
}

// Verdict is the outcome of evaluating a message against the blocklist.
type Verdict struct {
	Blocked  bool
	RuleName string // the strict rule that blocked it, if Blocked
	Warnings []string
}

// Evaluate runs every compiled rule against one message. A matching strict
// rule short-circuits and blocks; matching warn rules are all collected
// and returned for logging, but never block.
func (e *Evaluator) Evaluate(message, chatID string) Verdict {
	args := map[string]any{"message": message, "chat_id": chatID}

	for _, cr := range e.strict {
		if matches(cr, args) {
			return Verdict{Blocked: true, RuleName: cr.rule.Name}
		}
	}

	var warnings []string
	for _, cr := range e.warn {
		if matches(cr, args) {
			warnings = append(warnings, cr.rule.Name)
		}
	}
	return Verdict{Warnings: warnings}
}

func matches(cr compiledRule, args map[string]any) bool {
	out, _, err := cr.program.Eval(args)
	if err != nil {
		slog.Warn("blocklist: rule evaluation failed", "rule", cr.rule.Name, "error", err)
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
