package classifier

import (
	"strings"
	"testing"
)

func TestClassify_Keyword(t *testing.T) {
	cases := []string{
		"research the weather",
		"Write me a poem",
		"ANALYZE this log file",
		"please build a table",
		"can you find my keys",
	}
	for _, text := range cases {
		if got := Classify(text); got != IntentTask {
			t.Errorf("Classify(%q) = %q, want task", text, got)
		}
	}
}

func TestClassify_NoKeywordShortMessage(t *testing.T) {
	cases := []string{"hi", "what time is it?", "thanks!", "good morning"}
	for _, text := range cases {
		if got := Classify(text); got != IntentQuick {
			t.Errorf("Classify(%q) = %q, want quick", text, got)
		}
	}
}

func TestClassify_LengthBoundary(t *testing.T) {
	at100 := strings.Repeat("a", 100)
	if got := Classify(at100); got != IntentQuick {
		t.Errorf("100-byte message with no keyword = %q, want quick", got)
	}

	at101 := strings.Repeat("a", 101)
	if got := Classify(at101); got != IntentTask {
		t.Errorf("101-byte message = %q, want task", got)
	}
}

func TestClassify_SingleCharKeywordMatchWithinBudget(t *testing.T) {
	text := "make"
	if got := Classify(text); got != IntentTask {
		t.Errorf("Classify(%q) = %q, want task (keyword match regardless of length)", text, got)
	}
}

func TestClassify_MultiByteRunesCountAsBytes(t *testing.T) {
	// "café" repeated pushes byte length past 100 via multi-byte 'é' without
	// any keyword present, exercising the byte-length (not rune-count) rule.
	text := strings.Repeat("café ", 21)
	if len(text) <= 100 {
		t.Fatalf("test fixture too short: %d bytes", len(text))
	}
	if got := Classify(text); got != IntentTask {
		t.Errorf("Classify(long multi-byte text) = %q, want task", got)
	}
}
