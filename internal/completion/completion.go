// Package completion is the one abstraction point for the language model.
// The dispatcher and worker depend only on the Completer interface; peterbot
// itself is agnostic to which model answers a prompt. GoogleCompletion wraps
// google.golang.org/genai, grounded on
// _examples/TGIFAI-friday/internal/provider/gemini/gemini.go's
// genai.NewClient/genai.ClientConfig construction — narrowed here to a
// direct client.Models.GenerateContent call instead of that file's
// cloudwego/eino-ext chat-model wrapper, since peterbot has no agent
// framework underneath it for that wrapper to plug into.
package completion

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Completer answers a single prompt under a system instruction. Failures are
// the only source of CompletionFailure in the error taxonomy.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// GoogleCompletion calls the Gemini API through the genai SDK.
type GoogleCompletion struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

type GoogleCompletionConfig struct {
	APIKey  string
	APIBase string // optional override, e.g. for a proxy or regional endpoint
	Model   string
	Timeout time.Duration
}

// NewGoogleCompletion builds a GoogleCompletion. ctx is only used for the
// client's initial setup, matching genai.NewClient's signature.
func NewGoogleCompletion(ctx context.Context, cfg GoogleCompletionConfig) (*GoogleCompletion, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIBase != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIBase}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("completion: new genai client: %w", err)
	}

	return &GoogleCompletion{client: client, model: model, timeout: timeout}, nil
}

// Complete implements Completer via client.Models.GenerateContent.
func (g *GoogleCompletion) Complete(ctx context.Context, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var genCfg *genai.GenerateContentConfig
	if system != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("completion: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("completion: empty response")
	}
	return text, nil
}
