// Package llm adapts the Anthropic and OpenAI wrappers to a single
// completion capability: a system prompt plus user text in, raw text out.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-extract/pkg/anthropic"
	"github.com/sells-group/crm-extract/pkg/openai"
)

// Completer produces a completion for a system prompt and user text. When
// wantJSON is set the provider is asked for a JSON object response.
type Completer interface {
	Complete(ctx context.Context, system, user string, wantJSON bool) (string, error)
}

const jsonOnlyInstruction = "Respond with a single JSON object and no other text."

// OpenAI completes through the chat-completions API in JSON mode.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI wraps an OpenAI client.
func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

func (o *OpenAI) Complete(ctx context.Context, system, user string, wantJSON bool) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:  o.model,
		System: system,
		User:   user,
		JSON:   wantJSON,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(resp.Model, "extract")
	return resp.Content, nil
}

// Anthropic completes through the Messages API. The API has no JSON
// response mode, so the system prompt is suffixed with a JSON-only
// instruction instead.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

func (a *Anthropic) Complete(ctx context.Context, system, user string, wantJSON bool) (string, error) {
	if wantJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.model, "extract")
	return resp.Text(), nil
}

const pingPrompt = "Say 'Hello, API test successful!'"

// Ping issues a tiny completion to check that the provider is reachable and
// the credentials are accepted.
func Ping(ctx context.Context, c Completer) (string, error) {
	out, err := c.Complete(ctx, "", pingPrompt, false)
	if err != nil {
		return "", eris.Wrap(err, "llm: ping")
	}
	return out, nil
}
