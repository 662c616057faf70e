// Package inference defines the provider-neutral contract to the external
// language-model collaborator, the single point of non-determinism and cost
// in the system.
package inference

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/pkg/anthropic"
	"github.com/sells-group/dealsense/pkg/openai"
)

// Message is one conversational turn sent to the model.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single inference round trip.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int64
	Temperature *float64
}

// Response carries the raw structured result plus cost provenance. Text is
// untrusted and must be schema-validated by the caller.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

// Client performs one inference round trip.
type Client interface {
	Infer(ctx context.Context, req Request) (*Response, error)
}

// anthropicClient adapts pkg/anthropic to the Client interface.
type anthropicClient struct {
	c anthropic.Client
}

// NewAnthropic wraps an Anthropic client as an inference Client.
func NewAnthropic(c anthropic.Client) Client {
	return &anthropicClient{c: c}
}

func (a *anthropicClient) Infer(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]anthropic.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = anthropic.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := a.c.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         resp.Text,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		LatencyMs:    resp.LatencyMs,
	}, nil
}

// openaiClient adapts pkg/openai to the Client interface.
type openaiClient struct {
	c openai.Client
}

// NewOpenAI wraps an OpenAI client as an inference Client.
func NewOpenAI(c openai.Client) Client {
	return &openaiClient{c: c}
}

func (o *openaiClient) Infer(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]openai.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := o.c.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         resp.Text,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		LatencyMs:    resp.LatencyMs,
	}, nil
}

// Router picks a provider per request based on the configured model id.
// Claude models route to Anthropic; everything else goes to the default
// provider.
type Router struct {
	Anthropic Client
	OpenAI    Client
	Default   string // "anthropic" or "openai"
}

// Infer dispatches the request to the provider owning req.Model.
func (r *Router) Infer(ctx context.Context, req Request) (*Response, error) {
	c, err := r.pick(req.Model)
	if err != nil {
		return nil, err
	}
	return c.Infer(ctx, req)
}

func (r *Router) pick(model string) (Client, error) {
	switch {
	case strings.HasPrefix(model, "claude"):
		if r.Anthropic == nil {
			return nil, eris.Errorf("inference: no anthropic client configured for model %q", model)
		}
		return r.Anthropic, nil
	case strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		if r.OpenAI == nil {
			return nil, eris.Errorf("inference: no openai client configured for model %q", model)
		}
		return r.OpenAI, nil
	}

	switch r.Default {
	case "openai":
		if r.OpenAI == nil {
			return nil, eris.New("inference: default provider openai not configured")
		}
		return r.OpenAI, nil
	default:
		if r.Anthropic == nil {
			return nil, eris.New("inference: default provider anthropic not configured")
		}
		return r.Anthropic, nil
	}
}
