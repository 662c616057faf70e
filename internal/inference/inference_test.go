package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealsense/pkg/anthropic"
	"github.com/sells-group/dealsense/pkg/openai"
)

// mockAnthropic implements anthropic.Client for testing.
type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// mockOpenAI implements openai.Client for testing.
type mockOpenAI struct {
	mock.Mock
}

func (m *mockOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.ChatResponse), args.Error(1)
}

func TestAnthropicAdapter(t *testing.T) {
	ma := new(mockAnthropic)
	ctx := context.Background()

	ma.On("CreateMessage", ctx, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5" &&
			req.System == "analyze carefully" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user"
	})).Return(&anthropic.MessageResponse{
		Text:      `{"ok": true}`,
		Usage:     anthropic.TokenUsage{InputTokens: 300, OutputTokens: 40},
		LatencyMs: 80,
	}, nil).Once()

	resp, err := NewAnthropic(ma).Infer(ctx, Request{
		Model:     "claude-sonnet-4-5",
		System:    "analyze carefully",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "transcript here"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, 300, resp.InputTokens)
	assert.Equal(t, 40, resp.OutputTokens)
	assert.Equal(t, int64(80), resp.LatencyMs)

	ma.AssertExpectations(t)
}

func TestOpenAIAdapter(t *testing.T) {
	mo := new(mockOpenAI)
	ctx := context.Background()

	mo.On("CreateChatCompletion", ctx, mock.AnythingOfType("openai.ChatRequest")).
		Return(&openai.ChatResponse{
			Text:  `{"ok": true}`,
			Usage: openai.TokenUsage{InputTokens: 200, OutputTokens: 30},
		}, nil).Once()

	resp, err := NewOpenAI(mo).Infer(ctx, Request{
		Model:    "gpt-5.2",
		Messages: []Message{{Role: "user", Content: "transcript here"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)

	mo.AssertExpectations(t)
}

func TestRouter_PicksByModelPrefix(t *testing.T) {
	ma := new(mockAnthropic)
	mo := new(mockOpenAI)
	ctx := context.Background()

	ma.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{Text: "a"}, nil).Once()
	mo.On("CreateChatCompletion", ctx, mock.AnythingOfType("openai.ChatRequest")).
		Return(&openai.ChatResponse{Text: "o"}, nil).Twice()

	r := &Router{Anthropic: NewAnthropic(ma), OpenAI: NewOpenAI(mo), Default: "anthropic"}

	resp, err := r.Infer(ctx, Request{Model: "claude-haiku-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Text)

	resp, err = r.Infer(ctx, Request{Model: "gpt-5.2-mini"})
	require.NoError(t, err)
	assert.Equal(t, "o", resp.Text)

	resp, err = r.Infer(ctx, Request{Model: "o3-pro"})
	require.NoError(t, err)
	assert.Equal(t, "o", resp.Text)

	ma.AssertExpectations(t)
	mo.AssertExpectations(t)
}

func TestRouter_DefaultProvider(t *testing.T) {
	mo := new(mockOpenAI)
	mo.On("CreateChatCompletion", mock.Anything, mock.AnythingOfType("openai.ChatRequest")).
		Return(&openai.ChatResponse{Text: "o"}, nil).Once()

	r := &Router{OpenAI: NewOpenAI(mo), Default: "openai"}
	resp, err := r.Infer(context.Background(), Request{Model: "custom-finetune"})
	require.NoError(t, err)
	assert.Equal(t, "o", resp.Text)

	mo.AssertExpectations(t)
}

func TestRouter_MissingProvider(t *testing.T) {
	r := &Router{Default: "anthropic"}

	_, err := r.Infer(context.Background(), Request{Model: "claude-sonnet-4-5"})
	require.Error(t, err)

	_, err = r.Infer(context.Background(), Request{Model: "gpt-5.2"})
	require.Error(t, err)

	_, err = r.Infer(context.Background(), Request{Model: "custom-finetune"})
	require.Error(t, err)
}
