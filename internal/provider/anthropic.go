package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nova-run/orchestrator/pkg/models"
)

// anthropicRates are published per-million-token prices (USD) for the
// models this backend is expected to serve.
var anthropicRates = map[string][2]float64{
	"claude-sonnet-4-20250514": {3.00, 15.00},
	"claude-opus-4-20250514":   {15.00, 75.00},
	"claude-haiku-4-20250514":  {0.80, 4.00},
}

// AnthropicProvider adapts Anthropic's messages API to ChatProvider.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicProvider builds an AnthropicProvider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *AnthropicProvider) buildParams(req models.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

func (p *AnthropicProvider) convertMessages(messages []models.CompletionMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", t.Name, err)
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result, nil
}

func (p *AnthropicProvider) Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return models.Completion{}, err
	}

	var msg *anthropic.Message
	err = WithTimeout(ctx, "anthropic.create", 0, func(cctx context.Context) error {
		m, err := p.client.Messages.New(cctx, params)
		if err != nil {
			return p.wrapError(err, string(params.Model))
		}
		msg = m
		return nil
	})
	if err != nil {
		return models.Completion{}, err
	}

	return p.toCompletion(msg), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(StreamDelta) error) error {
	params, err := p.buildParams(req)
	if err != nil {
		return err
	}

	return WithTimeout(ctx, "anthropic.stream", 0, func(cctx context.Context) error {
		stream := p.client.Messages.NewStreaming(cctx, params)
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if variant.Delta.Text != "" {
					if err := onDelta(StreamDelta{Text: variant.Delta.Text}); err != nil {
						return err
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return p.wrapError(err, string(params.Model))
		}
		return onDelta(StreamDelta{Done: true})
	})
}

func (p *AnthropicProvider) toCompletion(msg *anthropic.Message) models.Completion {
	c := models.Completion{
		FinishReason: string(msg.StopReason),
		Usage: models.CompletionUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			c.Text += b.Text
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			c.ToolCalls = append(c.ToolCalls, models.ToolCall{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	return c
}

func (p *AnthropicProvider) EstimateCost(model string, usage models.CompletionUsage) float64 {
	rate, ok := anthropicRates[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * rate[0]
	out := float64(usage.CompletionTokens) / 1_000_000 * rate[1]
	return in + out
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	msg := err.Error()
	reason := ReasonUnknown
	switch {
	case strings.Contains(msg, "429"):
		reason = ReasonRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		reason = ReasonAuthError
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		reason = ReasonServerError
	case strings.Contains(msg, "400"):
		reason = ReasonInvalid
	}
	return &FailoverError{Err: err, Provider: "anthropic", Model: model, Reason: reason}
}
