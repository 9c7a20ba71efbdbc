package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nova-run/orchestrator/pkg/models"
)

var openAIRates = map[string][2]float64{
	"gpt-4o":      {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
	"o3":          {10.00, 40.00},
}

// OpenAIProvider adapts any OpenAI-compatible chat-completions endpoint to
// ChatProvider.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures OpenAIProvider. BaseURL lets this backend also
// front OpenAI-compatible gateways.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *OpenAIProvider) buildRequest(req models.CompletionRequest) openai.ChatCompletionRequest {
	messages := p.convertMessages(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}
	return chatReq
}

func (p *OpenAIProvider) convertMessages(messages []models.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case "user", "system":
			result = append(result, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)
		case "tool":
			for _, tr := range m.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}
	return result
}

func (p *OpenAIProvider) convertTools(tools []models.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	chatReq := p.buildRequest(req)

	var resp openai.ChatCompletionResponse
	err := WithTimeout(ctx, "openai.create", 0, func(cctx context.Context) error {
		r, err := p.client.CreateChatCompletion(cctx, chatReq)
		if err != nil {
			return p.wrapError(err, chatReq.Model)
		}
		resp = r
		return nil
	})
	if err != nil {
		return models.Completion{}, err
	}

	return p.toCompletion(resp), nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(StreamDelta) error) error {
	chatReq := p.buildRequest(req)
	chatReq.Stream = true

	return WithTimeout(ctx, "openai.stream", 0, func(cctx context.Context) error {
		stream, err := p.client.CreateChatCompletionStream(cctx, chatReq)
		if err != nil {
			return p.wrapError(err, chatReq.Model)
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return onDelta(StreamDelta{Done: true})
			}
			if err != nil {
				return p.wrapError(err, chatReq.Model)
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if err := onDelta(StreamDelta{Text: delta.Content}); err != nil {
					return err
				}
			}
		}
	})
}

func (p *OpenAIProvider) toCompletion(resp openai.ChatCompletionResponse) models.Completion {
	c := models.Completion{
		Usage: models.CompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return c
	}
	choice := resp.Choices[0]
	c.Text = choice.Message.Content
	c.FinishReason = string(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		c.ToolCalls = append(c.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return c
}

func (p *OpenAIProvider) EstimateCost(model string, usage models.CompletionUsage) float64 {
	rate, ok := openAIRates[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * rate[0]
	out := float64(usage.CompletionTokens) / 1_000_000 * rate[1]
	return in + out
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	msg := err.Error()
	reason := ReasonUnknown
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 429:
			reason = ReasonRateLimit
		case 401, 403:
			reason = ReasonAuthError
		case 500, 502, 503:
			reason = ReasonServerError
		case 400:
			reason = ReasonInvalid
		}
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprintf("%v", apiErr.Code)
		}
		return &FailoverError{Err: err, Provider: "openai", Model: model, Reason: reason, Status: apiErr.HTTPStatusCode, Code: code}
	}
	switch {
	case strings.Contains(msg, "429"):
		reason = ReasonRateLimit
	case strings.Contains(msg, "context deadline exceeded"):
		reason = ReasonTimeout
	}
	return &FailoverError{Err: err, Provider: "openai", Model: model, Reason: reason}
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
