package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/genai"

	"github.com/nova-run/orchestrator/pkg/models"
)

var geminiRates = map[string][2]float64{
	"gemini-2.0-flash": {0.10, 0.40},
	"gemini-2.5-pro":   {1.25, 10.00},
}

// GeminiProvider adapts Google's genai SDK to ChatProvider. The client
// always authenticates with the configured API key. When a TokenSource is
// configured, Create fetches a token from it (refreshing it if expired)
// before each call and fails if that fetch fails; the token itself is not
// attached to the request, and models.Turn.ProviderAccessToken is not read.
type GeminiProvider struct {
	client       *genai.Client
	tokenSource  oauth2.TokenSource
	defaultModel string
}

// GeminiConfig configures GeminiProvider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
	TokenSource  oauth2.TokenSource // optional; fetched before each call, not used for auth
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" && cfg.TokenSource == nil {
		return nil, fmt.Errorf("gemini: API key or token source is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiProvider{
		client:       client,
		tokenSource:  cfg.TokenSource,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) SupportsTools() bool { return true }

func (p *GeminiProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// refreshedToken returns a valid OAuth access token when the provider was
// configured with a token source, refreshing it first if expired.
func (p *GeminiProvider) refreshedToken(ctx context.Context) (string, error) {
	if p.tokenSource == nil {
		return "", nil
	}
	tok, err := p.tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("gemini: refresh oauth token: %w", err)
	}
	return tok.AccessToken, nil
}

func (p *GeminiProvider) convertMessages(messages []models.CompletionMessage) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		content := &genai.Content{}
		switch m.Role {
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}
		if m.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
		}
		for _, tr := range m.ToolResults {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     tr.ToolCallID,
					Response: map[string]any{"content": tr.Content},
				},
			})
		}
		if len(content.Parts) == 0 {
			continue
		}
		result = append(result, content)
	}
	return result
}

func (p *GeminiProvider) buildConfig(req models.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = p.convertTools(req.Tools)
	}
	return cfg
}

func (p *GeminiProvider) convertTools(tools []models.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema genai.Schema
		if err := json.Unmarshal(t.InputSchema, &schema); err == nil {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  &schema,
			})
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GeminiProvider) Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	model := p.model(req.Model)
	contents := p.convertMessages(req.Messages)
	cfg := p.buildConfig(req)

	if _, err := p.refreshedToken(ctx); err != nil {
		return models.Completion{}, err
	}

	var resp *genai.GenerateContentResponse
	err := WithTimeout(ctx, "gemini.generate", 0, func(cctx context.Context) error {
		r, err := p.client.Models.GenerateContent(cctx, model, contents, cfg)
		if err != nil {
			return p.wrapError(err, model)
		}
		resp = r
		return nil
	})
	if err != nil {
		return models.Completion{}, err
	}

	return p.toCompletion(resp), nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(StreamDelta) error) error {
	c, err := p.Create(ctx, req)
	if err != nil {
		return err
	}
	if c.Text != "" {
		if err := onDelta(StreamDelta{Text: c.Text}); err != nil {
			return err
		}
	}
	return onDelta(StreamDelta{Done: true})
}

func (p *GeminiProvider) toCompletion(resp *genai.GenerateContentResponse) models.Completion {
	c := models.Completion{}
	if resp.UsageMetadata != nil {
		c.Usage = models.CompletionUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return c
	}
	cand := resp.Candidates[0]
	c.FinishReason = string(cand.FinishReason)
	if cand.Content == nil {
		return c
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			c.Text += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			c.ToolCalls = append(c.ToolCalls, models.ToolCall{Name: part.FunctionCall.Name, Input: args})
		}
	}
	return c
}

func (p *GeminiProvider) EstimateCost(model string, usage models.CompletionUsage) float64 {
	rate, ok := geminiRates[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * rate[0]
	out := float64(usage.CompletionTokens) / 1_000_000 * rate[1]
	return in + out
}

func (p *GeminiProvider) wrapError(err error, model string) error {
	msg := strings.ToLower(err.Error())
	reason := ReasonUnknown
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted"):
		reason = ReasonRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "permission_denied"):
		reason = ReasonAuthError
	case strings.Contains(msg, "500") || strings.Contains(msg, "unavailable"):
		reason = ReasonServerError
	case strings.Contains(msg, "invalid_argument"):
		reason = ReasonInvalid
	}
	return &FailoverError{Err: err, Provider: "gemini", Model: model, Reason: reason}
}
