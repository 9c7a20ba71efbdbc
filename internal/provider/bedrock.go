package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/nova-run/orchestrator/pkg/models"
)

var bedrockRates = map[string][2]float64{
	"anthropic.claude-3-sonnet-20240229-v1:0": {3.00, 15.00},
	"anthropic.claude-3-haiku-20240307-v1:0":  {0.25, 1.25},
	"meta.llama3-70b-instruct-v1:0":           {2.65, 3.50},
}

// BedrockProvider adapts AWS Bedrock's Converse API to ChatProvider.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures BedrockProvider. If AccessKeyID/SecretAccessKey
// are empty, the default AWS credential chain (env, shared config, IAM
// role) is used.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) SupportsTools() bool { return true }

func (p *BedrockProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *BedrockProvider) convertMessages(messages []models.CompletionMessage) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		var role types.ConversationRole
		switch m.Role {
		case "assistant":
			role = types.ConversationRoleAssistant
		default:
			role = types.ConversationRoleUser
		}
		var blocks []types.ContentBlock
		if m.Content != "" {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}
		result = append(result, types.Message{Role: role, Content: blocks})
	}
	return result
}

func (p *BedrockProvider) Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	model := p.model(req.Model)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: p.convertMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}

	var out *bedrockruntime.ConverseOutput
	err := WithTimeout(ctx, "bedrock.converse", 0, func(cctx context.Context) error {
		o, err := p.client.Converse(cctx, input)
		if err != nil {
			return p.wrapError(err, model)
		}
		out = o
		return nil
	})
	if err != nil {
		return models.Completion{}, err
	}

	return p.toCompletion(out), nil
}

func (p *BedrockProvider) Stream(ctx context.Context, req models.CompletionRequest, onDelta func(StreamDelta) error) error {
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

func (p *BedrockProvider) toCompletion(out *bedrockruntime.ConverseOutput) models.Completion {
	c := models.Completion{}
	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if ok {
		for _, block := range msgOutput.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				c.Text += textBlock.Value
			}
		}
	}
	c.FinishReason = string(out.StopReason)
	if out.Usage != nil {
		c.Usage = models.CompletionUsage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return c
}

func (p *BedrockProvider) EstimateCost(model string, usage models.CompletionUsage) float64 {
	rate, ok := bedrockRates[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * rate[0]
	out := float64(usage.CompletionTokens) / 1_000_000 * rate[1]
	return in + out
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	msg := strings.ToLower(err.Error())
	reason := ReasonUnknown
	switch {
	case strings.Contains(msg, "throttl"):
		reason = ReasonRateLimit
	case strings.Contains(msg, "accessdenied") || strings.Contains(msg, "unauthorized"):
		reason = ReasonAuthError
	case strings.Contains(msg, "validationexception"):
		reason = ReasonInvalid
	case strings.Contains(msg, "serviceunavailable") || strings.Contains(msg, "internalserver"):
		reason = ReasonServerError
	}
	return &FailoverError{Err: err, Provider: "bedrock", Model: model, Reason: reason}
}
