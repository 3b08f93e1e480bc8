package openai

import (
	"context"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultModel = "gpt-4o"

// Client performs chat completions against the OpenAI API.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single system+user completion request.
type ChatRequest struct {
	Model     string
	System    string
	User      string
	JSON      bool // request a json_object response format
	MaxTokens int64
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// LogCost logs token usage with structured zap fields.
func (u Usage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("provider", "openai"),
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.PromptTokens),
		zap.Int64("output_tokens", u.CompletionTokens),
	)
}

type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates an OpenAI client. An empty model selects gpt-4o.
func NewClient(apiKey, model string, opts ...option.RequestOption) Client {
	if model == "" {
		model = defaultModel
	}
	return &sdkClient{
		client: sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  model,
	}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var msgs []sdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	msgs = append(msgs, sdk.UserMessage(req.User))

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}
	if len(completion.Choices) == 0 {
		return nil, eris.New("openai: completion returned no choices")
	}

	choice := completion.Choices[0]
	return &ChatResponse{
		ID:           completion.ID,
		Model:        completion.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}
