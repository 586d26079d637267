package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAIBackend implements Backend over the OpenAI chat completions API.
type OpenAIBackend struct {
	cfg    BackendConfig
	client openai.Client
}

func NewOpenAIBackend(cfg BackendConfig) *OpenAIBackend {
	cfg = cfg.withDefaults()
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

func (b *OpenAIBackend) Invoke(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Model: openai.ChatModel(b.cfg.Model),
	}
	if b.cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(b.cfg.Temperature)
	}
	if b.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(b.cfg.MaxTokens)
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}
	return completion.Choices[0].Message.Content, nil
}
