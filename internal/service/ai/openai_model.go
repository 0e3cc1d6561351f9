package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/zhouzirui/z-interview/backend/internal/config"
)

// openAIChatModel 通过 Chat Completions 流式接口实现 eino 的 BaseChatModel。
type openAIChatModel struct {
	client      oai.Client
	model       string
	temperature *float64
	maxTokens   int
}

func newOpenAIChatModel(cfg config.AIConfig, opts ...option.RequestOption) (*openAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &openAIChatModel{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (m *openAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return generateFromStream(ctx, m, input, opts...)
}

func (m *openAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(text, nil), nil); closed {
				return
			}
		}

		if err := stream.Err(); err != nil {
			sw.Send(nil, fmt.Errorf("openai: stream: %w", err))
		}
	}()

	return sr, nil
}

func (m *openAIChatModel) buildParams(input []*schema.Message, opts ...model.Option) (oai.ChatCompletionNewParams, error) {
	common := model.GetCommonOptions(&model.Options{}, opts...)

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			messages = append(messages, oai.SystemMessage(msg.Content))
		case schema.User:
			messages = append(messages, oai.UserMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, oai.AssistantMessage(msg.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unsupported message role %q", msg.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.model),
		Messages: messages,
	}

	if common.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*common.Temperature))
	} else if m.temperature != nil {
		params.Temperature = param.NewOpt(*m.temperature)
	}

	maxTokens := m.maxTokens
	if common.MaxTokens != nil {
		maxTokens = *common.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	return params, nil
}

var _ model.BaseChatModel = (*openAIChatModel)(nil)
