package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"

	"github.com/zhouzirui/z-interview/backend/internal/config"
)

// greetingStandIn 是代替开场白之前用户发言的占位消息。
// Messages API 要求对话以用户消息开始。
const greetingStandIn = "Hi"

// anthropicChatModel 通过 any-llm-go 的 anthropic 后端实现 eino 的 BaseChatModel。
type anthropicChatModel struct {
	backend     anyllmlib.Provider
	model       string
	temperature *float64
	maxTokens   int
}

func newAnthropicChatModel(cfg config.AIConfig) (*anthropicChatModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model must not be empty")
	}

	opts := []anyllmlib.Option{anyllmlib.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}

	backend, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("anthropic: create backend: %w", err)
	}

	return &anthropicChatModel{
		backend:     backend,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (m *anthropicChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return generateFromStream(ctx, m, input, opts...)
}

func (m *anthropicChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params := m.buildParams(input, opts...)

	chunks, errs := m.backend.CompletionStream(ctx, params)

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()

		closed := false
		for chunk := range chunks {
			// 读取端关闭后继续排空，让后端协程能够退出。
			if closed || len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			closed = sw.Send(schema.AssistantMessage(text, nil), nil)
		}

		if err := <-errs; err != nil && !closed {
			sw.Send(nil, fmt.Errorf("anthropic: stream: %w", err))
		}
	}()

	return sr, nil
}

func (m *anthropicChatModel) buildParams(input []*schema.Message, opts ...model.Option) anyllmlib.CompletionParams {
	common := model.GetCommonOptions(&model.Options{}, opts...)

	messages := make([]anyllmlib.Message, 0, len(input)+1)
	// 首条非系统消息必须来自用户，访谈者先开口时在其前补上占位发言。
	leading := true
	for _, msg := range input {
		if msg.Role != schema.System {
			if leading && msg.Role != schema.User {
				messages = append(messages, anyllmlib.Message{
					Role:    string(schema.User),
					Content: greetingStandIn,
				})
			}
			leading = false
		}
		messages = append(messages, anyllmlib.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	if leading {
		messages = append(messages, anyllmlib.Message{
			Role:    string(schema.User),
			Content: greetingStandIn,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    m.model,
		Messages: messages,
	}

	if common.Temperature != nil {
		t := float64(*common.Temperature)
		params.Temperature = &t
	} else if m.temperature != nil {
		t := *m.temperature
		params.Temperature = &t
	}

	maxTokens := m.maxTokens
	if common.MaxTokens != nil {
		maxTokens = *common.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = &maxTokens
	}

	return params
}

var _ model.BaseChatModel = (*anthropicChatModel)(nil)
