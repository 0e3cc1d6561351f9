package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// Service 把访谈历史交给所选模型，并以增量消息流返回下一轮回复。
type Service struct {
	chatModel model.BaseChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService 根据配置中的协议族创建模型，并编译对话链。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := NewChatModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel 使用给定的模型编译对话链，测试中用于注入假模型。
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// NewChatModel 按协议族分派，启动时调用一次。
func NewChatModel(cfg config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return newOpenAIChatModel(cfg)
	case config.ProviderAnthropic:
		return newAnthropicChatModel(cfg)
	default:
		return nil, fmt.Errorf("%w: provider %q", config.ErrUnknownModel, cfg.Provider)
	}
}

// StreamTurn 请求下一轮助手回复。返回的流由调用方负责关闭，提前关闭即中止生成。
func (s *Service) StreamTurn(ctx context.Context, messages []interview.Message) (*schema.StreamReader[*schema.Message], error) {
	input := map[string]any{
		"history": buildHistoryMessages(messages),
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	log.Debug().Str("component", "ai").Str("model", s.cfg.Model).Int("messages", len(messages)).Msg("turn requested")
	return stream, nil
}

// Model 返回当前使用的模型名称。
func (s *Service) Model() string {
	return s.cfg.Model
}

func buildHistoryMessages(messages []interview.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case interview.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		case interview.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case interview.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// generateFromStream 为只实现了流式接口的模型提供一次性生成。
func generateFromStream(ctx context.Context, m model.BaseChatModel, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	stream, err := m.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}
