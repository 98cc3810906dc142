package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"motivechat/internal/config"
)

// NewFromConfig builds the responder selected by cfg.AI, wrapped in a Gateway
// with the configured timeout.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if provider == "" {
		return nil, fmt.Errorf("ai.provider must be configured")
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.AI.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var inner Responder
	switch provider {
	case "compatible", "ollama":
		inner = NewCompatibleResponder(provCfg.BaseURL, provCfg.APIKey, modelName)
	default:
		chatModel, err := NewChatModel(ctx, provider, modelName, provCfg)
		if err != nil {
			return nil, err
		}
		inner = NewChatModelResponder(chatModel)
	}
	return NewGateway(inner, cfg.AITimeout()), nil
}

// NewChatModel creates an eino chat model for openai, gemini or claude.
func NewChatModel(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", provider)
	}
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, clientErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("gemini client: %w", clientErr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 1024,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// ChatModelResponder adapts an eino chat model to Responder.
type ChatModelResponder struct {
	chatModel model.BaseChatModel
}

func NewChatModelResponder(chatModel model.BaseChatModel) *ChatModelResponder {
	return &ChatModelResponder{chatModel: chatModel}
}

// Generate sends the persona as the system message and the prompt as the user message.
func (r *ChatModelResponder) Generate(ctx context.Context, prompt, persona string) (string, error) {
	resp, err := r.chatModel.Generate(ctx, buildMessages(prompt, persona))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", errEmptyReply
	}
	return resp.Content, nil
}

func buildMessages(prompt, persona string) []*schema.Message {
	messages := make([]*schema.Message, 0, 2)
	if persona != "" {
		messages = append(messages, schema.SystemMessage(persona))
	}
	return append(messages, schema.UserMessage(prompt))
}
