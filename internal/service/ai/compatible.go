package ai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// CompatibleResponder talks to any OpenAI-compatible endpoint (ollama, vLLM, LM Studio).
type CompatibleResponder struct {
	client *goopenai.Client
	model  string
}

func NewCompatibleResponder(baseURL, apiKey, model string) *CompatibleResponder {
	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &CompatibleResponder{
		client: goopenai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (r *CompatibleResponder) Generate(ctx context.Context, prompt, persona string) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if persona != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: persona})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})

	resp, err := r.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
