package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"

	"motivechat/internal/apperr"
	"motivechat/internal/config"
)

const (
	DefaultSearchResults = 5
	MaxSearchResults     = 10

	searchPersona = "You are a research assistant. Use the web_search tool to look things up, " +
		"then answer with a comprehensive summary of the key findings. Mention sources when available."
)

// Searcher answers a query with a summary of web results.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}

// SearchAgent runs a react agent with the web search tool.
type SearchAgent struct {
	chatModel model.ToolCallingChatModel
	timeout   time.Duration
	toolsFor  func(ctx context.Context, maxResults int) []tool.BaseTool
}

// NewSearchAgent creates a search agent on top of a tool calling chat model.
func NewSearchAgent(chatModel model.ToolCallingChatModel, timeout time.Duration) *SearchAgent {
	return &SearchAgent{
		chatModel: chatModel,
		timeout:   timeout,
		toolsFor: func(ctx context.Context, maxResults int) []tool.BaseTool {
			if ws := InitWebSearch(ctx, maxResults); ws != nil {
				return []tool.BaseTool{ws}
			}
			return nil
		},
	}
}

// Search validates the query and returns the agent's summary.
func (a *SearchAgent) Search(ctx context.Context, query string, maxResults int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", apperr.Validation("query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = DefaultSearchResults
	}
	if maxResults > MaxSearchResults {
		maxResults = MaxSearchResults
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	tools := a.toolsFor(ctx, maxResults)
	if len(tools) == 0 {
		return "", apperr.Gateway(errors.New("no search tools available"))
	}
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: a.chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
	})
	if err != nil {
		return "", apperr.Gateway(fmt.Errorf("init react agent: %w", err))
	}

	prompt := fmt.Sprintf("Search for information about: %s. Provide a comprehensive summary with key findings.", query)
	resp, err := agent.Generate(ctx, buildMessages(prompt, searchPersona))
	if err != nil {
		return "", apperr.Gateway(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", apperr.Gateway(errEmptyReply)
	}
	return strings.TrimSpace(resp.Content), nil
}

// NewSearchAgentFromConfig builds a search agent on the configured provider.
// OpenAI-compatible endpoints are not supported since the agent needs tool calling.
func NewSearchAgentFromConfig(ctx context.Context, cfg *config.Config) (*SearchAgent, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.AI.Model
	if modelName == "" {
		modelName = provCfg.Model
	}
	chatModel, err := NewChatModel(ctx, provider, modelName, provCfg)
	if err != nil {
		return nil, err
	}
	return NewSearchAgent(chatModel, cfg.AITimeout()), nil
}
