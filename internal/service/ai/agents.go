package ai

import (
	"context"
	"fmt"
	"strings"

	"motivechat/internal/apperr"
)

const (
	AgentChat   = "chat"
	AgentSearch = "search"

	chatPersona = "You are a helpful, friendly assistant. Answer clearly and concisely."
)

// Agent answers a single free-form message.
type Agent interface {
	Execute(ctx context.Context, message string) (string, error)
	Capabilities() []string
}

// ChatAgent is a plain conversational agent on top of a Responder.
type ChatAgent struct {
	responder Responder
}

func NewChatAgent(responder Responder) *ChatAgent {
	return &ChatAgent{responder: responder}
}

func (a *ChatAgent) Execute(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.Validation("message cannot be empty")
	}
	reply, err := a.responder.Generate(ctx, message, chatPersona)
	if err != nil {
		return "", apperr.Gateway(err)
	}
	return reply, nil
}

func (a *ChatAgent) Capabilities() []string {
	return []string{"conversation", "text_generation"}
}

// Execute runs a search with the default result count.
func (a *SearchAgent) Execute(ctx context.Context, message string) (string, error) {
	return a.Search(ctx, message, DefaultSearchResults)
}

func (a *SearchAgent) Capabilities() []string {
	return []string{"web_search", "url_fetch", "summarization"}
}

// Registry maps agent types to agents.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces the agent for name.
func (r *Registry) Register(name string, agent Agent) {
	r.agents[name] = agent
}

// Get returns the agent for name; an empty name selects the chat agent.
func (r *Registry) Get(name string) (Agent, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = AgentChat
	}
	agent, ok := r.agents[name]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown agent type %q", name))
	}
	return agent, nil
}

// Capabilities lists each registered agent's capabilities keyed by "<type>_agent".
func (r *Registry) Capabilities() map[string][]string {
	out := make(map[string][]string, len(r.agents))
	for name, agent := range r.agents {
		out[name+"_agent"] = agent.Capabilities()
	}
	return out
}
