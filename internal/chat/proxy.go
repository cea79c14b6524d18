// Package chat forwards visitor conversations to a text-generation model speaking as the
// site owner.
package chat

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Clement3205902/Clement/internal/apperr"
	"go.uber.org/zap"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	defaultHistoryLimit = 10
	defaultOwnerName    = "Clement Ahorsu"
	fallbackReply       = "Sorry, I could not generate a response."

	opGenerateReply = "chat.generate_reply"
	ownerToken      = "{{owner}}"
)

//go:embed persona.txt
var defaultPersona string

var (
	// ErrMissingHistory indicates a request without a messages array.
	ErrMissingHistory = errors.New("chat: messages are required and must be an array")
	// ErrInvalidRole indicates a turn whose role is neither user nor assistant.
	ErrInvalidRole = errors.New("chat: invalid message role")
	// ErrNoChoices indicates a completion response without any choice.
	ErrNoChoices = errors.New("chat: completion returned no choices")
	// ErrChatDisabled indicates a proxy without a completion backend.
	ErrChatDisabled = errors.New("chat: completion backend not configured")
)

// Turn is one message of the visitor's conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the next assistant message for a conversation that starts with the
// system prompt. It returns ErrNoChoices when the model produced nothing.
type Completer interface {
	Complete(ctx context.Context, messages []Turn) (string, error)
}

// Metrics records reply outcomes. A nil Metrics disables recording.
type Metrics interface {
	RecordChatReply(outcome string)
}

// ProxyConfig describes the proxy's collaborators.
type ProxyConfig struct {
	Completer    Completer
	Persona      string
	OwnerName    string
	HistoryLimit int
	Metrics      Metrics
	Logger       *zap.Logger
}

// Proxy is the stateless chat proxy.
type Proxy struct {
	completer    Completer
	systemPrompt string
	ownerName    string
	historyLimit int
	metrics      Metrics
	logger       *zap.Logger
}

// NewProxy constructs a Proxy. A nil Completer yields a disabled proxy.
func NewProxy(cfg ProxyConfig) *Proxy {
	ownerName := strings.TrimSpace(cfg.OwnerName)
	if ownerName == "" {
		ownerName = defaultOwnerName
	}
	persona := strings.TrimSpace(cfg.Persona)
	if persona == "" {
		persona = strings.TrimSpace(defaultPersona)
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		completer:    cfg.Completer,
		systemPrompt: strings.ReplaceAll(persona, ownerToken, ownerName),
		ownerName:    ownerName,
		historyLimit: limit,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// LoadPersona reads a persona prompt from path. An empty path selects the built-in prompt.
func LoadPersona(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultPersona, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("chat: read persona: %w", err)
	}
	return string(content), nil
}

// Enabled reports whether a completion backend is configured.
func (p *Proxy) Enabled() bool {
	return p.completer != nil
}

// SystemPrompt returns the persona prompt prepended to every request.
func (p *Proxy) SystemPrompt() string {
	return p.systemPrompt
}

// Greeting returns the opening message of a new conversation.
func (p *Proxy) Greeting(displayName string) string {
	salutation := "Hi"
	if name := strings.TrimSpace(displayName); name != "" {
		salutation = "Hi " + name
	}
	return fmt.Sprintf("%s! I'm %s, a Mechanical Engineering student at Virginia Tech. "+
		"I'm excited to chat with you about engineering, my studies, or anything else you'd like to discuss. "+
		"What would you like to know about my journey in mechanical engineering?", salutation, p.ownerName)
}

// GenerateReply forwards the most recent turns of history, prefixed with the persona
// prompt, and returns the model's reply.
func (p *Proxy) GenerateReply(ctx context.Context, history []Turn) (string, error) {
	if history == nil {
		return "", apperr.InvalidInput(opGenerateReply, ErrMissingHistory)
	}
	for index, turn := range history {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return "", apperr.InvalidInput(opGenerateReply, fmt.Errorf("%w: %q at index %d", ErrInvalidRole, turn.Role, index))
		}
	}
	if p.completer == nil {
		p.record("disabled")
		return "", apperr.Unavailable(opGenerateReply, ErrChatDisabled)
	}

	recent := history
	if len(recent) > p.historyLimit {
		recent = recent[len(recent)-p.historyLimit:]
	}
	messages := make([]Turn, 0, len(recent)+1)
	messages = append(messages, Turn{Role: RoleSystem, Content: p.systemPrompt})
	messages = append(messages, recent...)

	reply, err := p.completer.Complete(ctx, messages)
	if err != nil {
		p.logger.Error("chat completion failed",
			zap.String("operation", opGenerateReply),
			zap.Int("turns", len(recent)),
			zap.Error(err))
		p.record("upstream_error")
		return "", apperr.Upstream(opGenerateReply, err)
	}
	if strings.TrimSpace(reply) == "" {
		p.record("fallback")
		return fallbackReply, nil
	}
	p.record("ok")
	return reply, nil
}

func (p *Proxy) record(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordChatReply(outcome)
	}
}
