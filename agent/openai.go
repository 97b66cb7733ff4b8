package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/flightscout/flightscout/storage"
)

// OpenAIConfig configures the OpenAI-backed runtime.
type OpenAIConfig struct {
	// APIKey for the OpenAI API. Falls back to OPENAI_API_KEY when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string `yaml:"base_url"`

	// ChatModel drives the specialized agent turns.
	ChatModel string `yaml:"chat_model"`

	// ScopingModel drives the clarify and brief calls. Defaults to ChatModel.
	ScopingModel string `yaml:"scoping_model"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.ChatModel == "" {
		c.ChatModel = openai.GPT4oMini
	}
	if c.ScopingModel == "" {
		c.ScopingModel = c.ChatModel
	}
}

// OpenAIRuntime implements Runtime and Scoper over the OpenAI chat completion
// API. One runtime serves both agent roles; the role selects the instructions.
type OpenAIRuntime struct {
	client       *openai.Client
	chatModel    string
	scopingModel string
}

// NewOpenAIRuntime creates a runtime from config.
func NewOpenAIRuntime(cfg OpenAIConfig) *OpenAIRuntime {
	cfg.ApplyDefaults()
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIRuntime{
		client:       openai.NewClientWithConfig(clientCfg),
		chatModel:    cfg.ChatModel,
		scopingModel: cfg.ScopingModel,
	}
}

// RunTurn runs one chat turn for the given role. The buffer is read as
// context only; the caller records the exchange once it has committed it.
func (r *OpenAIRuntime) RunTurn(ctx context.Context, role storage.AgentRole, input string, conv *Conversation) (*TurnResult, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: InstructionsFor(role),
	}}
	if conv != nil {
		for _, m := range conv.Messages() {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Content})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.chatModel,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("chat turn (%s): %w", role, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat turn (%s): empty response", role)
	}
	text := resp.Choices[0].Message.Content

	return &TurnResult{Text: text, Usage: usageFrom(resp.Usage)}, nil
}

// Clarify asks the scoping model whether the conversation needs clarifying
// questions before a brief can be written.
func (r *OpenAIRuntime) Clarify(ctx context.Context, messages []storage.Message) (*Clarification, error) {
	raw, usage, err := r.scopingCall(ctx, clarifyInstructions, messages)
	if err != nil {
		return nil, fmt.Errorf("clarify: %w", err)
	}
	c := parseClarification(raw)
	c.Usage = usage
	return c, nil
}

// WriteBrief asks the scoping model to condense the conversation into the
// flight search brief.
func (r *OpenAIRuntime) WriteBrief(ctx context.Context, messages []storage.Message) (string, Usage, error) {
	raw, usage, err := r.scopingCall(ctx, briefInstructions, messages)
	if err != nil {
		return "", Usage{}, fmt.Errorf("write brief: %w", err)
	}
	return parseBrief(raw), usage, nil
}

// scopingCall runs one JSON-mode completion over the rendered conversation.
func (r *OpenAIRuntime) scopingCall(ctx context.Context, instructions string, messages []storage.Message) (string, Usage, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.scopingModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: RenderMessages(messages)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("empty response")
	}
	return resp.Choices[0].Message.Content, usageFrom(resp.Usage), nil
}

// parseClarification extracts the clarify JSON contract from raw model
// output. Unparseable output is treated as "no clarification needed" so a
// malformed reply degrades to writing the brief instead of blocking the user.
func parseClarification(raw string) *Clarification {
	if !gjson.Valid(raw) {
		return &Clarification{}
	}
	parsed := gjson.Parse(raw)
	c := &Clarification{NeedClarification: parsed.Get("need_clarification").Bool()}
	for _, q := range parsed.Get("questions").Array() {
		if s := strings.TrimSpace(q.String()); s != "" {
			c.Questions = append(c.Questions, s)
		}
	}
	if len(c.Questions) == 0 {
		c.NeedClarification = false
	}
	return c
}

// parseBrief extracts the brief JSON contract, falling back to the raw text
// when the model ignored the format.
func parseBrief(raw string) string {
	if gjson.Valid(raw) {
		if v := gjson.Get(raw, "flight_search_brief"); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return strings.TrimSpace(raw)
}

// RenderMessages renders a scoping conversation as alternating labeled turns.
func RenderMessages(messages []storage.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case storage.RoleUser:
			b.WriteString("User: ")
		case storage.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("System: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func chatRole(role string) string {
	switch role {
	case storage.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case storage.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func usageFrom(u openai.Usage) Usage {
	return Usage{
		TotalTokens:  u.TotalTokens,
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
}
