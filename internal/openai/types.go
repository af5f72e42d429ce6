// Package openai defines the canonical chat-completion wire shapes the
// gateway routes on. Request bodies are decoded into these types for routing
// only; the original bytes are what gets forwarded upstream.
package openai

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content is a message body kept as raw JSON: a plain string for text
// messages, or a structured payload (content-part lists, tool results).
// Keeping it raw means the gateway never has to understand vendor-specific
// content schemas to route and relay.
type Content json.RawMessage

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *Content) UnmarshalJSON(data []byte) error {
	*c = append((*c)[:0], data...)
	return nil
}

// Text wraps a plain string as message content.
func Text(s string) Content {
	b, _ := json.Marshal(s)
	return Content(b)
}

// AsText returns the content as a plain string if it is one.
func (c Content) AsText() (string, bool) {
	var s string
	if err := json.Unmarshal([]byte(c), &s); err != nil {
		return "", false
	}
	return s, true
}

// JSON returns the serialized form of the content, "null" when absent.
func (c Content) JSON() string {
	if len(c) == 0 {
		return "null"
	}
	return string(c)
}

type Message struct {
	Role       string          `json:"role"`
	Content    Content         `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type ChatCompletionsRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions json.RawMessage `json:"stream_options,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type ChatCompletionsResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
