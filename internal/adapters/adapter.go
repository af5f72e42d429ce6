// Package adapters translates the canonical chat-completion shapes to and
// from vendor wire formats. The routing core only depends on the canonical
// shapes; vendors plug in at this boundary.
package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/vnmchuo/llm-router/internal/openai"
)

type ProviderAdapter interface {
	Name() string
	MarshalRequest(req *openai.ChatCompletionsRequest) ([]byte, error)
	UnmarshalResponse(data []byte) (*openai.ChatCompletionsResponse, error)
}

// OpenAI is the identity adapter: the canonical shapes are already the OpenAI
// wire format, so it is a straight encode/decode.
type OpenAI struct{}

func (OpenAI) Name() string {
	return "openai"
}

func (OpenAI) MarshalRequest(req *openai.ChatCompletionsRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat completion request: %w", err)
	}
	return body, nil
}

func (OpenAI) UnmarshalResponse(data []byte) (*openai.ChatCompletionsResponse, error) {
	var resp openai.ChatCompletionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode chat completion response: %w", err)
	}
	return &resp, nil
}
