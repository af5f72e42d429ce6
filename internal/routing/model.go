// Package routing implements the routing decision engine: it turns a
// conversation into a bounded-size routing prompt, sends it to a dedicated
// routing model, and recovers that model's (possibly malformed) answer into a
// route selection.
package routing

import (
	"github.com/vnmchuo/llm-router/internal/openai"
)

// RouterModel is the reusable decision unit. GenerateRequest builds the
// outbound chat-completion request for the routing model; ParseResponse
// recovers the selected route from the model's textual answer. An empty route
// means "no preference, use the default upstream".
//
// Concrete strategies are selected at construction time; the rest of the
// gateway only ever sees this interface.
type RouterModel interface {
	GenerateRequest(messages []openai.Message) *openai.ChatCompletionsRequest
	ParseResponse(content string) (string, error)
	ModelName() string
}
