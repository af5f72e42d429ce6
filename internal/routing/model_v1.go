package routing

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/openai"
	"github.com/vnmchuo/llm-router/internal/routes"
	"github.com/vnmchuo/llm-router/internal/tokenizer"
)

// DefaultMaxTokens bounds the routing prompt size when no explicit budget is
// configured.
const DefaultMaxTokens = 2048

const systemPromptV1 = `
You are a helpful assistant designed to find the best suited route.
You are provided with route description within <routes></routes> XML tags:
<routes>
{routes}
</routes>

Your task is to decide which route is best suit with user intent on the conversation in <conversation></conversation> XML tags.  Follow the instruction:
1. If the latest intent from user is irrelevant, response with empty route {"route": ""}.
2. If the user request is full fill and user thank or ending the conversation , response with empty route {"route": ""}.
3. Understand user latest intent and find the best match route in <routes></routes> xml tags.

Based on your analysis, provide your response in the following JSON formats if you decide to match any route:
{"route": "route_name"}


<conversation>
{conversation}
</conversation>
`

// ModelV1 is the budget-trimmed router strategy: conversation history is
// rendered into a fixed prompt template and trimmed from the oldest end until
// the estimated token count fits the budget.
type ModelV1 struct {
	routes    string
	model     string
	maxTokens int
	estimator tokenizer.Estimator
	logger    *zap.Logger
}

func NewModelV1(catalog *routes.Catalog, model string, maxTokens int, est tokenizer.Estimator, logger *zap.Logger) *ModelV1 {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelV1{
		routes:    catalog.Describe(),
		model:     model,
		maxTokens: maxTokens,
		estimator: est,
		logger:    logger,
	}
}

type promptLine struct {
	role string
	text string
}

// GenerateRequest renders the conversation into the routing prompt and wraps
// it as a single synthetic user message addressed to the routing model,
// always non-streaming.
func (m *ModelV1) GenerateRequest(messages []openai.Message) *openai.ChatCompletionsRequest {
	// The template supplies its own system framing, so inbound system
	// messages never appear in the routing prompt.
	lines := make([]promptLine, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == openai.RoleSystem {
			continue
		}
		lines = append(lines, promptLine{
			role: msg.Role,
			text: fmt.Sprintf("%s: %s", msg.Role, msg.Content.JSON()),
		})
	}

	kept := m.trimToBudget(lines)
	prompt := m.render(strings.Join(kept, "\n"))

	return &openai.ChatCompletionsRequest{
		Model: m.model,
		Messages: []openai.Message{
			{Role: openai.RoleUser, Content: openai.Text(prompt)},
		},
		Stream: false,
	}
}

// trimToBudget walks the conversation newest to oldest, keeping messages
// while the estimated prompt size fits the budget. Exclusion starts at the
// first message that would overflow and covers everything older, so kept
// messages are always a contiguous most-recent suffix in original order.
//
// Two deliberate exceptions:
//   - an oversized most-recent user message is kept anyway, so there is
//     always something reflecting current intent to route on;
//   - an oversized most-recent non-user message is dropped, and if nothing
//     survives the walk the single oldest message is used instead. That
//     fallback can produce a prompt disconnected from the latest turn; it is
//     pinned by a regression test rather than changed here.
func (m *ModelV1) trimToBudget(lines []promptLine) []string {
	if len(lines) == 0 {
		return nil
	}

	base := m.estimator.Estimate(m.render(""), m.model)
	total := base
	keepFrom := len(lines)

	for i := len(lines) - 1; i >= 0; i-- {
		cost := m.estimator.Estimate(lines[i].text, m.model)
		if total+cost > m.maxTokens {
			if i == len(lines)-1 && lines[i].role == openai.RoleUser {
				m.logger.Debug("most recent user message alone exceeds budget, keeping it",
					zap.Int("cost", cost),
					zap.Int("max_tokens", m.maxTokens))
				keepFrom = i
			} else {
				m.logger.Debug("token budget exceeded, truncating conversation",
					zap.Int("kept", len(lines)-keepFrom),
					zap.Int("dropped", keepFrom),
					zap.Int("max_tokens", m.maxTokens))
			}
			break
		}
		total += cost
		keepFrom = i
	}

	if keepFrom == len(lines) {
		m.logger.Debug("no message fits the budget, falling back to the oldest message")
		return []string{lines[0].text}
	}

	kept := make([]string, 0, len(lines)-keepFrom)
	for _, l := range lines[keepFrom:] {
		kept = append(kept, l.text)
	}
	return kept
}

func (m *ModelV1) render(conversation string) string {
	prompt := strings.Replace(systemPromptV1, "{routes}", m.routes, 1)
	return strings.Replace(prompt, "{conversation}", conversation, 1)
}

type routeAnswer struct {
	Route *string `json:"route"`
}

// ParseResponse recovers the selected route from the routing model's answer.
// Empty input and an empty, null or missing route field all mean "no
// preference". Malformed JSON that survives the repair pass is a hard error,
// never retried or guessed at.
func (m *ModelV1) ParseResponse(content string) (string, error) {
	if content == "" {
		return "", nil
	}

	fixed := repairJSONResponse(content)

	var answer routeAnswer
	if err := json.Unmarshal([]byte(fixed), &answer); err != nil {
		return "", fmt.Errorf("malformed routing answer: %w", err)
	}
	if answer.Route == nil {
		return "", nil
	}
	return *answer.Route, nil
}

func (m *ModelV1) ModelName() string {
	return m.model
}

// repairJSONResponse tolerates the JSON-like-but-not-JSON text small routing
// models tend to emit: single-quoted fields, literal \n escapes, and code
// fences around the object.
func repairJSONResponse(body string) string {
	s := strings.ReplaceAll(body, "'", `"`)
	s = strings.ReplaceAll(s, `\n`, "")
	s = strings.TrimPrefix(s, "```json")
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return s
}
