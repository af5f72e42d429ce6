package routing

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/openai"
	"github.com/vnmchuo/llm-router/internal/routes"
	"github.com/vnmchuo/llm-router/internal/tokenizer"
)

func testCatalog() *routes.Catalog {
	return routes.New([]routes.Route{
		{Name: "route1", Description: "description1"},
		{Name: "route2", Description: "description2"},
	})
}

func newTestModel(maxTokens int) *ModelV1 {
	return NewModelV1(testCatalog(), "test-model", maxTokens, tokenizer.Heuristic{}, zap.NewNop())
}

func userMsg(text string) openai.Message {
	return openai.Message{Role: openai.RoleUser, Content: openai.Text(text)}
}

func assistantMsg(text string) openai.Message {
	return openai.Message{Role: openai.RoleAssistant, Content: openai.Text(text)}
}

func systemMsg(text string) openai.Message {
	return openai.Message{Role: openai.RoleSystem, Content: openai.Text(text)}
}

func promptText(t *testing.T, req *openai.ChatCompletionsRequest) string {
	t.Helper()
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 synthetic message, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != openai.RoleUser {
		t.Errorf("expected synthetic user message, got role %q", req.Messages[0].Role)
	}
	if req.Stream {
		t.Error("routing request must be non-streaming")
	}
	text, ok := req.Messages[0].Content.AsText()
	if !ok {
		t.Fatal("synthetic message content is not text")
	}
	return text
}

// conversationSection extracts the rendered conversation between the XML tags.
func conversationSection(t *testing.T, prompt string) string {
	t.Helper()
	// The first <conversation> pair in the template is part of the task
	// description; the rendered conversation sits in the last pair.
	start := strings.LastIndex(prompt, "<conversation>")
	end := strings.LastIndex(prompt, "</conversation>")
	if start == -1 || end == -1 || end < start {
		t.Fatalf("prompt missing conversation section:\n%s", prompt)
	}
	return strings.Trim(prompt[start+len("<conversation>"):end], "\n")
}

func TestGenerateRequestPromptFormat(t *testing.T) {
	expected := `
You are a helpful assistant designed to find the best suited route.
You are provided with route description within <routes></routes> XML tags:
<routes>
route1: description1
route2: description2
</routes>

Your task is to decide which route is best suit with user intent on the conversation in <conversation></conversation> XML tags.  Follow the instruction:
1. If the latest intent from user is irrelevant, response with empty route {"route": ""}.
2. If the user request is full fill and user thank or ending the conversation , response with empty route {"route": ""}.
3. Understand user latest intent and find the best match route in <routes></routes> xml tags.

Based on your analysis, provide your response in the following JSON formats if you decide to match any route:
{"route": "route_name"}


<conversation>
user: "Hello, I want to book a flight."
assistant: "Sure, where would you like to go?"
user: "seattle"
</conversation>
`

	m := newTestModel(1 << 20)
	req := m.GenerateRequest([]openai.Message{
		systemMsg("You are a helpful assistant."),
		userMsg("Hello, I want to book a flight."),
		assistantMsg("Sure, where would you like to go?"),
		userMsg("seattle"),
	})

	if req.Model != "test-model" {
		t.Errorf("expected routing model test-model, got %q", req.Model)
	}
	if got := promptText(t, req); got != expected {
		t.Errorf("prompt mismatch:\n--- want ---\n%s\n--- got ---\n%s", expected, got)
	}
}

func TestGenerateRequestExcludesSystemMessages(t *testing.T) {
	m := newTestModel(1 << 20)
	req := m.GenerateRequest([]openai.Message{
		systemMsg("secret system framing"),
		userMsg("hello"),
	})

	convo := conversationSection(t, promptText(t, req))
	if strings.Contains(convo, "system:") || strings.Contains(convo, "secret system framing") {
		t.Errorf("system message leaked into routing prompt:\n%s", convo)
	}
	if !strings.Contains(convo, `user: "hello"`) {
		t.Errorf("user message missing from routing prompt:\n%s", convo)
	}
}

func TestGenerateRequestTrimsOldestFirst(t *testing.T) {
	est := tokenizer.Heuristic{}
	msgs := []openai.Message{
		userMsg("Hi"),
		assistantMsg("Hello! How can I assist you"),
		userMsg("I want to book a flight."),
		assistantMsg("Sure, where would you like to go?"),
		userMsg("seattle"),
	}

	// Budget exactly covers the base template plus the last two messages.
	probe := newTestModel(1)
	base := est.Estimate(probe.render(""), "test-model")
	budget := base +
		est.Estimate(`assistant: "Sure, where would you like to go?"`, "test-model") +
		est.Estimate(`user: "seattle"`, "test-model")

	m := newTestModel(budget)
	convo := conversationSection(t, promptText(t, m.GenerateRequest(msgs)))

	want := "assistant: \"Sure, where would you like to go?\"\nuser: \"seattle\""
	if convo != want {
		t.Errorf("expected only the two most recent messages in order:\nwant:\n%s\ngot:\n%s", want, convo)
	}
}

func TestGenerateRequestKeepsChronologicalOrder(t *testing.T) {
	m := newTestModel(1 << 20)
	convo := conversationSection(t, promptText(t, m.GenerateRequest([]openai.Message{
		userMsg("first"),
		assistantMsg("second"),
		userMsg("third"),
	})))

	first := strings.Index(convo, "first")
	second := strings.Index(convo, "second")
	third := strings.Index(convo, "third")
	if first == -1 || second == -1 || third == -1 || !(first < second && second < third) {
		t.Errorf("kept messages reordered:\n%s", convo)
	}
}

func TestGenerateRequestOversizedUserMessageKept(t *testing.T) {
	est := tokenizer.Heuristic{}
	probe := newTestModel(1)
	base := est.Estimate(probe.render(""), "test-model")

	// Budget is the bare template: even the most recent message alone
	// overflows. A user message is kept anyway so there is always something
	// to route on.
	m := newTestModel(base)
	long := strings.Repeat("weather restaurants flights ", 20)
	convo := conversationSection(t, promptText(t, m.GenerateRequest([]openai.Message{
		userMsg("Hi"),
		assistantMsg("Hello! How can I assist you"),
		userMsg(long),
	})))

	if !strings.Contains(convo, long) {
		t.Errorf("oversized most recent user message was dropped:\n%s", convo)
	}
	if strings.Contains(convo, "Hi") || strings.Contains(convo, "assist") {
		t.Errorf("older messages kept despite exhausted budget:\n%s", convo)
	}
}

// Pins current behavior: when the most recent message exceeds the budget but
// is not from the user, it is dropped and the single oldest message is used
// instead, even though that prompt no longer reflects the latest turn.
func TestGenerateRequestOversizedAssistantMessageFallsBackToOldest(t *testing.T) {
	est := tokenizer.Heuristic{}
	probe := newTestModel(1)
	base := est.Estimate(probe.render(""), "test-model")

	m := newTestModel(base)
	long := strings.Repeat("here is a very long assistant answer ", 20)
	convo := conversationSection(t, promptText(t, m.GenerateRequest([]openai.Message{
		userMsg("oldest question"),
		assistantMsg("middle answer"),
		assistantMsg(long),
	})))

	if convo != `user: "oldest question"` {
		t.Errorf("expected fallback to the single oldest message, got:\n%s", convo)
	}
}

func TestParseResponse(t *testing.T) {
	m := newTestModel(2000)

	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid route", `{"route": "route1"}`, "route1", false},
		{"empty route", `{"route": ""}`, "", false},
		{"null route", `{"route": null}`, "", false},
		{"missing route field", `{}`, "", false},
		{"empty input", ``, "", false},
		{"truncated json", `{"route": "route1"`, "", true},
		{"single quotes and literal newline", `{'route': 'route2'}\n`, "route2", false},
		{"code fences", "```json\n{\"route\": \"route1\"}\n```", "route1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.ParseResponse(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got route %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected route %q, got %q", tc.want, got)
			}
		})
	}
}

func TestModelName(t *testing.T) {
	if got := newTestModel(100).ModelName(); got != "test-model" {
		t.Errorf("expected test-model, got %q", got)
	}
}
