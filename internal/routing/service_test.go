package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/adapters"
	"github.com/vnmchuo/llm-router/internal/openai"
)

func routingModelResponse(content string) string {
	resp := openai.ChatCompletionsResponse{
		ID: "resp-1",
		Choices: []openai.Choice{
			{Message: openai.Message{Role: openai.RoleAssistant, Content: openai.Text(content)}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestService(endpoint string) *Service {
	model := newTestModel(1 << 20)
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewService(model, adapters.OpenAI{}, endpoint, http.DefaultClient, tracer, zap.NewNop())
}

func TestDetermineRouteSelectsRoute(t *testing.T) {
	var gotBody openai.ChatCompletionsRequest
	var gotTraceParent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceParent = r.Header.Get("traceparent")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("routing endpoint received invalid body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(routingModelResponse(`{"route": "route1"}`)))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	route, err := s.DetermineRoute(context.Background(), []openai.Message{
		{Role: openai.RoleUser, Content: openai.Text("book me a flight")},
	}, "00-abc-def-01")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route != "route1" {
		t.Errorf("expected route1, got %q", route)
	}
	if gotTraceParent != "00-abc-def-01" {
		t.Errorf("traceparent not propagated, got %q", gotTraceParent)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("expected routing model test-model, got %q", gotBody.Model)
	}
	if gotBody.Stream {
		t.Error("routing call must be non-streaming")
	}
	if len(gotBody.Messages) != 1 {
		t.Fatalf("expected a single synthetic message, got %d", len(gotBody.Messages))
	}
	prompt, _ := gotBody.Messages[0].Content.AsText()
	if !strings.Contains(prompt, `user: "book me a flight"`) {
		t.Errorf("routing prompt missing conversation:\n%s", prompt)
	}
}

func TestDetermineRouteNoPreference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(routingModelResponse(`{"route": ""}`)))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	route, err := s.DetermineRoute(context.Background(), []openai.Message{
		{Role: openai.RoleUser, Content: openai.Text("thanks, bye")},
	}, "")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route != "" {
		t.Errorf("expected no preference, got %q", route)
	}
}

func TestDetermineRouteMalformedAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(routingModelResponse(`{"route": "route1"`)))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	if _, err := s.DetermineRoute(context.Background(), []openai.Message{
		{Role: openai.RoleUser, Content: openai.Text("hello")},
	}, ""); err == nil {
		t.Fatal("expected error for malformed routing answer")
	}
}

func TestDetermineRouteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	if _, err := s.DetermineRoute(context.Background(), []openai.Message{
		{Role: openai.RoleUser, Content: openai.Text("hello")},
	}, ""); err == nil {
		t.Fatal("expected error for failing routing endpoint")
	}
}

func TestDetermineRouteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"resp-1","choices":[]}`))
	}))
	defer srv.Close()

	s := newTestService(srv.URL)
	if _, err := s.DetermineRoute(context.Background(), []openai.Message{
		{Role: openai.RoleUser, Content: openai.Text("hello")},
	}, ""); err == nil {
		t.Fatal("expected error when routing model returns no choices")
	}
}
