package routing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/adapters"
	"github.com/vnmchuo/llm-router/internal/openai"
)

const traceParentHeader = "traceparent"

// Service orchestrates a routing decision: build the routing request, execute
// it against the routing-model endpoint (always non-streaming), and parse the
// answer. Failures surface to the caller; the proxy handler decides the
// user-visible consequence.
type Service struct {
	model    RouterModel
	adapter  adapters.ProviderAdapter
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	tracer   trace.Tracer
	logger   *zap.Logger
}

func NewService(model RouterModel, adapter adapters.ProviderAdapter, endpoint string, client *http.Client, tracer trace.Tracer, logger *zap.Logger) *Service {
	settings := gobreaker.Settings{
		Name:        "routing-model",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		model:    model,
		adapter:  adapter,
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		tracer:   tracer,
		logger:   logger,
	}
}

// DetermineRoute returns the route the routing model selected for the
// conversation, or the empty string when it expressed no preference. The
// inbound traceparent value, when present, is propagated verbatim to the
// routing-model call.
func (s *Service) DetermineRoute(ctx context.Context, messages []openai.Message, traceParent string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "routing.determine_route")
	defer span.End()
	span.SetAttributes(attribute.String("routing.model", s.model.ModelName()))

	req := s.model.GenerateRequest(messages)
	body, err := s.adapter.MarshalRequest(req)
	if err != nil {
		return "", err
	}

	content, err := s.callRoutingModel(ctx, body, traceParent)
	if err != nil {
		return "", err
	}

	route, err := s.model.ParseResponse(content)
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("routing.route", route))
	s.logger.Debug("routing decision",
		zap.String("model", s.model.ModelName()),
		zap.String("route", route))
	return route, nil
}

func (s *Service) callRoutingModel(ctx context.Context, body []byte, traceParent string) (string, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if traceParent != "" {
			httpReq.Header.Set(traceParentHeader, traceParent)
		}

		resp, err := s.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("routing model call failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read routing model response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("routing model returned status %d: %s", resp.StatusCode, respBody)
		}
		return respBody, nil
	})
	if err != nil {
		return "", err
	}

	parsed, err := s.adapter.UnmarshalResponse(result.([]byte))
	if err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("routing model returned no choices")
	}

	content, _ := parsed.Choices[0].Message.Content.AsText()
	return content, nil
}

// ModelName exposes the routing model's name for observability.
func (s *Service) ModelName() string {
	return s.model.ModelName()
}
