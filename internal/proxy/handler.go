// Package proxy is the request entry point: it validates and parses the
// inbound chat-completion payload, asks the routing engine for a provider
// preference, and transparently forwards the original bytes to the upstream,
// relaying the response back buffered or as a live stream.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/auth"
	"github.com/vnmchuo/llm-router/internal/decisionlog"
	"github.com/vnmchuo/llm-router/internal/openai"
	"github.com/vnmchuo/llm-router/internal/telemetry"
	"github.com/vnmchuo/llm-router/internal/tokenizer"
	"github.com/vnmchuo/llm-router/pkg/ratelimit"
)

// MaxBodyBytes is the inbound request body ceiling. Bodies declaring or
// reaching a larger size are rejected before any parsing or routing work.
const MaxBodyBytes = 1024 * 1024

// ProviderHintHeader carries the routing decision to the upstream. It is set
// only when the routing model selected a route, never empty.
const ProviderHintHeader = "x-arch-llm-provider-hint"

const traceParentHeader = "traceparent"

// RouteResolver is the routing engine as the handler sees it.
type RouteResolver interface {
	DetermineRoute(ctx context.Context, messages []openai.Message, traceParent string) (string, error)
	ModelName() string
}

type Handler struct {
	router    RouteResolver
	endpoint  string
	client    *http.Client
	limiter   *ratelimit.Limiter
	decisions decisionlog.Store
	estimator tokenizer.Estimator
	logger    *zap.Logger
}

// NewHandler builds the proxy handler. The HTTP client is shared across
// requests for connection pooling; limiter and decisions may be nil to
// disable rate limiting and decision auditing.
func NewHandler(router RouteResolver, endpoint string, client *http.Client, limiter *ratelimit.Limiter, decisions decisionlog.Store, estimator tokenizer.Estimator, logger *zap.Logger) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		router:    router,
		endpoint:  endpoint,
		client:    client,
		limiter:   limiter,
		decisions: decisions,
		estimator: estimator,
		logger:    logger,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	telemetry.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleChatCompletions proxies one chat-completion request: size check,
// parse, route, forward, relay.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if r.ContentLength > MaxBodyBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body too large: %d bytes", r.ContentLength))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		return
	}

	var chatReq openai.ChatCompletionsRequest
	if err := json.Unmarshal(body, &chatReq); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request body: %v", err))
		return
	}

	traceParent := r.Header.Get(traceParentHeader)

	if h.limiter != nil {
		if tenantID := auth.GetTenantID(ctx); tenantID != "" {
			tokens := h.estimator.Estimate(string(body), chatReq.Model)
			allowed, err := h.limiter.Allow(ctx, tenantID, tokens)
			if err != nil || !allowed {
				w.Header().Set("Retry-After", "60")
				h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
	}

	routeStart := time.Now()
	route, err := h.router.DetermineRoute(ctx, chatReq.Messages, traceParent)
	if err != nil {
		telemetry.RoutingFailuresTotal.Inc()
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to determine route: %v", err))
		return
	}
	routeLatency := time.Since(routeStart)

	routeLabel := route
	if routeLabel == "" {
		routeLabel = "none"
	}
	telemetry.RoutingDecisionsTotal.WithLabelValues(routeLabel).Inc()

	h.logDecision(ctx, &chatReq, route, routeLatency)

	// The body is forwarded verbatim: it was parsed for routing only, never
	// re-encoded, so provider compatibility is bit for bit.
	outReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build upstream request: %v", err))
		return
	}
	copyHeaders(outReq.Header, r.Header)
	if traceParent != "" {
		outReq.Header.Set(traceParentHeader, traceParent)
	}
	if route != "" {
		outReq.Header.Set(ProviderHintHeader, route)
	} else {
		outReq.Header.Del(ProviderHintHeader)
	}

	h.logger.Info("forwarding request to llm provider",
		zap.String("endpoint", h.endpoint),
		zap.String("route", route),
		zap.String("model", chatReq.Model),
		zap.Bool("stream", chatReq.Stream))

	resp, err := h.client.Do(outReq)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to send request: %v", err))
		return
	}
	defer resp.Body.Close()

	telemetry.RequestDuration.Observe(time.Since(start).Seconds())

	if chatReq.Stream {
		h.relayStream(w, r, resp)
		return
	}
	h.relayBuffered(w, resp)
}

// relayBuffered reads the whole upstream body before touching the response,
// so a mid-read failure can still map to a clean 500.
func (h *Handler) relayBuffered(w http.ResponseWriter, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read response: %v", err))
		return
	}

	telemetry.RequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// relayStream forwards upstream chunks in arrival order through a bounded
// channel. Once the status line is out there is no way to signal an upstream
// failure, so errors truncate the stream.
func (h *Handler) relayStream(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	telemetry.RequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	frames := relayFrames(r.Context(), resp.Body, h.logger)
	for frame := range frames {
		if _, err := w.Write(frame); err != nil {
			// Client went away; the producer stops via context cancellation.
			break
		}
		flusher.Flush()
	}
}

func (h *Handler) logDecision(ctx context.Context, req *openai.ChatCompletionsRequest, route string, latency time.Duration) {
	if h.decisions == nil {
		return
	}
	tenantID := auth.GetTenantID(ctx)
	requestID := auth.GetRequestID(ctx)
	go func() {
		_ = h.decisions.LogDecision(context.Background(), &decisionlog.Decision{
			TenantID:     tenantID,
			RequestID:    requestID,
			Model:        req.Model,
			Route:        route,
			RoutingModel: h.router.ModelName(),
			LatencyMs:    latency.Milliseconds(),
		})
	}()
}

// HandleDecisions lists a tenant's recent routing decisions.
func (h *Handler) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.decisions == nil {
		h.writeError(w, http.StatusNotFound, "decision log disabled")
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	decisions, err := h.decisions.GetByTenant(ctx, tenantID, from, to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"total":     len(decisions),
		"decisions": decisions,
		"from":      from,
		"to":        to,
	})
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		switch name {
		case "Host", "Content-Length", "Connection":
			continue
		}
		dst[name] = append([]string(nil), values...)
	}
}
