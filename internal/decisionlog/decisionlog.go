// Package decisionlog records routing decisions for audit and debugging:
// which route the routing model picked for a request, and how long the
// decision took.
package decisionlog

import (
	"context"
	"time"
)

type Decision struct {
	ID           string
	TenantID     string
	RequestID    string
	Model        string
	Route        string // empty when the routing model expressed no preference
	RoutingModel string
	LatencyMs    int64
	CreatedAt    time.Time
}

type Store interface {
	LogDecision(ctx context.Context, d *Decision) error
	GetByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Decision, error)
}
