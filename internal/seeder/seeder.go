package seeder

import (
	"context"

	"go.uber.org/zap"

	"github.com/vnmchuo/llm-router/internal/auth"
)

const (
	TestAPIKey   = "test-api-key-12345"
	TestTenantID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAPIKey inserts a well-known API key for local development.
func SeedTestAPIKey(ctx context.Context, store auth.Store, logger *zap.Logger) {
	apiKey := &auth.APIKey{
		TenantID:  TestTenantID,
		KeyHash:   auth.HashKey(TestAPIKey),
		RateLimit: 1000000,
		Active:    true,
	}

	if err := store.Create(ctx, apiKey); err != nil {
		logger.Info("test api key may already exist, skipping", zap.Error(err))
		return
	}
	logger.Info("test api key created",
		zap.String("key", TestAPIKey),
		zap.String("tenant_id", TestTenantID))
}
