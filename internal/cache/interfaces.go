package cache

import (
	"context"

	"github.com/songzhibin97/walletopt/internal/models"
)

// Store 缓存后端. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ok=false on a miss or an expired entry.
	Get(ctx context.Context, key string) (resp *models.OptimizationResponse, ok bool, err error)
	Set(ctx context.Context, key string, resp *models.OptimizationResponse) error
	Name() string
}
