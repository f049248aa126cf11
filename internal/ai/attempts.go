package ai

import (
	"context"
	"fmt"
	"log/slog"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
)

type boundedOracle struct {
	next     Oracle
	attempts int
	logger   *slog.Logger
}

// WithAttempts retries next up to attempts times in total. The last error is
// returned as an OracleFailure.
func WithAttempts(next Oracle, attempts int, logger *slog.Logger) Oracle {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &boundedOracle{next: next, attempts: attempts, logger: logger}
}

func (o *boundedOracle) Optimize(ctx context.Context, assets []models.Asset, lookup YieldLookup) (*models.OptimizationResponse, error) {
	var lastErr error
	for i := 1; i <= o.attempts; i++ {
		resp, err := o.next.Optimize(ctx, assets, lookup)
		if err == nil {
			if err = ValidateResponse(resp); err == nil {
				return resp, nil
			}
		}
		lastErr = err
		o.logger.Warn("oracle attempt failed", "attempt", i, "max_attempts", o.attempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, apperr.Wrap(apperr.CodeOracleFailure,
		fmt.Sprintf("oracle failed after %d attempt(s)", o.attempts), lastErr)
}
