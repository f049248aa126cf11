package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/observability"
)

// Optimizer is the pipeline surface served over HTTP.
type Optimizer interface {
	Optimize(ctx context.Context, raw []models.RawHolding) (*models.OptimizationResponse, error)
	OptimizeWithTx(ctx context.Context, raw []models.RawHolding, userPublicKey string) (*models.OptimizationResponseWithTx, error)
	BuildTransaction(ctx context.Context, action models.OptimizationAction, userPublicKey string) (models.QuoteResult, error)
}

// NewRouter wires routes and middleware. metrics may be nil.
func NewRouter(svc Optimizer, metrics *observability.Metrics, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	router := gin.New()
	router.Use(RequestID(), AccessLog(logger, "/healthz", "/metrics"), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	optimization := router.Group("/optimization")
	optimization.POST("/solana", h.optimize)
	optimization.POST("/solana/transactions", h.optimizeWithTx)

	router.POST("/transactions/solana", h.buildTransaction)
	return router
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// oracle calls with tool rounds can take well over a minute
		WriteTimeout: 180 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}
	logger.Info("http server stopped")
	return nil
}
