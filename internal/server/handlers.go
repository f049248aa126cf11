package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
)

type handler struct {
	svc    Optimizer
	logger *slog.Logger
}

// OptimizeRequest 优化请求
type OptimizeRequest struct {
	Assets []models.RawHolding `json:"assets"`
	// WalletAddress is accepted for compatibility and otherwise unused.
	WalletAddress string `json:"walletAddress,omitempty"`
}

type OptimizeWithTxRequest struct {
	Assets        []models.RawHolding `json:"assets"`
	UserPublicKey string              `json:"userPublicKey"`
}

type TransactionRequest struct {
	Action        models.OptimizationAction `json:"action"`
	UserPublicKey string                    `json:"userPublicKey"`
}

type TransactionResponse struct {
	Quote            map[string]any `json:"quote"`
	Transaction      *string        `json:"transaction"`
	TransactionError string         `json:"transactionError,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *handler) optimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return
	}
	if req.Assets == nil {
		h.fail(c, apperr.New(apperr.CodeValidation, "assets is required"))
		return
	}

	resp, err := h.svc.Optimize(c.Request.Context(), req.Assets)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) optimizeWithTx(c *gin.Context) {
	var req OptimizeWithTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return
	}
	if req.Assets == nil {
		h.fail(c, apperr.New(apperr.CodeValidation, "assets is required"))
		return
	}

	resp, err := h.svc.OptimizeWithTx(c.Request.Context(), req.Assets, req.UserPublicKey)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) buildTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return
	}

	res, err := h.svc.BuildTransaction(c.Request.Context(), req.Action, req.UserPublicKey)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TransactionResponse{
		Quote:            res.Quote,
		Transaction:      res.Transaction,
		TransactionError: res.TransactionError,
	})
}

func (h *handler) fail(c *gin.Context, err error) {
	code, status := apperr.CodeOf(err), StatusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "code", code.String(),
			"request_id", c.GetString("request_id"), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     code.String(),
		Message:   err.Error(),
		RequestID: c.GetString("request_id"),
	})
}

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeOracleFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
