package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/observability"
	"github.com/songzhibin97/walletopt/internal/optimizer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOptimizer struct {
	err       error
	gotRaw    []models.RawHolding
	gotKey    string
	requestID string
}

func (f *fakeOptimizer) Optimize(ctx context.Context, raw []models.RawHolding) (*models.OptimizationResponse, error) {
	f.gotRaw = raw
	f.requestID = optimizer.RequestID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &models.OptimizationResponse{
		WalletScore:     models.WalletScoreB,
		Summary:         "ok",
		Recommendations: []models.Recommendation{},
		Actions: []models.OptimizationAction{{
			InputMint: "So11111111111111111111111111111111111111112", OutputMint: "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn",
			Amount: decimal.RequireFromString("9.96"),
		}},
	}, nil
}

func (f *fakeOptimizer) OptimizeWithTx(ctx context.Context, raw []models.RawHolding, key string) (*models.OptimizationResponseWithTx, error) {
	f.gotKey = key
	resp, err := f.Optimize(ctx, raw)
	if err != nil {
		return nil, err
	}
	tx := "AQID"
	return &models.OptimizationResponseWithTx{
		OptimizationResponse: *resp,
		Quotes: []models.QuoteResult{
			{Action: resp.Actions[0], Quote: map[string]any{"outAmount": "1"}, Transaction: &tx},
		},
	}, nil
}

func (f *fakeOptimizer) BuildTransaction(_ context.Context, action models.OptimizationAction, key string) (models.QuoteResult, error) {
	f.gotKey = key
	if f.err != nil {
		return models.QuoteResult{}, f.err
	}
	return models.QuoteResult{Action: action, Quote: models.NewQuoteError("no route")}, nil
}

func do(t *testing.T, router http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOptimizeEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "ok", body: `{"assets":[{"symbol":"SOL","balance":"10","usdValue":1500}],"walletAddress":"x"}`, wantStatus: http.StatusOK},
		{name: "empty wallet", body: `{"assets":[]}`, wantStatus: http.StatusOK},
		{name: "missing assets", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "broken json", body: `{"assets":`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "validation", body: `{"assets":[]}`, err: apperr.New(apperr.CodeValidation, "bad"), wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "oracle down", body: `{"assets":[]}`, err: apperr.Wrap(apperr.CodeOracleFailure, "oracle failed", errors.New("503")), wantStatus: http.StatusBadGateway, wantCode: "oracle_failure"},
		{name: "unexpected", body: `{"assets":[]}`, err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeOptimizer{err: tt.err}
			router := NewRouter(svc, nil, nil)

			rec := do(t, router, http.MethodPost, "/optimization/solana", tt.body, nil)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"])
				assert.Equal(t, rec.Header().Get(RequestIDHeader), body["requestId"])
				return
			}
			assert.Equal(t, "B", body["walletScore"])
			assert.Contains(t, body, "recommendations")
		})
	}
}

func TestOptimizeEndpoint_DecodesHoldingAliases(t *testing.T) {
	svc := &fakeOptimizer{}
	router := NewRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/optimization/solana",
		`{"assets":[{"symbol":"SOL","balance":"10","usdValue":1500,"mint":"So11111111111111111111111111111111111111112"}]}`,
		http.Header{RequestIDHeader: []string{"req-42"}})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, svc.gotRaw, 1)
	assert.Equal(t, "10", svc.gotRaw[0].Amount.String())
	assert.Equal(t, "1500", svc.gotRaw[0].Value.String())
	assert.Equal(t, "So11111111111111111111111111111111111111112", svc.gotRaw[0].TokenID)
	assert.Equal(t, "req-42", svc.requestID)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestOptimizeWithTxEndpoint(t *testing.T) {
	svc := &fakeOptimizer{}
	router := NewRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/optimization/solana/transactions",
		`{"assets":[],"userPublicKey":"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", svc.gotKey)

	var body struct {
		WalletScore string `json:"walletScore"`
		Actions     []struct {
			Amount string `json:"amount"`
		} `json:"actions"`
		Quotes []struct {
			Quote       map[string]any `json:"quote"`
			Transaction string         `json:"transaction"`
		} `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "B", body.WalletScore)
	require.Len(t, body.Actions, 1)
	assert.Equal(t, "9.96", body.Actions[0].Amount)
	require.Len(t, body.Quotes, 1)
	assert.Equal(t, "AQID", body.Quotes[0].Transaction)
}

func TestTransactionEndpoint(t *testing.T) {
	svc := &fakeOptimizer{}
	router := NewRouter(svc, nil, nil)

	rec := do(t, router, http.MethodPost, "/transactions/solana",
		`{"action":{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn","amount":0.5},"userPublicKey":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"error": "no route"}, body["quote"])
	assert.Nil(t, body["transaction"])
	assert.Equal(t, "k", svc.gotKey)

	svc.err = apperr.New(apperr.CodeValidation, "userPublicKey is required")
	rec = do(t, router, http.MethodPost, "/transactions/solana", `{"action":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics("walletopt", nil)
	metrics.RecordRequest("optimize", "ok")
	router := NewRouter(&fakeOptimizer{}, metrics, nil)

	rec := do(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `walletopt_pipeline_requests_total{endpoint="optimize",outcome="ok"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.New(apperr.CodeValidation, "x")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(apperr.New(apperr.CodeOracleFailure, "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(apperr.New(apperr.CodeStoreUnavailable, "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("x")))
}
