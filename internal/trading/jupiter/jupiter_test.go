package jupiter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/walletopt/internal/trading"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	jitoMint = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	userKey  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

const sampleQuote = `{"inputMint":"So11111111111111111111111111111111111111112","inAmount":"100000000","outputMint":"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn","outAmount":"87654321","otherAmountThreshold":"87216050","swapMode":"ExactIn","slippageBps":50,"priceImpactPct":"0","routePlan":[],"contextSlot":312345678901,"timeTaken":0.0123}`

func setupTestServer(t *testing.T, cfg Config, handler http.HandlerFunc) (*httptest.Server, *Client) {
	server := httptest.NewServer(handler)
	cfg.BaseURL = server.URL + "/swap/v1/"
	c := NewClient(cfg)
	c.httpClient = resty.NewWithClient(server.Client())
	return server, c
}

func TestClient_Quote(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectError string
	}{
		{name: "ok", status: http.StatusOK, body: sampleQuote},
		{name: "no route", status: http.StatusBadRequest, body: `{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`, expectError: "COULD_NOT_FIND_ANY_ROUTE"},
		{name: "bare 500", status: http.StatusInternalServerError, body: `oops`, expectError: "unexpected status code: 500"},
		{name: "error in 200", status: http.StatusOK, body: `{"error":"Token not tradable"}`, expectError: "Token not tradable"},
		{name: "not an object", status: http.StatusOK, body: `null`, expectError: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, c := setupTestServer(t, Config{APIKey: "k1"}, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/swap/v1/quote", r.URL.Path)
				assert.Equal(t, "k1", r.Header.Get("x-api-key"))
				q := r.URL.Query()
				assert.Equal(t, solMint, q.Get("inputMint"))
				assert.Equal(t, jitoMint, q.Get("outputMint"))
				assert.Equal(t, "100000000", q.Get("amount"))
				assert.Equal(t, "50", q.Get("slippageBps"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			defer server.Close()

			quote, err := c.Quote(context.Background(), trading.QuoteRequest{
				InputMint: solMint, OutputMint: jitoMint, Amount: "100000000", SlippageBps: 50,
			})
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "87654321", quote["outAmount"])
			assert.Equal(t, json.Number("312345678901"), quote["contextSlot"])
		})
	}
}

func TestClient_SwapTransaction(t *testing.T) {
	var received map[string]any
	server, c := setupTestServer(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap/v1/swap", r.URL.Path)
		assert.Empty(t, r.Header.Get("x-api-key"))
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &received))
		_, _ = w.Write([]byte(`{"swapTransaction":"AQAAAAB0eA==","lastValidBlockHeight":279000000}`))
	})
	defer server.Close()

	quote, err := decodeObject([]byte(sampleQuote))
	require.NoError(t, err)

	tx, err := c.SwapTransaction(context.Background(), quote, userKey)
	require.NoError(t, err)
	assert.Equal(t, "AQAAAAB0eA==", tx)

	assert.Equal(t, userKey, received["userPublicKey"])
	assert.Equal(t, true, received["dynamicComputeUnitLimit"])
	fee := received["prioritizationFeeLamports"].(map[string]any)["priorityLevelWithMaxLamports"].(map[string]any)
	assert.Equal(t, float64(10_000_000), fee["maxLamports"])
	assert.Equal(t, "veryHigh", fee["priorityLevel"])
	echoed := received["quoteResponse"].(map[string]any)
	assert.Equal(t, float64(312345678901), echoed["contextSlot"])
	assert.Equal(t, "87654321", echoed["outAmount"])
}

func TestClient_SwapTransactionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error", status: http.StatusUnprocessableEntity, body: `{"error":"quote expired"}`},
		{name: "empty transaction", status: http.StatusOK, body: `{"swapTransaction":""}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, c := setupTestServer(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			defer server.Close()

			_, err := c.SwapTransaction(context.Background(), map[string]any{"outAmount": "1"}, userKey)
			assert.Error(t, err)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, int64(defaultMaxPriorityLamports), c.cfg.MaxPriorityLamports)
	assert.Equal(t, "jupiter", c.Name())
}
