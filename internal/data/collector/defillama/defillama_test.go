package defillama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, status int, body string) (*httptest.Server, *Feed) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, err := w.Write([]byte(body))
		require.NoError(t, err)
	}))

	feed := NewFeed(server.URL + "/")
	feed.httpClient = resty.NewWithClient(server.Client())
	return server, feed
}

const samplePools = `{
  "status": "success",
  "data": [
    {
      "chain": "Solana", "project": "jito-liquid-staking", "symbol": "JITOSOL",
      "tvlUsd": 2100000000, "apyBase": 7.1, "apyReward": null, "apy": 7.1,
      "rewardTokens": null, "pool": "0e7d0722-9054-4907-8593-567b353c0900",
      "apyPct1D": 0.1, "apyPct7D": -0.2, "apyPct30D": 0.3, "stablecoin": false,
      "ilRisk": "no", "exposure": "single",
      "predictions": {"predictedClass": "Stable/Up", "predictedProbability": 75, "binnedConfidence": 3},
      "underlyingTokens": ["So11111111111111111111111111111111111111112"],
      "volumeUsd1d": null, "volumeUsd7d": null
    },
    {
      "chain": "Solana", "project": "orca-dex", "symbol": "SOL-USDC",
      "tvlUsd": 5000000, "apyBase": 20, "apyReward": 5, "apy": null,
      "pool": "orca-sol-usdc", "ilRisk": "yes", "exposure": "multi"
    },
    {"chain": "", "project": "broken", "symbol": "X", "pool": ""}
  ]
}`

func TestFeed_FetchPools(t *testing.T) {
	server, feed := setupTestServer(t, http.StatusOK, samplePools)
	defer server.Close()

	pools, err := feed.FetchPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)

	jito := pools[0]
	assert.Equal(t, "Solana", jito.Chain)
	assert.Equal(t, "JITOSOL", jito.Symbol)
	assert.Equal(t, 7.1, jito.APY)
	assert.Nil(t, jito.APYReward)
	assert.Equal(t, "Stable/Up", jito.PredictedClass)
	require.NotNil(t, jito.PredictedProb)
	assert.Equal(t, 75.0, *jito.PredictedProb)
	assert.Equal(t, "low", jito.RiskLevel)
	assert.Equal(t, "https://defillama.com/yields/pool/0e7d0722-9054-4907-8593-567b353c0900", jito.URL)

	lp := pools[1]
	assert.Equal(t, 25.0, lp.APY)
	assert.Equal(t, "high", lp.RiskLevel)
}

func TestFeed_FetchPoolsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{}`},
		{name: "bad json", status: http.StatusOK, body: `{"status":`},
		{name: "error status", status: http.StatusOK, body: `{"status":"error","data":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, feed := setupTestServer(t, tt.status, tt.body)
			defer server.Close()

			_, err := feed.FetchPools(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestFeed_Name(t *testing.T) {
	assert.Equal(t, "defillama", NewFeed("").Name())
	assert.Equal(t, DefaultBaseURL, NewFeed("").baseURL)
}
