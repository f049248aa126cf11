package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/walletopt/internal/ai/stub"
	"github.com/songzhibin97/walletopt/internal/models"
)

func wallet() []models.Asset {
	return []models.Asset{
		{Type: models.AssetTypeSolana, Symbol: "SOL", TokenID: "So11111111111111111111111111111111111111112", Amount: decimal.RequireFromString("2"), Value: decimal.RequireFromString("300"), Percentage: decimal.RequireFromString("75"), Decimals: 9, Price: decimal.RequireFromString("150"), Currency: "USD"},
		{Type: models.AssetTypeStablecoin, Symbol: "USDC", TokenID: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: decimal.RequireFromString("100"), Value: decimal.RequireFromString("100"), Percentage: decimal.RequireFromString("25"), Decimals: 6, Price: decimal.RequireFromString("1"), Currency: "USD", ImageURL: "https://img/usdc.png"},
	}
}

func TestKey(t *testing.T) {
	base := Key(wallet())
	assert.Len(t, base, 64)

	reordered := wallet()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	assert.Equal(t, base, Key(reordered), "order independent")

	reformatted := wallet()
	reformatted[0].Amount = decimal.RequireFromString("2.000")
	reformatted[1].ImageURL = "https://other/usdc.png"
	assert.Equal(t, base, Key(reformatted), "numeric formatting and image are ignored")

	// rounding ties are broken by input order, so percentages may differ for the same holdings
	tied := wallet()
	tied[0].Percentage = decimal.RequireFromString("50.1")
	tied[1].Percentage = decimal.RequireFromString("49.9")
	assert.Equal(t, base, Key(tied), "percentage is derived and ignored")

	changed := wallet()
	changed[0].Amount = decimal.RequireFromString("2.5")
	assert.NotEqual(t, base, Key(changed))

	assert.Equal(t, Key(nil), Key([]models.Asset{}))
	assert.NotEqual(t, base, Key(nil))
}

func TestRecommendationCache_OracleInvokedOnce(t *testing.T) {
	oracle := stub.NewOracle("SOL")
	c := New(NewMemoryStore(DefaultSize, DefaultTTL))

	compute := func(assets []models.Asset) ComputeFunc {
		return func(ctx context.Context) (*models.OptimizationResponse, error) {
			return oracle.Optimize(ctx, assets, nil)
		}
	}

	first, hit, err := c.GetOrCompute(context.Background(), Key(wallet()), compute(wallet()))
	require.NoError(t, err)
	assert.False(t, hit)

	reordered := wallet()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	second, hit, err := c.GetOrCompute(context.Background(), Key(reordered), compute(reordered))
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), oracle.Calls())

	// callers get their own copies
	second.Actions = append(second.Actions, models.OptimizationAction{InputMint: "x"})
	third, _, err := c.GetOrCompute(context.Background(), Key(wallet()), compute(wallet()))
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestRecommendationCache_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(NewMemoryStore(DefaultSize, DefaultTTL))

	fn := func(ctx context.Context) (*models.OptimizationResponse, error) {
		calls.Add(1)
		<-release
		return &models.OptimizationResponse{WalletScore: models.WalletScoreA, Summary: "shared"}, nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]*models.OptimizationResponse, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _, err := c.GetOrCompute(context.Background(), "same-key", fn)
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "shared", r.Summary)
	}
}

func TestRecommendationCache_ErrorsAreNotCached(t *testing.T) {
	c := New(NewMemoryStore(DefaultSize, DefaultTTL))
	boom := errors.New("oracle down")

	_, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*models.OptimizationResponse, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	resp, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*models.OptimizationResponse, error) {
		return &models.OptimizationResponse{WalletScore: models.WalletScoreC, Summary: "ok"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", resp.Summary)
}

func TestRecommendationCache_CallerCancellation(t *testing.T) {
	c := New(NewMemoryStore(DefaultSize, DefaultTTL))
	release := make(chan struct{})
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		_, _, err := c.GetOrCompute(ctx, "k", func(cctx context.Context) (*models.OptimizationResponse, error) {
			<-release
			// the shared computation is detached from the caller
			assert.NoError(t, cctx.Err())
			return &models.OptimizationResponse{WalletScore: models.WalletScoreB, Summary: "late"}, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	cancel()
	<-done
	close(release)

	require.Eventually(t, func() bool {
		resp, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*models.OptimizationResponse, error) {
			return nil, errors.New("should have been cached")
		})
		return err == nil && hit && resp.Summary == "late"
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_TTLAndEviction(t *testing.T) {
	ctx := context.Background()
	resp := &models.OptimizationResponse{WalletScore: models.WalletScoreA, Summary: "s"}

	short := NewMemoryStore(4, 30*time.Millisecond)
	require.NoError(t, short.Set(ctx, "a", resp))
	_, ok, _ := short.Get(ctx, "a")
	assert.True(t, ok)
	time.Sleep(60 * time.Millisecond)
	_, ok, _ = short.Get(ctx, "a")
	assert.False(t, ok, "expired")

	small := NewMemoryStore(2, time.Minute)
	require.NoError(t, small.Set(ctx, "a", resp))
	require.NoError(t, small.Set(ctx, "b", resp))
	_, _, _ = small.Get(ctx, "a")
	require.NoError(t, small.Set(ctx, "c", resp))

	_, ok, _ = small.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = small.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, small.Len())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := &models.OptimizationResponse{
		WalletScore:     models.WalletScoreB,
		Summary:         "cached",
		Recommendations: []models.Recommendation{{Title: "t", Action: "a"}},
		Actions:         []models.OptimizationAction{{InputMint: "in", OutputMint: "out", Amount: decimal.RequireFromString("0.01")}},
	}
	require.NoError(t, store.Set(ctx, "k", want))
	assert.True(t, mr.Exists(keyPrefix+"k"))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Summary, got.Summary)
	assert.True(t, want.Actions[0].Amount.Equal(got.Actions[0].Amount))

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set(keyPrefix+"bad", "not json"))
	_, _, err = store.Get(ctx, "bad")
	assert.Error(t, err)
}

func TestRecommendationCache_StoreFailureFallsBackToCompute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	c := New(NewRedisStore(client, time.Minute))
	resp, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*models.OptimizationResponse, error) {
		return &models.OptimizationResponse{WalletScore: models.WalletScoreA, Summary: "computed"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "computed", resp.Summary)
}
