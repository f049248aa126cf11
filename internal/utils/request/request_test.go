package request

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		wantCalls int32
	}{
		{name: "no retries", retries: 0, wantCalls: 1},
		{name: "two retries", retries: 2, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := New(time.Second, tt.retries).
				SetRetryWaitTime(time.Millisecond).
				AddRetryCondition(func(r *resty.Response, err error) bool { return true })

			resp, err := c.R().Get(server.URL)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode())
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, time.Second, c.GetClient().Timeout)
		})
	}
}
