package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/2beens/blogposts/internal/telemetry/metrics"
)

type testRequestRateLimiter struct {
	// key to remaining allowed requests
	Limits map[string]int
	err    error
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if l.err != nil {
		return nil, l.err
	}

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: 1500 * time.Millisecond,
	}

	foundLimit, ok := l.Limits[key]
	if !ok || foundLimit == 0 {
		return res, nil
	}

	res.Allowed = 1
	res.RetryAfter = -1
	l.Limits[key]--

	return res, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &testRequestRateLimiter{
		Limits: map[string]int{
			"posts-write||10.1.1.1": 2,
		},
	}
	metricsManager := metrics.NewTestManager()

	served := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	})
	handler := RateLimit(limiter, "posts-write", 2, metricsManager)(next)

	doReq := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/posts", nil)
		req.Header.Set("X-Real-Ip", ip)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, doReq("10.1.1.1").Code)
	assert.Equal(t, http.StatusOK, doReq("10.1.1.1").Code)

	rr := doReq("10.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	assert.Equal(t, "retry after 2 seconds\n", rr.Body.String())

	// other clients have their own budget
	assert.Equal(t, http.StatusTooManyRequests, doReq("10.2.2.2").Code)

	assert.Equal(t, 2, served)
	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
}

func TestRateLimit_LimiterError(t *testing.T) {
	limiter := &testRequestRateLimiter{err: errors.New("redis down")}

	served := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	})

	rr := httptest.NewRecorder()
	RateLimit(limiter, "posts-write", 10, nil)(next).ServeHTTP(rr, httptest.NewRequest("DELETE", "/posts/1", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, served)
}
