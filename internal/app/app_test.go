package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8000", cfg.AppAddr)
	require.Equal(t, 60, cfg.RateLimitPerMinute)
	require.True(t, cfg.DashboardDegrade)
	require.Equal(t, "5 0 * * *", cfg.DailyReportCron)
	require.Equal(t, "@every 4h", cfg.LowStockCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigValidateCron(t *testing.T) {
	cfg := Config{JWTSecret: "s", AccessTokenTTL: 1, RateLimitPerMinute: 1, DailyReportCron: "@daily", LowStockCron: "*/15 * * * *"}
	require.NoError(t, cfg.Validate())

	cfg.LowStockCron = "every four hours"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "LOW_STOCK_CRON")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel(&Config{LogLevel: "debug"}).String())
	require.Equal(t, "WARN", parseLevel(&Config{LogLevel: "WARNING"}).String())
	require.Equal(t, "INFO", parseLevel(nil).String())
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter(cfg *Config, db, redis Pinger) http.Handler {
	return NewRouter(RouterParams{
		Config:   cfg,
		Metrics:  observability.NewMetrics(),
		Database: db,
		Redis:    redis,
	})
}

func TestHealthReportsBackends(t *testing.T) {
	cfg := &Config{RateLimitPerMinute: 100}

	router := newTestRouter(cfg, stubPinger{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","database":"up","redis":"disabled"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	router = newTestRouter(cfg, stubPinger{err: errors.New("refused")}, stubPinger{})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"database":"down"`)
}

func TestMetricsAndUnmountedRoutes(t *testing.T) {
	router := newTestRouter(&Config{RateLimitPerMinute: 100}, nil, PingFunc(func(context.Context) error { return nil }))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Contains(t, rec.Body.String(), `"redis":"up"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pos_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(&Config{RateLimitPerMinute: 2}, nil, nil)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestParseTestMode(t *testing.T) {
	for value, want := range map[string]bool{
		"1": true, "true": true, " TRUE ": true, "t": true,
		"": false, "0": false, "false": false, "yes": false,
	} {
		require.Equal(t, want, parseTestMode(value), "value %q", value)
	}
}

func TestRefreshTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshTestMode)

	t.Setenv(TestModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv(TestModeEnv, "true")
	require.False(t, InTestMode())
	RefreshTestMode()
	require.True(t, InTestMode())
}
