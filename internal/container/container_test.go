package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clober-dex/clober-market-maker-sub000/config"
	"github.com/clober-dex/clober-market-maker-sub000/internal/engine"
)

func dryConfig() config.AppConfig {
	return config.AppConfig{
		Env:     "dry",
		Account: "0xmm",
		Loop:    config.LoopConfig{IntervalMs: 5, FetchTimeoutMs: 1000, SubmitTimeoutMs: 1000},
		Breaker: config.BreakerConfig{TripConsecutiveFailures: 3, OpenTimeoutSec: 60},
		Alert:   config.AlertConfig{ThrottleSec: 60},
		Log:     config.LogConfig{Level: "error", Format: "json", Output: "stdout"},
		Markets: map[string]config.MarketConfig{
			"WETH/USDC": {
				VenueID: "m1",
				Base:    config.TokenConfig{Address: "WETH", Decimals: 18},
				Quote:   config.TokenConfig{Address: "USDC", Decimals: 6},
				Oracle:  config.OracleSource{Source: "static", Price: 3000},
				Params: config.MarketParams{
					DeltaLimit:       6000,
					MinTickSpread:    10,
					MaxTickSpread:    50,
					OrderGap:         5,
					OrderNum:         3,
					OrderSize:        0.3,
					MinOrderSize:     0.01,
					StartBaseAmount:  1,
					StartQuoteAmount: 3000,
				},
			},
		},
	}
}

func buildDry(t *testing.T) *Container {
	t.Helper()
	cfg := dryConfig()
	require.NoError(t, config.Validate(cfg))
	c := NewFromConfig(cfg, Options{})
	require.NoError(t, c.Build())
	return c
}

func TestMarketsFromConfig(t *testing.T) {
	ms := Markets(dryConfig())
	require.Len(t, ms, 1)
	m := ms[0]
	assert.Equal(t, "WETH/USDC", m.Name)
	assert.Equal(t, int32(18), m.Converter.BaseDecimals)
	assert.Equal(t, int32(18), m.Settings.SizePrecision)
	assert.Equal(t, int64(30), m.Settings.DefaultSpread.AskSpread)
	require.NoError(t, m.Settings.Params.Validate())
}

func TestDryRunCycleAgainstPaperVenue(t *testing.T) {
	c := buildDry(t)
	rep, err := c.Engine().RunOnce(context.Background(), "WETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeQuoted, rep.Decision.Outcome)
	assert.Len(t, rep.Decision.Batch().Makes, 6)

	live, err := c.paper.OpenOrders(context.Background(), "WETH/USDC")
	require.NoError(t, err)
	assert.Len(t, live, 6)
}

func TestOpsRouter(t *testing.T) {
	c := buildDry(t)
	_, err := c.Engine().RunOnce(context.Background(), "WETH/USDC")
	require.NoError(t, err)
	h := c.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mm_dex_cycles_total")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets/WETH%2FUSDC", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st marketStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "closed", st.Breaker)
	assert.Equal(t, 3, st.OrderNum)
	assert.NotEmpty(t, st.LastCycle)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/markets/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzBeforeStartIsUnavailable(t *testing.T) {
	c := buildDry(t)
	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "not started"))
}

func TestStartStop(t *testing.T) {
	cfg := dryConfig()
	cfg.Ops.Listen = "127.0.0.1:0"
	c := NewFromConfig(cfg, Options{})
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := c.Engine().LastCycle("WETH/USDC")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, c.HealthCheck())

	resp, err := http.Get("http://" + c.ops.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, c.Stop())
}

func TestCheckCyclesDetectsStall(t *testing.T) {
	c := buildDry(t)
	_, err := c.Engine().RunOnce(context.Background(), "WETH/USDC")
	require.NoError(t, err)
	assert.NoError(t, c.checkCycles(time.Now()))
	assert.Error(t, c.checkCycles(time.Now().Add(time.Hour)))
}

func TestApplyConfigHotReload(t *testing.T) {
	c := buildDry(t)
	cfg := dryConfig()
	m := cfg.Markets["WETH/USDC"]
	m.Params.OrderNum = 5
	cfg.Markets["WETH/USDC"] = m
	c.applyConfig(cfg)

	s, ok := c.Engine().Settings("WETH/USDC")
	require.True(t, ok)
	assert.Equal(t, 5, s.Params.OrderNum)
}
