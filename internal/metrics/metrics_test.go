package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/betbot/volbot/internal/volume"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ volume.Recorder = (*Collector)(nil)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()
	before := TradesOK.Value()

	c.TradeSucceeded("buy", "")
	c.TradeSucceeded("sell", "timeout")
	c.TradeSucceeded("sell", "timeout")
	c.TradeFailed("buy", "no_liquidity")
	c.CycleSkipped("hold")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.trades.WithLabelValues("sell", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues("buy", "no_liquidity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped.WithLabelValues("hold")))
	assert.Equal(t, before+3, TradesOK.Value())
}

func TestMux_ServesMetrics(t *testing.T) {
	c := NewCollector()
	c.TradeSucceeded("buy", "")

	srv := httptest.NewServer(newMux(c.Registry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "volbot_trades_total")
	assert.Contains(t, string(body), `action="buy"`)

	resp2, err := http.Get(srv.URL + "/debug/vars")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestStartAsync_ShutsDownWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := StartAsync(ctx, "127.0.0.1:0", NewCollector())
	require.NoError(t, err)
	require.NotNil(t, s)
	cancel()
}
