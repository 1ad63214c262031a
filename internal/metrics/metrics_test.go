package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/pkg/types"
)

func gaugeValue(t *testing.T, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func Test_ObserveTrend(t *testing.T) {
	ObserveTrend(types.TrendStatus{
		Symbol:       "BTC-USDT-SWAP",
		Timeframe:    "1m",
		PositionMode: types.ModeShortOnly,
		WinRates:     map[types.Direction]float64{types.DirectionLong: 35, types.DirectionShort: 65},
	})

	mode, ok := gaugeValue(t, "sentry_position_mode", map[string]string{"symbol": "BTC-USDT-SWAP", "timeframe": "1m"})
	require.True(t, ok)
	assert.Equal(t, -1.0, mode)

	rate, ok := gaugeValue(t, "sentry_win_rate_percent", map[string]string{"symbol": "BTC-USDT-SWAP", "timeframe": "1m", "direction": "SHORT"})
	require.True(t, ok)
	assert.Equal(t, 65.0, rate)
}

func Test_ModeValue(t *testing.T) {
	assert.Equal(t, 1.0, ModeValue(types.ModeLongOnly))
	assert.Equal(t, -1.0, ModeValue(types.ModeShortOnly))
	assert.Equal(t, 0.0, ModeValue(types.ModeBoth))
}

func Test_Serve(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	srv := Serve(addr)
	defer srv.Close()

	TicksTotal.WithLabelValues("ETH-USDT-SWAP", "5m").Inc()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, strings.Contains(body, `sentry_ticks_total{symbol="ETH-USDT-SWAP",timeframe="5m"} 1`))
}
