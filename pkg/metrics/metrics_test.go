package metrics

import (
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Tick()
	r.Tick()
	r.Order("PEARLS", "BUY", 5)
	r.Order("PEARLS", "SELL", -3)
	r.Order("PEARLS", "SELL", -2)
	r.Transition("coco-pina", "FLAT", "SHORT_SPREAD", "entry")
	r.PairReading("coco-pina", 2.7, true)
	r.PairReading("coco-pina", 0, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("PEARLS", "BUY")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.orders.WithLabelValues("PEARLS", "SELL")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.volume.WithLabelValues("PEARLS", "SELL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("coco-pina", "FLAT", "SHORT_SPREAD", "entry")))
	assert.Equal(t, 2.7, testutil.ToFloat64(r.zscore.WithLabelValues("coco-pina")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notReady.WithLabelValues("coco-pina")))
}

func TestServeRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	srv, err := Serve("127.0.0.1:0", reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer srv.Close()

	r.Tick()

	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "pairs_engine_ticks_total 1")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "pairs_engine_ticks_total" {
			found = true
			break
		}
	}
	assert.True(t, found, "ticks_total metric not found")
}

func TestServe_BindErrorIsReturned(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	_, err = Serve(lis.Addr().String(), prometheus.NewRegistry(), nil)
	assert.Error(t, err, "address already in use")
}
