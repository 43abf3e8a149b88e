package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freqtrade-operator/freqtrade-operator/internal/metrics"
)

// value returns the value of the first sample of a family whose labels
// contain all given pairs
func value(t *testing.T, r *metrics.Recorder, family string, labels map[string]string) float64 {
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != family {
			continue
		}
		for _, m := range f.GetMetric() {
			matched := 0
			for _, l := range m.GetLabel() {
				if labels[l.GetName()] == l.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("no sample of %s with labels %v", family, labels)
	return 0
}

func TestRecorder(t *testing.T) {
	r := metrics.NewRecorder()
	r.Created("freqtradebots")
	r.Created("freqtradebots")
	r.Deleted("freqtradebots")
	r.Error("freqtradebots", "update", "temporary")
	r.Observe("freqtradebots", "create", 250*time.Millisecond)
	r.SetActive("freqtradebots", 3)

	bots := map[string]string{"resource": "freqtradebots"}
	assert.Equal(t, 2.0, value(t, r, "freqtrade_operator_created_total", bots))
	assert.Equal(t, 1.0, value(t, r, "freqtrade_operator_deleted_total", bots))
	assert.Equal(t, 3.0, value(t, r, "freqtrade_operator_active", bots))
	assert.Equal(t, 1.0, value(t, r, "freqtrade_operator_errors_total",
		map[string]string{"resource": "freqtradebots", "event": "update", "class": "temporary"}))
	assert.Equal(t, 1.0, value(t, r, "freqtrade_operator_reconciliation_duration_seconds",
		map[string]string{"resource": "freqtradebots", "event": "create"}))
}

func TestHandler(t *testing.T) {
	r := metrics.NewRecorder()
	r.Created("freqtradewebservers")

	server := httptest.NewServer(r.Handler())
	defer server.Close()
	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `freqtrade_operator_created_total{resource="freqtradewebservers"} 1`)
}
