package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.Arbitrated("exit-signal")
		c.Removed("out-of-control")
		c.AuxDone("horn")
		c.Departed(12)
		c.SetTrains(1, 2, map[string]int{"RUNNING": 1})
		c.Step(0.01, 3600)
	})
}

func TestCollector(t *testing.T) {
	c := metrics.NewCollector()
	c.Arbitrated("exit-signal")
	c.Arbitrated("exit-signal")
	c.Removed("out-of-control")
	c.SetTrains(3, 1, map[string]int{"RUNNING": 2, "BRAKING": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Arbitrations.WithLabelValues("exit-signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Removals.WithLabelValues("out-of-control")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.TrainsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TrainStates.WithLabelValues("RUNNING")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "railsim_trains_active 3"))
}
