package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve(":0")
	defer srv.Close()

	ResolverHits.WithLabelValues("local_path").Inc()
	Outcomes.WithLabelValues("target").Add(2)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["optionsim_resolver_hits_total"])
	assert.True(t, names["optionsim_outcomes_total"])
	assert.Equal(t, 2.0, testutil.ToFloat64(Outcomes.WithLabelValues("target")))
}
