package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)

	s.Transactions.WithLabelValues("user").Inc()
	s.Transactions.WithLabelValues("remote").Inc()
	s.Recomputes.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Transactions.WithLabelValues("user")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.Recomputes))

	// Registering the same set twice on one registry must fail loudly.
	require.Panics(t, func() { New(reg) })
}
