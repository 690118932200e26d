package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r, err := New("test", prometheus.NewRegistry())
	require.NoError(t, err)

	r.ObserveQuery(0, 10, 10)
	r.ObserveQuery(10, 10, 4)
	r.Flush()
	r.Passivated(3)
	r.Passivated(0)
	r.Released(2)
	r.ContractViolation()
	r.Discarded()
	r.AssumedSize(120)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.backendQueries))
	assert.Equal(t, 14.0, testutil.ToFloat64(r.itemsFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.flushes))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.keysPassivated))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.keysReleased))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.contractViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.asyncDiscarded))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.assumedSize))
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New("dup", reg)
	require.NoError(t, err)

	_, err = New("dup", reg)
	assert.Error(t, err)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveQuery(0, 1, 1)
		r.Flush()
		r.Passivated(1)
		r.Released(1)
		r.ContractViolation()
		r.Discarded()
		r.AssumedSize(1)
	})
}
