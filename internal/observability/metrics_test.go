package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Inc(MetricBallotsCast)
	m.Inc(MetricBallotsCast)
	m.RecordRequest("/ballots", "POST", 201, time.Millisecond)
	m.RecordError("/ballots", "POST", "ALREADY_USED")

	assert.Equal(t, int64(2), m.Counter(MetricBallotsCast))
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["/ballots|POST|201"])
	assert.Equal(t, int64(1), snap.Errors["/ballots|POST|ALREADY_USED"])
	assert.Equal(t, []string{MetricBallotsCast}, m.CounterNames())
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricTokensIssued)
	m.RecordError("/", "GET", "X")
	assert.Zero(t, m.Counter(MetricTokensIssued))
}
