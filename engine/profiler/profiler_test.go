package profiler

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestRecordAccumulatesUntilInterval(t *testing.T) {
	p := NewProfiler()
	p.SetInterval(time.Hour)

	assert.False(t, p.Record("a", 2*time.Millisecond, nil))
	assert.False(t, p.Record("b", 6*time.Millisecond, errors.New("boom")))

	stats := p.Stats()
	assert.Equal(t, 2, stats.Passes)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 4*time.Millisecond, stats.Average)
	assert.Equal(t, 6*time.Millisecond, stats.Max)
	assert.Equal(t, "b", stats.Slowest)
}

func TestRecordReportsAndResets(t *testing.T) {
	p := NewProfiler()
	p.SetInterval(time.Nanosecond)
	time.Sleep(time.Millisecond)

	assert.True(t, p.Record("a", time.Millisecond, nil))
	assert.Equal(t, 0, p.Stats().Passes)
}
