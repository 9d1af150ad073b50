// Package profiler aggregates pass execution statistics and logs them at a fixed interval.
package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

// Stats is a snapshot of the passes recorded since the last report.
type Stats struct {
	// Passes is the number of passes recorded.
	Passes int
	// Failures is the number of passes that returned an error.
	Failures int
	// PassesPerSecond is Passes divided by the elapsed time.
	PassesPerSecond float64
	// Average is the mean pass duration.
	Average time.Duration
	// Max is the longest pass duration.
	Max time.Duration
	// Slowest is the label of the longest pass.
	Slowest string
}

// Profiler tracks pass timing and memory statistics for performance monitoring.
// Outputs stats to the package logger at a configurable interval.
type Profiler struct {
	mu sync.Mutex

	lastTime       time.Time
	updateInterval time.Duration

	passes   int
	failures int
	total    time.Duration
	max      time.Duration
	slowest  string

	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// SetInterval changes how often statistics are logged.
//
// Parameters:
//   - interval: the report interval; values <= 0 are ignored
func (p *Profiler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateInterval = interval
}

// Record should be called once per executed pass.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: passes per second, average and max pass time, heap usage, allocation rate and GC pauses.
//
// Parameters:
//   - label: the pass label
//   - duration: how long the pass took, including the wait for completion
//   - err: the pass result
//
// Returns:
//   - bool: true if stats were logged by this call, false otherwise
func (p *Profiler) Record(label string, duration time.Duration, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passes++
	p.total += duration
	if err != nil {
		p.failures++
	}
	if duration > p.max {
		p.max = duration
		p.slowest = label
	}

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	stats := p.statsLocked(elapsed)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.Logger().Info("pass statistics",
		"passes", stats.Passes,
		"failures", stats.Failures,
		"passes_per_second", stats.PassesPerSecond,
		"avg", stats.Average,
		"max", stats.Max,
		"slowest", stats.Slowest,
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
	)

	p.passes, p.failures, p.total, p.max, p.slowest = 0, 0, 0, 0, ""
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Stats returns the statistics accumulated since the last report without resetting them.
//
// Returns:
//   - Stats: the current statistics
func (p *Profiler) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked(time.Since(p.lastTime))
}

func (p *Profiler) statsLocked(elapsed time.Duration) Stats {
	s := Stats{
		Passes:   p.passes,
		Failures: p.failures,
		Max:      p.max,
		Slowest:  p.slowest,
	}
	if p.passes > 0 {
		s.Average = p.total / time.Duration(p.passes)
	}
	if elapsed > 0 {
		s.PassesPerSecond = float64(p.passes) / elapsed.Seconds()
	}
	return s
}
