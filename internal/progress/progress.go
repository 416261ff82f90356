// Package progress serializes per-file conversion results through a
// single goroutine and publishes coalesced status snapshots at a fixed
// cadence, so a single-threaded presentation layer is never flooded
// with per-result updates.
package progress

import (
	"sync"
	"time"

	"github.com/heiftools/heifconv/internal/codec"
)

// DefaultPublishInterval is the cadence at which non-terminal snapshots
// are forwarded to the publish callback.
const DefaultPublishInterval = 200 * time.Millisecond

// Snapshot is an immutable point-in-time summary of a run. It is the
// only representation of run state exposed outside this package.
type Snapshot struct {
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
	ElapsedMs int64   `json:"elapsed_ms"`
	// AvgFileMs is the mean duration of successful conversions, 0
	// until the first success.
	AvgFileMs int64 `json:"avg_file_ms"`
	Terminal  bool  `json:"terminal"`
}

// Aggregator owns the mutable run counters. Results arrive from any
// number of workers via Record but are applied by exactly one goroutine,
// so the counters never see contended writes.
type Aggregator struct {
	total    int
	interval time.Duration
	publish  func(Snapshot)
	start    time.Time

	results chan codec.Result
	done    chan struct{}

	mu         sync.Mutex
	succeeded  int
	failed     int
	sumSuccess time.Duration
}

// New starts an aggregator for a run of total files. publish may be nil;
// when set it receives coalesced snapshots every interval and the final
// terminal snapshot exactly once from Close.
func New(total int, interval time.Duration, publish func(Snapshot)) *Aggregator {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	a := &Aggregator{
		total:    total,
		interval: interval,
		publish:  publish,
		start:    time.Now(),
		// Buffered to the job size so recording never blocks a worker.
		results: make(chan codec.Result, total+1),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Record queues one per-file result. It must not be called after Close.
func (a *Aggregator) Record(res codec.Result) {
	a.results <- res
}

// Close drains any queued results, publishes the terminal snapshot
// exactly once and returns after the aggregation goroutine has stopped.
// The caller must ensure all workers are done recording first.
func (a *Aggregator) Close() {
	close(a.results)
	<-a.done
}

// Snapshot returns the current counters. Safe from any goroutine.
func (a *Aggregator) Snapshot() Snapshot {
	return a.snapshot(false)
}

func (a *Aggregator) loop() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case res, ok := <-a.results:
			if !ok {
				if a.publish != nil {
					a.publish(a.snapshot(true))
				}
				return
			}
			a.apply(res)
		case <-ticker.C:
			if a.publish != nil {
				a.publish(a.snapshot(false))
			}
		}
	}
}

func (a *Aggregator) apply(res codec.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if res.Success {
		a.succeeded++
		a.sumSuccess += res.Duration
	} else {
		a.failed++
	}
}

func (a *Aggregator) snapshot(terminal bool) Snapshot {
	a.mu.Lock()
	succeeded, failed, sum := a.succeeded, a.failed, a.sumSuccess
	a.mu.Unlock()

	snap := Snapshot{
		Total:     a.total,
		Succeeded: succeeded,
		Failed:    failed,
		ElapsedMs: time.Since(a.start).Milliseconds(),
		Terminal:  terminal,
	}
	if succeeded > 0 {
		snap.AvgFileMs = (sum / time.Duration(succeeded)).Milliseconds()
	}
	if a.total > 0 {
		snap.Percent = float64(succeeded+failed) / float64(a.total) * 100
	}
	return snap
}
