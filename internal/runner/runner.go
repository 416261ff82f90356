// Package runner orchestrates one conversion run: it validates the
// request, builds the batch job, owns the worker pool lifecycle,
// exposes cancellation and reports a terminal summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heiftools/heifconv/internal/batch"
	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/progress"
	"github.com/heiftools/heifconv/internal/store"
)

// State is the controller's position in its run state machine.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

var (
	// ErrRunInProgress is returned by Start while a run is active. Two
	// runs never share a worker pool; a new run must wait for the
	// previous pool to fully shut down.
	ErrRunInProgress = errors.New("a conversion run is already in progress")
	// ErrNoInputFiles is returned when the source directory contains
	// no .heic/.heif files.
	ErrNoInputFiles = errors.New("no matching input files")
)

// Request describes a conversion run as received from the presentation
// layer. Zero values fall back to sensible defaults during validation.
type Request struct {
	SourceDir string `json:"source_dir"`
	DestDir   string `json:"dest_dir"`
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Workers   int    `json:"workers"`
	BatchSize int    `json:"batch_size"`
}

// Summary is the terminal report of a run.
type Summary struct {
	State      State         `json:"state"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Reason     string        `json:"reason,omitempty"` // validation failure detail
	Duration   time.Duration `json:"duration"`
	RunID      int64         `json:"run_id,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Controller runs at most one conversion at a time.
type Controller struct {
	conv            codec.Converter
	st              *store.Store // optional run history; nil disables persistence
	publishInterval time.Duration

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	agg     *progress.Aggregator
	runDone chan struct{}
	summary *Summary
	subs    []func(progress.Snapshot)
}

// New creates an idle controller. st may be nil to disable run history.
func New(conv codec.Converter, st *store.Store) *Controller {
	return &Controller{
		conv:            conv,
		st:              st,
		publishInterval: progress.DefaultPublishInterval,
		state:           StateIdle,
	}
}

// SetPublishInterval overrides the snapshot publish cadence.
func (c *Controller) SetPublishInterval(d time.Duration) {
	c.publishInterval = d
}

// Subscribe registers a snapshot consumer. Subscribers receive every
// published snapshot, the terminal one last and exactly once per run.
func (c *Controller) Subscribe(fn func(progress.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Summary returns the last terminal summary, or nil before the first
// run has finished.
func (c *Controller) Summary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return nil
	}
	s := *c.summary
	return &s
}

// Progress returns a point-in-time snapshot of the active run, or false
// when no run is active.
func (c *Controller) Progress() (progress.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agg == nil {
		return progress.Snapshot{}, false
	}
	return c.agg.Snapshot(), true
}

// Done returns a channel closed when the current run reaches a terminal
// state. When no run is active the returned channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.runDone
}

// Start validates the request and launches the run in the background.
// A validation failure transitions to Failed, never starts workers and
// is returned to the caller. ErrRunInProgress is returned while a
// previous run has not fully drained.
func (c *Controller) Start(req Request) error {
	c.mu.Lock()
	if c.state == StateValidating || c.state == StateRunning {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	c.state = StateValidating
	c.mu.Unlock()

	job, err := buildJob(req)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.summary = &Summary{State: StateFailed, Reason: err.Error(), FinishedAt: time.Now()}
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.state = StateRunning
	c.cancel = cancel
	c.runDone = done
	c.mu.Unlock()

	log.Printf("Starting conversion run: %d files, format=%s, workers=%d, batch size=%d",
		len(job.Files), job.Format, job.Workers, job.BatchSize)
	go c.run(ctx, cancel, job, done)
	return nil
}

// Cancel requests cooperative cancellation of the active run. In-flight
// conversions finish; the terminal snapshot is emitted only after the
// pool has drained. Cancel is a no-op when no run is active.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		log.Println("Cancellation requested for active conversion run")
		cancel()
	}
}

// buildJob performs the Validating phase: checks directories, lists
// candidate files and freezes run parameters into an immutable job.
func buildJob(req Request) (batch.Job, error) {
	format, err := codec.ParseFormat(req.Format)
	if err != nil {
		return batch.Job{}, err
	}

	info, err := os.Stat(req.SourceDir)
	if err != nil {
		return batch.Job{}, fmt.Errorf("source directory %q: %w", req.SourceDir, err)
	}
	if !info.IsDir() {
		return batch.Job{}, fmt.Errorf("source path %q is not a directory", req.SourceDir)
	}

	entries, err := os.ReadDir(req.SourceDir)
	if err != nil {
		return batch.Job{}, fmt.Errorf("source directory %q is not listable: %w", req.SourceDir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".heic" || ext == ".heif" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return batch.Job{}, fmt.Errorf("%w in %q", ErrNoInputFiles, req.SourceDir)
	}

	if err := os.MkdirAll(req.DestDir, 0755); err != nil {
		return batch.Job{}, fmt.Errorf("cannot create destination directory %q: %w", req.DestDir, err)
	}

	return batch.NewJob(req.SourceDir, req.DestDir, files, format, req.Quality, req.Workers, req.BatchSize), nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, job batch.Job, done chan struct{}) {
	defer cancel()
	start := time.Now()

	var runID int64
	if c.st != nil {
		id, err := c.st.CreateRun(job.SourceDir, job.DestDir, string(job.Format),
			job.Quality, job.Workers, job.BatchSize, len(job.Files))
		if err != nil {
			log.Printf("Could not record run start: %v", err)
		} else {
			runID = id
		}
	}

	agg := progress.New(len(job.Files), c.publishInterval, c.broadcast)
	c.mu.Lock()
	c.agg = agg
	c.mu.Unlock()

	// Per-file outcomes are collected here and persisted once at run
	// termination, so workers never touch the database.
	var resMu sync.Mutex
	results := make([]codec.Result, 0, len(job.Files))

	batch.NewRunner(c.conv).Run(ctx, job, func(res codec.Result) {
		agg.Record(res)
		resMu.Lock()
		results = append(results, res)
		resMu.Unlock()
	})

	cancelled := ctx.Err() != nil
	// The pool has drained; Close flushes remaining results and emits
	// the terminal snapshot exactly once.
	agg.Close()
	snap := agg.Snapshot()

	state := StateCompleted
	if cancelled {
		state = StateCancelled
	}
	summary := &Summary{
		State:      state,
		Total:      snap.Total,
		Succeeded:  snap.Succeeded,
		Failed:     snap.Failed,
		Duration:   time.Since(start),
		RunID:      runID,
		FinishedAt: time.Now(),
	}

	if c.st != nil && runID != 0 {
		if err := c.st.AddFileResults(runID, results); err != nil {
			log.Printf("Could not record file results for run %d: %v", runID, err)
		}
		if err := c.st.FinishRun(runID, string(state), snap.Succeeded, snap.Failed); err != nil {
			log.Printf("Could not record run completion for run %d: %v", runID, err)
		}
	}

	c.mu.Lock()
	c.state = state
	c.summary = summary
	c.agg = nil
	c.cancel = nil
	c.mu.Unlock()

	log.Printf("Conversion run finished: state=%s succeeded=%d failed=%d duration=%s",
		state, snap.Succeeded, snap.Failed, summary.Duration.Round(time.Millisecond))
	close(done)
}

func (c *Controller) broadcast(snap progress.Snapshot) {
	c.mu.Lock()
	subs := make([]func(progress.Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
