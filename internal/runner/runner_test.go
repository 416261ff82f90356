package runner_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/heiftools/heifconv/internal/progress"
	"github.com/heiftools/heifconv/internal/runner"
	"github.com/heiftools/heifconv/internal/store"
	"github.com/heiftools/heifconv/internal/testutil"
)

func waitDone(t *testing.T, ctrl *runner.Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("run did not reach a terminal state in time")
	}
}

func newRequest(srcDir, destDir string) runner.Request {
	return runner.Request{
		SourceDir: srcDir,
		DestDir:   destDir,
		Format:    "png",
		Quality:   90,
		Workers:   2,
		BatchSize: 10,
	}
}

func TestRunCompletesWithMixedResults(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")
	testutil.WriteFakeHeic(t, srcDir, "a.heic", false)
	testutil.WriteFakeHeic(t, srcDir, "b.heic", false)
	testutil.WriteFakeHeic(t, srcDir, "c.heic", true) // corrupted bytes

	database := testutil.SetupTestDB(t)
	st := store.New(database)
	ctrl := runner.New(&testutil.StubConverter{}, st)
	ctrl.SetPublishInterval(10 * time.Millisecond)

	if err := ctrl.Start(newRequest(srcDir, destDir)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, ctrl)

	summary := ctrl.Summary()
	if summary == nil {
		t.Fatal("no terminal summary")
	}
	if summary.State != runner.StateCompleted {
		t.Errorf("state = %s, want completed", summary.State)
	}
	if summary.Total != 3 || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %d/%d/%d, want total 3, succeeded 2, failed 1",
			summary.Total, summary.Succeeded, summary.Failed)
	}

	// Output files exist for the two valid inputs only.
	if _, err := os.Stat(filepath.Join(destDir, "a.png")); err != nil {
		t.Errorf("a.png missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "b.png")); err != nil {
		t.Errorf("b.png missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "c.png")); err == nil {
		t.Error("c.png should not have been written for a corrupt source")
	}

	// The run and every per-file outcome are recorded.
	results, err := st.GetRunResults(summary.RunID)
	if err != nil {
		t.Fatalf("GetRunResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 recorded file results, got %d", len(results))
	}
	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
			if r.Error == "" {
				t.Error("failed result must carry a non-empty error detail")
			}
			if filepath.Base(r.SourcePath) != "c.heic" {
				t.Errorf("unexpected failed file %s", r.SourcePath)
			}
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly 1 recorded failure, got %d", failures)
	}

	run, err := st.GetRun(summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "completed" || run.Succeeded != 2 || run.Failed != 1 {
		t.Errorf("recorded run = %s %d/%d", run.Status, run.Succeeded, run.Failed)
	}
}

func TestValidationFailsForMissingSourceDir(t *testing.T) {
	ctrl := runner.New(&testutil.StubConverter{}, nil)

	err := ctrl.Start(newRequest(filepath.Join(t.TempDir(), "missing"), t.TempDir()))
	if err == nil {
		t.Fatal("expected validation error for missing source directory")
	}
	if ctrl.State() != runner.StateFailed {
		t.Errorf("state = %s, want failed", ctrl.State())
	}
	if summary := ctrl.Summary(); summary == nil || summary.Reason == "" {
		t.Error("failed summary must carry the validation reason")
	}
}

func TestValidationFailsForEmptySourceDir(t *testing.T) {
	srcDir := t.TempDir()
	// A non-matching file must not count as input.
	if err := os.WriteFile(filepath.Join(srcDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ctrl := runner.New(&testutil.StubConverter{}, nil)
	err := ctrl.Start(newRequest(srcDir, t.TempDir()))
	if !errors.Is(err, runner.ErrNoInputFiles) {
		t.Fatalf("expected ErrNoInputFiles, got %v", err)
	}
	if ctrl.State() != runner.StateFailed {
		t.Errorf("state = %s, want failed", ctrl.State())
	}
}

func TestValidationFailsForBadFormat(t *testing.T) {
	srcDir := t.TempDir()
	testutil.WriteFakeHeic(t, srcDir, "a.heic", false)

	ctrl := runner.New(&testutil.StubConverter{}, nil)
	req := newRequest(srcDir, t.TempDir())
	req.Format = "tiff"
	if err := ctrl.Start(req); err == nil {
		t.Fatal("expected validation error for unsupported format")
	}
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	for i := 0; i < 4; i++ {
		testutil.WriteFakeHeic(t, srcDir, filepath.Base(srcDir)+string(rune('a'+i))+".heic", false)
	}

	conv := &testutil.StubConverter{Gate: make(chan struct{})}
	ctrl := runner.New(conv, nil)
	ctrl.SetPublishInterval(10 * time.Millisecond)

	if err := ctrl.Start(newRequest(srcDir, destDir)); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := ctrl.Start(newRequest(srcDir, destDir)); !errors.Is(err, runner.ErrRunInProgress) {
		t.Errorf("second Start = %v, want ErrRunInProgress", err)
	}

	close(conv.Gate)
	waitDone(t, ctrl)

	// After the pool has drained a new run is accepted again.
	if err := ctrl.Start(newRequest(srcDir, destDir)); err != nil {
		t.Errorf("Start after completion failed: %v", err)
	}
	waitDone(t, ctrl)
}

func TestCancelDrainsAndReportsCancelled(t *testing.T) {
	srcDir := t.TempDir()
	for i := 0; i < 12; i++ {
		testutil.WriteFakeHeic(t, srcDir, string(rune('a'+i))+".heic", false)
	}

	conv := &testutil.StubConverter{Gate: make(chan struct{})}
	ctrl := runner.New(conv, nil)
	ctrl.SetPublishInterval(10 * time.Millisecond)

	req := newRequest(srcDir, t.TempDir())
	req.BatchSize = 1
	if err := ctrl.Start(req); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctrl.Cancel()
	close(conv.Gate)
	waitDone(t, ctrl)

	summary := ctrl.Summary()
	if summary == nil {
		t.Fatal("no terminal summary")
	}
	if summary.State != runner.StateCancelled {
		t.Errorf("state = %s, want cancelled", summary.State)
	}
	if summary.Succeeded+summary.Failed > summary.Total {
		t.Errorf("completed count %d exceeds total %d", summary.Succeeded+summary.Failed, summary.Total)
	}
}

func TestSubscriberReceivesTerminalSnapshotExactlyOnce(t *testing.T) {
	srcDir := t.TempDir()
	testutil.WriteFakeHeic(t, srcDir, "a.heic", false)
	testutil.WriteFakeHeic(t, srcDir, "b.heic", false)

	ctrl := runner.New(&testutil.StubConverter{}, nil)
	ctrl.SetPublishInterval(5 * time.Millisecond)

	var mu sync.Mutex
	terminals := 0
	var last progress.Snapshot
	ctrl.Subscribe(func(snap progress.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Terminal {
			terminals++
		}
		last = snap
	})

	if err := ctrl.Start(newRequest(srcDir, t.TempDir())); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, ctrl)

	mu.Lock()
	defer mu.Unlock()
	if terminals != 1 {
		t.Errorf("terminal snapshot delivered %d times, want once", terminals)
	}
	if !last.Terminal {
		t.Error("terminal snapshot must be the last one delivered")
	}
	if last.Succeeded != 2 || last.Failed != 0 {
		t.Errorf("terminal snapshot counts = %d/%d, want 2/0", last.Succeeded, last.Failed)
	}
}

func TestAllFilesFailedIsStillCompleted(t *testing.T) {
	srcDir := t.TempDir()
	testutil.WriteFakeHeic(t, srcDir, "x.heic", true)
	testutil.WriteFakeHeic(t, srcDir, "y.heif", true)

	ctrl := runner.New(&testutil.StubConverter{}, nil)
	ctrl.SetPublishInterval(10 * time.Millisecond)

	if err := ctrl.Start(newRequest(srcDir, t.TempDir())); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, ctrl)

	summary := ctrl.Summary()
	if summary.State != runner.StateCompleted {
		t.Errorf("state = %s, want completed even when every file failed", summary.State)
	}
	if summary.Failed != summary.Total {
		t.Errorf("failed = %d, want %d", summary.Failed, summary.Total)
	}
}

func TestUppercaseExtensionsAreMatched(t *testing.T) {
	srcDir := t.TempDir()
	testutil.WriteFakeHeic(t, srcDir, "IMG_001.HEIC", false)
	testutil.WriteFakeHeic(t, srcDir, "IMG_002.HeIf", false)

	ctrl := runner.New(&testutil.StubConverter{}, nil)
	ctrl.SetPublishInterval(10 * time.Millisecond)

	if err := ctrl.Start(newRequest(srcDir, t.TempDir())); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, ctrl)

	if summary := ctrl.Summary(); summary.Total != 2 {
		t.Errorf("total = %d, want 2 (case-insensitive extension match)", summary.Total)
	}
}
