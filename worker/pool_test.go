package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"converter/adapters"
	"converter/config"
	"converter/errs"
	"converter/models"
	"converter/storage"
	"converter/store"
)

// stubAdapter stands in for an external tool. It honors the context the
// way the real runner does: deadline -> ErrTimeout, cancel -> ErrCancelled.
type stubAdapter struct {
	delay   time.Duration
	fail    error
	onStart func()
	onDone  func()
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Convert(ctx context.Context, inputPath, targetFormat string, opts models.Options) (string, error) {
	if a.onStart != nil {
		a.onStart()
	}
	if a.onDone != nil {
		defer a.onDone()
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("stub: %w", errs.ErrTimeout)
			}
			return "", fmt.Errorf("stub: %w", errs.ErrCancelled)
		}
	}
	if a.fail != nil {
		return "", a.fail
	}
	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".converted." + targetFormat
	if err := os.WriteFile(out, []byte("converted"), 0644); err != nil {
		return "", err
	}
	return out, nil
}

type stubSelector struct {
	adapter adapters.Adapter
	err     error
}

func (s *stubSelector) Select(sourceKind, targetKind models.Kind, sourceFormat, targetFormat string) (adapters.Adapter, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.adapter, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir:         t.TempDir(),
		WorkerCount:     1,
		MaxQueueDepth:   16,
		ImageTimeout:    5 * time.Second,
		VideoTimeout:    5 * time.Second,
		RetentionWindow: time.Hour,
	}
}

func newTestPool(t *testing.T, cfg *config.Config, selector Selector) *Pool {
	t.Helper()
	artifacts, err := storage.NewLocalStorage(filepath.Join(cfg.WorkDir, "artifacts"))
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return NewPool(cfg, store.NewMemoryStore(), artifacts, nil, selector)
}

func writeInput(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	path := filepath.Join(cfg.WorkDir, name)
	if err := os.WriteFile(path, []byte("input bytes"), 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

func startWorkers(t *testing.T, p *Pool, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.StartWorker(ctx, id)
		}(i)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestSubmitAndComplete(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	startWorkers(t, p, 1)

	ctx := context.Background()
	input := writeInput(t, cfg, "in.png")

	job, err := p.Submit(ctx, input, "png", "webp", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != models.StatusQueued {
		t.Fatalf("expected queued snapshot, got %s", job.Status)
	}

	done, err := p.Await(ctx, job.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if done.Status != models.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.OutputRef == "" {
		t.Fatal("succeeded job must carry an outputRef")
	}
	if done.ErrorMessage != "" || done.ErrorKind != "" {
		t.Fatal("succeeded job must not carry an error")
	}
	if done.CompletedAt == nil {
		t.Fatal("terminal job must carry completedAt")
	}
	if done.OutputBytes == 0 || done.DurationMS < 0 {
		t.Fatalf("expected completion metadata, got %+v", done)
	}

	// The input is released once the job is terminal.
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(input); os.IsNotExist(err) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("input file was not cleaned up")
}

func TestSubmitUnsupportedCreatesNoJob(t *testing.T) {
	cfg := testConfig(t)
	sel := &stubSelector{err: fmt.Errorf("%w: no adapter", errs.ErrUnsupportedFormat)}
	p := newTestPool(t, cfg, sel)

	job, err := p.Submit(context.Background(), writeInput(t, cfg, "in.png"), "png", "mp4", models.Options{})
	if !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if job != nil {
		t.Fatal("no job may be created for an unsupported pair")
	}
}

func TestSubmitUnknownFormat(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})

	_, err := p.Submit(context.Background(), writeInput(t, cfg, "in.pdf"), "pdf", "png", models.Options{})
	if !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for unknown format, got %v", err)
	}
}

func TestSubmitOverload(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxQueueDepth = 1
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	// No workers: the queue fills immediately.

	ctx := context.Background()
	first, err := p.Submit(ctx, writeInput(t, cfg, "a.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	_, err = p.Submit(ctx, writeInput(t, cfg, "b.png"), "png", "jpg", models.Options{})
	if !errors.Is(err, errs.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}

	// The accepted job is unaffected.
	got, err := p.GetStatus(ctx, first.ID)
	if err != nil || got.Status != models.StatusQueued {
		t.Fatalf("first job disturbed: %+v, %v", got, err)
	}
}

func TestCancelQueued(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	// No workers: the job stays queued.

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := p.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, err := p.GetStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorKind != "cancelled" {
		t.Fatalf("expected cancelled error kind, got %q", got.ErrorKind)
	}
	if got.OutputRef != "" {
		t.Fatal("cancelled job must not carry an outputRef")
	}

	// Cancelling a terminal job is a no-op.
	if err := p.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
}

func TestCancelRunning(t *testing.T) {
	cfg := testConfig(t)
	running := make(chan struct{})
	adapter := &stubAdapter{delay: time.Minute, onStart: func() { close(running) }}
	p := newTestPool(t, cfg, &stubSelector{adapter: adapter})
	startWorkers(t, p, 1)

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	if err := p.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	done, err := p.Await(ctx, job.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if done.Status != models.StatusFailed || done.ErrorKind != "cancelled" {
		t.Fatalf("expected failed/cancelled, got %s/%s", done.Status, done.ErrorKind)
	}
}

func TestCancelUnknown(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	if err := p.Cancel(context.Background(), "nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToolTimeoutFailsJobWithinGracePeriod(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImageTimeout = 100 * time.Millisecond
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{delay: time.Minute}})
	startWorkers(t, p, 1)

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	start := time.Now()
	done, err := p.Await(ctx, job.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if done.Status != models.StatusFailed || done.ErrorKind != "timeout" {
		t.Fatalf("expected failed/timeout, got %s/%s (%s)", done.Status, done.ErrorKind, done.ErrorMessage)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout took %v to surface", elapsed)
	}
}

func TestToolFailureRecordsErrorKind(t *testing.T) {
	cfg := testConfig(t)
	adapter := &stubAdapter{fail: &errs.ToolError{Tool: "stub", ExitCode: 1, Stderr: "corrupt input"}}
	p := newTestPool(t, cfg, &stubSelector{adapter: adapter})
	startWorkers(t, p, 1)

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	done, err := p.Await(ctx, job.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if done.Status != models.StatusFailed || done.ErrorKind != "tool" {
		t.Fatalf("expected failed/tool, got %s/%s", done.Status, done.ErrorKind)
	}
	if done.ErrorMessage == "" || done.OutputRef != "" {
		t.Fatalf("terminal invariant violated: %+v", done)
	}
}

func TestConcurrencyNeverExceedsWorkerCount(t *testing.T) {
	cfg := testConfig(t)
	const workers = 2
	const jobs = 6

	var mu sync.Mutex
	var current, peak int
	adapter := &stubAdapter{
		delay: 100 * time.Millisecond,
		onStart: func() {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
		},
		onDone: func() {
			mu.Lock()
			current--
			mu.Unlock()
		},
	}
	p := newTestPool(t, cfg, &stubSelector{adapter: adapter})
	startWorkers(t, p, workers)

	ctx := context.Background()
	ids := make([]string, 0, jobs)
	for i := 0; i < jobs; i++ {
		job, err := p.Submit(ctx, writeInput(t, cfg, fmt.Sprintf("in%d.png", i)), "png", "jpg", models.Options{})
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		done, err := p.Await(ctx, id, 10*time.Second)
		if err != nil || done.Status != models.StatusSucceeded {
			t.Fatalf("job %s did not succeed: %+v, %v", id, done, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > workers {
		t.Fatalf("observed %d simultaneous conversions with %d workers", peak, workers)
	}
	if peak == 0 {
		t.Fatal("instrumentation never fired")
	}
}

func TestAwaitReturnsNonTerminalAtBound(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	// No workers: the job can never finish.

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got, err := p.Await(ctx, job.ID, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if got.Status.Terminal() {
		t.Fatalf("expected non-terminal snapshot, got %s", got.Status)
	}
}

func TestSweepRemovesExpiredJobs(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPool(t, cfg, &stubSelector{adapter: &stubAdapter{}})
	startWorkers(t, p, 1)

	ctx := context.Background()
	job, err := p.Submit(ctx, writeInput(t, cfg, "in.png"), "png", "jpg", models.Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	done, err := p.Await(ctx, job.ID, 5*time.Second)
	if err != nil || done.Status != models.StatusSucceeded {
		t.Fatalf("job did not succeed: %+v, %v", done, err)
	}

	// Fresh terminal jobs survive a sweep.
	p.sweep(ctx)
	if _, err := p.GetStatus(ctx, job.ID); err != nil {
		t.Fatalf("fresh job swept early: %v", err)
	}

	cfg.RetentionWindow = 0
	time.Sleep(10 * time.Millisecond)
	p.sweep(ctx)

	if _, err := p.GetStatus(ctx, job.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected expired job to be gone, got %v", err)
	}
}
