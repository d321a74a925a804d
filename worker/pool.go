// Package worker owns the conversion job lifecycle: a bounded FIFO queue
// drained by a fixed pool of workers, each blocking on at most one
// external tool process. The pool is the only component that mutates job
// records after creation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"converter/adapters"
	"converter/config"
	"converter/errs"
	"converter/models"
	"converter/statuscache"
	"converter/store"
	"converter/storage"
)

// Selector picks the adapter servicing a conversion pair.
// *adapters.Registry is the production implementation.
type Selector interface {
	Select(sourceKind, targetKind models.Kind, sourceFormat, targetFormat string) (adapters.Adapter, error)
}

type Pool struct {
	config   *config.Config
	store    store.JobStore
	storage  storage.Storage
	cache    *statuscache.Cache // nil when Redis is not configured
	registry Selector

	queue chan string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewPool(cfg *config.Config, jobStore store.JobStore, artifactStore storage.Storage, cache *statuscache.Cache, registry Selector) *Pool {
	return &Pool{
		config:   cfg,
		store:    jobStore,
		storage:  artifactStore,
		cache:    cache,
		registry: registry,
		queue:    make(chan string, cfg.MaxQueueDepth),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit validates that an adapter covers the conversion pair, creates a
// queued job and enqueues it. Returns without blocking: a saturated pool
// just leaves the job queued, a full queue fails with ErrOverloaded and
// creates no job.
func (p *Pool) Submit(ctx context.Context, inputPath, sourceFormat, targetFormat string, opts models.Options) (*models.ConversionJob, error) {
	sourceFormat = models.NormalizeFormat(sourceFormat)
	targetFormat = models.NormalizeFormat(targetFormat)
	sourceKind := models.KindOfFormat(sourceFormat)
	targetKind := models.KindOfFormat(targetFormat)
	if sourceKind == "" || targetKind == "" {
		return nil, fmt.Errorf("%w: unknown format %q -> %q", errs.ErrUnsupportedFormat, sourceFormat, targetFormat)
	}
	if _, err := p.registry.Select(sourceKind, targetKind, sourceFormat, targetFormat); err != nil {
		return nil, err
	}

	job := models.NewJob(inputPath, sourceKind, sourceFormat, targetKind, targetFormat, opts)
	if err := p.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	select {
	case p.queue <- job.ID:
	default:
		p.store.Delete(ctx, job.ID)
		return nil, errs.ErrOverloaded
	}

	p.publish(ctx, job)
	snapshot := *job
	return &snapshot, nil
}

// GetStatus returns a job snapshot, or errs.ErrNotFound.
func (p *Pool) GetStatus(ctx context.Context, jobID string) (*models.ConversionJob, error) {
	return p.store.Get(ctx, jobID)
}

// Cancel is best-effort: a queued job fails immediately with
// ErrCancelled; a running job's tool process gets killed and the worker
// marks the job failed once the process is confirmed dead. Terminal jobs
// are left alone.
func (p *Pool) Cancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	if cancel, ok := p.cancels[jobID]; ok {
		p.mu.Unlock()
		cancel()
		return nil
	}
	p.mu.Unlock()

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	p.failJob(ctx, job, errs.ErrCancelled)
	return nil
}

// Await polls until the job reaches a terminal state or bound elapses,
// returning the latest snapshot either way. Callers check Terminal() to
// distinguish completion from a wait that ran out.
func (p *Pool) Await(ctx context.Context, jobID string, bound time.Duration) (*models.ConversionJob, error) {
	deadline := time.Now().Add(bound)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := p.store.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() || time.Now().After(deadline) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, nil
		case <-ticker.C:
		}
	}
}

// StartWorker drains the queue until ctx is cancelled. One goroutine per
// worker slot; each blocks on at most one tool process at a time.
func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log.Printf("[Worker %d] Starting", workerID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker %d] Shutting down", workerID)
			return
		case jobID := <-p.queue:
			p.processJob(ctx, workerID, jobID)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, workerID int, jobID string) {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		log.Printf("[Worker %d] Dropping unknown job %s: %v", workerID, jobID, err)
		return
	}
	if job.Status != models.StatusQueued {
		// Cancelled while queued.
		return
	}

	job.Status = models.StatusRunning
	job.WorkerID = workerID
	if err := p.store.Update(ctx, job); err != nil {
		// Lost the race with a cancel; the job is already terminal.
		log.Printf("[Worker %d] Skipping job %s: %v", workerID, jobID, err)
		return
	}
	p.publish(ctx, job)
	log.Printf("[Worker %d] Converting job %s (%s/%s -> %s/%s)",
		workerID, job.ID, job.SourceKind, job.SourceFormat, job.TargetKind, job.TargetFormat)

	adapter, err := p.registry.Select(job.SourceKind, job.TargetKind, job.SourceFormat, job.TargetFormat)
	if err != nil {
		p.failJob(ctx, job, err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.TimeoutFor(string(job.SourceKind)))
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
	}()

	startTime := time.Now()
	outputPath, err := adapter.Convert(jobCtx, job.InputPath, job.TargetFormat, job.Options)
	if err != nil {
		p.failJob(ctx, job, err)
		return
	}

	// Storing the artifact uses the parent context: the per-tool deadline
	// covers the conversion, not the upload.
	ref, size, err := p.storage.Store(ctx, job.ID, outputPath)
	if err != nil {
		os.Remove(outputPath)
		p.failJob(ctx, job, fmt.Errorf("failed to store artifact: %w", err))
		return
	}

	duration := time.Since(startTime)
	now := time.Now().UTC()
	job.Status = models.StatusSucceeded
	job.OutputRef = ref
	job.OutputBytes = size
	job.DurationMS = duration.Milliseconds()
	job.CompletedAt = &now
	if err := p.store.Update(ctx, job); err != nil {
		log.Printf("[Worker %d] Failed to persist success for job %s: %v", workerID, job.ID, err)
	}
	p.publish(ctx, job)
	os.Remove(job.InputPath)

	log.Printf("[Worker %d] Job %s completed successfully (%.2fs, %d bytes)",
		workerID, job.ID, duration.Seconds(), size)
}

// failJob drives a job to its failed terminal state. No retries: external
// tools are deterministic enough that a blind re-run rarely helps, so the
// caller re-submits explicitly if they want another attempt.
func (p *Pool) failJob(ctx context.Context, job *models.ConversionJob, cause error) {
	now := time.Now().UTC()
	job.Status = models.StatusFailed
	job.OutputRef = ""
	job.ErrorKind = errs.Kind(cause)
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &now
	if err := p.store.Update(ctx, job); err != nil {
		log.Printf("Failed to persist failure for job %s: %v", job.ID, err)
		return
	}
	p.publish(ctx, job)
	os.Remove(job.InputPath)

	log.Printf("Job %s failed (%s): %v", job.ID, job.ErrorKind, cause)
}

func (p *Pool) publish(ctx context.Context, job *models.ConversionJob) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Publish(ctx, job); err != nil {
		log.Printf("Failed to mirror status for job %s: %v", job.ID, err)
	}
}

// JanitorLoop deletes terminal jobs and their artifacts once the
// retention window elapses.
func (p *Pool) JanitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[Janitor] Starting retention loop")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Janitor] Shutting down")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pool) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.config.RetentionWindow)
	jobs, err := p.store.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Janitor] Failed to list expired jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if job.OutputRef != "" {
			if err := p.storage.Remove(ctx, job.OutputRef); err != nil {
				log.Printf("[Janitor] Failed to remove artifact for job %s: %v", job.ID, err)
				continue
			}
		}
		os.Remove(job.InputPath)
		if err := p.store.Delete(ctx, job.ID); err != nil {
			log.Printf("[Janitor] Failed to delete job %s: %v", job.ID, err)
			continue
		}
		if p.cache != nil {
			if err := p.cache.Drop(ctx, job.ID); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[Janitor] Failed to drop status for job %s: %v", job.ID, err)
			}
		}
	}

	if len(jobs) > 0 {
		log.Printf("[Janitor] Removed %d expired jobs", len(jobs))
	}
}
