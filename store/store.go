// Package store owns job persistence. The worker pool is the single
// writer; every read hands out a snapshot copy, never a live pointer.
package store

import (
	"context"
	"time"

	"converter/models"
)

type JobStore interface {
	Create(ctx context.Context, job *models.ConversionJob) error
	// Get returns a snapshot of the job, or errs.ErrNotFound.
	Get(ctx context.Context, id string) (*models.ConversionJob, error)
	// Update persists job, rejecting transitions out of a terminal state.
	Update(ctx context.Context, job *models.ConversionJob) error
	Delete(ctx context.Context, id string) error
	// ListTerminalBefore returns terminal jobs completed before cutoff,
	// for the retention janitor.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.ConversionJob, error)
	Close() error
}
