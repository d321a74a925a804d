package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the media category of a job's input or output.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Status is a job lifecycle state. Transitions only move forward:
// queued -> running -> {succeeded, failed}, or queued -> failed on
// cancellation. Terminal states never change.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed
	default:
		return false
	}
}

// Options are caller-supplied conversion hints. Zero values mean "tool
// default"; each adapter translates them to its own flags.
type Options struct {
	Width   int `json:"width,omitempty"`
	Height  int `json:"height,omitempty"`
	Quality int `json:"quality,omitempty"`
}

// ConversionJob is one tracked conversion request. The worker pool is the
// only component that mutates a job after creation; everyone else gets
// snapshots from the store.
type ConversionJob struct {
	ID           string     `json:"id"`
	InputPath    string     `json:"-"`
	SourceKind   Kind       `json:"sourceKind"`
	SourceFormat string     `json:"sourceFormat"`
	TargetKind   Kind       `json:"targetKind"`
	TargetFormat string     `json:"targetFormat"`
	Options      Options    `json:"options,omitempty"`
	Status       Status     `json:"status"`
	OutputRef    string     `json:"outputRef,omitempty"`
	ErrorKind    string     `json:"errorKind,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	WorkerID     int        `json:"-"`
	OutputBytes  int64      `json:"outputBytes,omitempty"`
	DurationMS   int64      `json:"durationMs,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewJob builds a queued job with a fresh id.
func NewJob(inputPath string, sourceKind Kind, sourceFormat string, targetKind Kind, targetFormat string, opts Options) *ConversionJob {
	return &ConversionJob{
		ID:           uuid.New().String(),
		InputPath:    inputPath,
		SourceKind:   sourceKind,
		SourceFormat: NormalizeFormat(sourceFormat),
		TargetKind:   targetKind,
		TargetFormat: NormalizeFormat(targetFormat),
		Options:      opts,
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
}

// ImageFormats and VideoFormats are the fixed allow-lists the gateway
// validates against.
var (
	ImageFormats = []string{"png", "jpg", "gif", "bmp", "tiff", "webp"}
	VideoFormats = []string{"mp4", "webm", "mkv", "mov", "avi"}
)

// NormalizeFormat lowercases a format name and folds aliases (jpeg->jpg,
// tif->tiff) so the adapter matrix only sees canonical names.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	switch f {
	case "jpeg":
		return "jpg"
	case "tif":
		return "tiff"
	}
	return f
}

// KindOfFormat maps a canonical format to its media kind. The empty Kind
// means the format is not on either allow-list.
func KindOfFormat(format string) Kind {
	f := NormalizeFormat(format)
	for _, v := range ImageFormats {
		if v == f {
			return KindImage
		}
	}
	for _, v := range VideoFormats {
		if v == f {
			return KindVideo
		}
	}
	return ""
}
