// Package store is the durable state layer for generation jobs, page images
// and book covers.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrJobAlreadyActive is returned by CreateJob when a queued or
	// processing job already exists for the document.
	ErrJobAlreadyActive = errors.New("a generation job is already active for this document")

	ErrJobNotFound   = errors.New("generation job not found")
	ErrPageNotFound  = errors.New("page image not found")
	ErrCoverNotFound = errors.New("book cover not found")
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// MaxFailureDetails caps the stored per-page failure entries on a job.
// The failed-page counter stays exact; only the detail list is bounded.
const MaxFailureDetails = 200

// PageFailure is one recorded per-page failure.
// Page 0 marks a synthetic entry for a source that could not be opened.
type PageFailure struct {
	Page    int       `json:"page"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// GenerationJob is one execution of the generation pipeline for a document.
type GenerationJob struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	UserID         string        `json:"user_id"`
	Status         Status        `json:"status"`
	TotalPages     int           `json:"total_pages"`
	CompletedPages int           `json:"completed_pages"`
	FailedPages    int           `json:"failed_pages"`
	Failures       []PageFailure `json:"failures,omitempty"`
	QueuedAt       time.Time     `json:"queued_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// FailedPageNumbers returns the page numbers from the recorded failure list,
// excluding synthetic page-0 entries.
func (j *GenerationJob) FailedPageNumbers() []int {
	nums := make([]int, 0, len(j.Failures))
	for _, f := range j.Failures {
		if f.Page > 0 {
			nums = append(nums, f.Page)
		}
	}
	return nums
}

// TierFile records where one tier of a page image landed and its size.
type TierFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// PageImage is the persisted record for one fully rendered page.
// It exists only once every tier has been written; a page that fails any
// tier is recorded solely in the job's failure list.
type PageImage struct {
	DocumentID string              `json:"document_id"`
	PageNumber int                 `json:"page_number"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Tiers      map[string]TierFile `json:"tiers"` // keyed by tier suffix
	CreatedAt  time.Time           `json:"created_at"`
}

// AspectRatio returns width/height, or 0 for degenerate geometry.
func (p *PageImage) AspectRatio() float64 {
	if p.Height <= 0 {
		return 0
	}
	return float64(p.Width) / float64(p.Height)
}

// BookCover is the single cover record for a document.
type BookCover struct {
	DocumentID string    `json:"document_id"`
	IsCustom   bool      `json:"is_custom"`
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the durable state interface used by the pipeline and read paths.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob conditionally inserts a queued job. Returns
	// ErrJobAlreadyActive when a queued/processing job exists for the
	// document; this is the only cross-job coordination point.
	CreateJob(ctx context.Context, job *GenerationJob) error
	GetJob(ctx context.Context, jobID string) (*GenerationJob, error)
	LatestJobForDocument(ctx context.Context, documentID string) (*GenerationJob, error)

	MarkJobProcessing(ctx context.Context, jobID string) error
	SetJobTotalPages(ctx context.Context, jobID string, totalPages int) error

	// IncrementProgress atomically adds to the job counters and appends
	// failure detail entries (bounded at MaxFailureDetails). Counters are
	// incremented store-side, never read-modify-write at the caller.
	IncrementProgress(ctx context.Context, jobID string, completedDelta, failedDelta int, failures []PageFailure) error

	// FinalizeJob sets the terminal status and completion timestamp.
	FinalizeJob(ctx context.Context, jobID string, status Status) error

	// FailJob marks the job failed with a synthetic failure entry without
	// touching the page counters (used when the source cannot be opened).
	FailJob(ctx context.Context, jobID string, failure PageFailure) error

	// PruneJobs deletes terminal jobs older than the retention window.
	PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	// UnfinishedJobs returns the IDs of queued and processing jobs, oldest
	// first. Used on startup to recover jobs orphaned by a restart.
	UnfinishedJobs(ctx context.Context) ([]string, error)

	// RequeueJob resets a job to queued with zeroed progress so it can be
	// processed again from the start.
	RequeueJob(ctx context.Context, jobID string) error

	UpsertPageImage(ctx context.Context, page *PageImage) error
	GetPage(ctx context.Context, documentID string, pageNumber int) (*PageImage, error)
	ListPages(ctx context.Context, documentID string, offset, limit int) ([]*PageImage, int, error)

	GetCover(ctx context.Context, documentID string) (*BookCover, error)
	UpsertCover(ctx context.Context, cover *BookCover) error
	DeleteCover(ctx context.Context, documentID string) error
}
