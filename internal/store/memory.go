package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory implements Store with in-memory maps for unit tests.
// Semantics match the Postgres implementation, including the conditional
// insert and the bounded failure list. Error injection fields let tests
// exercise failure paths.
type Memory struct {
	mu     sync.RWMutex
	jobs   map[string]*GenerationJob
	pages  map[string]map[int]*PageImage // documentID -> pageNumber
	covers map[string]*BookCover

	// --- Error injection for tests ---

	// CreateJobErr is returned by CreateJob when non-nil.
	CreateJobErr error

	// IncrementErr is returned by IncrementProgress when non-nil.
	IncrementErr error

	// UpsertPageErr is returned by UpsertPageImage when non-nil.
	UpsertPageErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*GenerationJob),
		pages:  make(map[string]map[int]*PageImage),
		covers: make(map[string]*BookCover),
	}
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) CreateJob(ctx context.Context, job *GenerationJob) error {
	if s.CreateJobErr != nil {
		return s.CreateJobErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.DocumentID == job.DocumentID && !existing.Status.Terminal() {
			return ErrJobAlreadyActive
		}
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Memory) GetJob(ctx context.Context, jobID string) (*GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *Memory) LatestJobForDocument(ctx context.Context, documentID string) (*GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *GenerationJob
	for _, job := range s.jobs {
		if job.DocumentID != documentID {
			continue
		}
		if latest == nil || job.QueuedAt.After(latest.QueuedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrJobNotFound
	}
	return cloneJob(latest), nil
}

func (s *Memory) MarkJobProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.StartedAt = &now
	return nil
}

func (s *Memory) SetJobTotalPages(ctx context.Context, jobID string, totalPages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.TotalPages = totalPages
	return nil
}

func (s *Memory) IncrementProgress(ctx context.Context, jobID string, completedDelta, failedDelta int, failures []PageFailure) error {
	if s.IncrementErr != nil {
		return s.IncrementErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.CompletedPages += completedDelta
	job.FailedPages += failedDelta
	if len(job.Failures) < MaxFailureDetails {
		job.Failures = append(job.Failures, failures...)
	}
	return nil
}

func (s *Memory) FinalizeJob(ctx context.Context, jobID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	return nil
}

func (s *Memory) FailJob(ctx context.Context, jobID string, failure PageFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Failures = append(job.Failures, failure)
	return nil
}

func (s *Memory) PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var pruned int64
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.QueuedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *Memory) UnfinishedJobs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var unfinished []*GenerationJob
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			unfinished = append(unfinished, job)
		}
	}
	sort.Slice(unfinished, func(i, j int) bool {
		return unfinished[i].QueuedAt.Before(unfinished[j].QueuedAt)
	})
	ids := make([]string, 0, len(unfinished))
	for _, job := range unfinished {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (s *Memory) RequeueJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusQueued
	job.TotalPages = 0
	job.CompletedPages = 0
	job.FailedPages = 0
	job.Failures = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	return nil
}

func (s *Memory) UpsertPageImage(ctx context.Context, page *PageImage) error {
	if s.UpsertPageErr != nil {
		return s.UpsertPageErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byPage, ok := s.pages[page.DocumentID]
	if !ok {
		byPage = make(map[int]*PageImage)
		s.pages[page.DocumentID] = byPage
	}
	byPage[page.PageNumber] = clonePage(page)
	return nil
}

func (s *Memory) GetPage(ctx context.Context, documentID string, pageNumber int) (*PageImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[documentID][pageNumber]
	if !ok {
		return nil, ErrPageNotFound
	}
	return clonePage(page), nil
}

func (s *Memory) ListPages(ctx context.Context, documentID string, offset, limit int) ([]*PageImage, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPage := s.pages[documentID]
	nums := make([]int, 0, len(byPage))
	for n := range byPage {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	total := len(nums)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	pages := make([]*PageImage, 0, end-offset)
	for _, n := range nums[offset:end] {
		pages = append(pages, clonePage(byPage[n]))
	}
	return pages, total, nil
}

func (s *Memory) GetCover(ctx context.Context, documentID string) (*BookCover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cover, ok := s.covers[documentID]
	if !ok {
		return nil, ErrCoverNotFound
	}
	c := *cover
	return &c, nil
}

func (s *Memory) UpsertCover(ctx context.Context, cover *BookCover) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cover
	s.covers[cover.DocumentID] = &c
	return nil
}

func (s *Memory) DeleteCover(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.covers, documentID)
	return nil
}

// PageCount returns the number of stored page images for a document.
// Test helper.
func (s *Memory) PageCount(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages[documentID])
}

func cloneJob(job *GenerationJob) *GenerationJob {
	c := *job
	c.Failures = append([]PageFailure(nil), job.Failures...)
	return &c
}

func clonePage(page *PageImage) *PageImage {
	c := *page
	c.Tiers = make(map[string]TierFile, len(page.Tiers))
	for k, v := range page.Tiers {
		c.Tiers[k] = v
	}
	return &c
}

// Verify interface compliance
var _ Store = (*Memory)(nil)
