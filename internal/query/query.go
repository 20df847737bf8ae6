// Package query is the read path for rendered pages: listing, single-page
// lookup, and generation status, always with freshly signed URLs.
package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/foliolabs/folio/internal/cache"
	"github.com/foliolabs/folio/internal/render"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

// ErrUnknownTier rejects a resolution filter that names no tier.
var ErrUnknownTier = errors.New("unknown resolution tier")

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// StatusNone is reported when a document has never had a generation job.
const StatusNone = "none"

// Service answers page and status queries.
type Service struct {
	Store   store.Store
	Storage storage.Gateway
	Cache   *cache.JobCache
	Logger  *slog.Logger
}

// PageEntry is one page in a listing: geometry plus per-tier URLs and
// sizes. URLs are minted per request and expire; clients must not persist
// them.
type PageEntry struct {
	PageNumber int               `json:"page_number"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	URLs       map[string]string `json:"urls"`
	FileSizes  map[string]int64  `json:"file_sizes"`
}

// PageList is a paginated listing with generation context.
type PageList struct {
	Pages            []PageEntry `json:"pages"`
	Page             int         `json:"page"`
	Limit            int         `json:"limit"`
	Total            int         `json:"total"`
	TotalPages       int         `json:"total_pages"`
	GenerationStatus string      `json:"generation_status"`
}

// ListPages returns one page of the document's rendered pages, ordered by
// page number. tierFilter restricts URLs to a single tier; empty means all.
func (s *Service) ListPages(ctx context.Context, documentID string, page, limit int, tierFilter string) (*PageList, error) {
	specs, err := filterTiers(tierFilter)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	images, total, err := s.Store.ListPages(ctx, documentID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]PageEntry, 0, len(images))
	for _, img := range images {
		entry, err := s.buildEntry(ctx, img, specs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	status, totalPages := s.generationStatus(ctx, documentID)
	return &PageList{
		Pages:            entries,
		Page:             page,
		Limit:            limit,
		Total:            total,
		TotalPages:       totalPages,
		GenerationStatus: status,
	}, nil
}

// GetPage returns one page with fresh URLs, or store.ErrPageNotFound.
func (s *Service) GetPage(ctx context.Context, documentID string, pageNumber int, tierFilter string) (*PageEntry, error) {
	specs, err := filterTiers(tierFilter)
	if err != nil {
		return nil, err
	}
	img, err := s.Store.GetPage(ctx, documentID, pageNumber)
	if err != nil {
		return nil, err
	}
	return s.buildEntry(ctx, img, specs)
}

// Status reports the document's latest generation job. Returns StatusNone
// and a nil job when no job has ever run.
func (s *Service) Status(ctx context.Context, documentID string) (*store.GenerationJob, string, error) {
	if job := s.Cache.GetJob(ctx, documentID); job != nil {
		return job, string(job.Status), nil
	}
	job, err := s.Store.LatestJobForDocument(ctx, documentID)
	if errors.Is(err, store.ErrJobNotFound) {
		return nil, StatusNone, nil
	}
	if err != nil {
		return nil, "", err
	}
	s.Cache.SetJob(ctx, job)
	return job, string(job.Status), nil
}

func (s *Service) buildEntry(ctx context.Context, img *store.PageImage, specs []render.TierSpec) (*PageEntry, error) {
	urls := make(map[string]string, len(specs))
	sizes := make(map[string]int64, len(specs))
	for _, spec := range specs {
		tf, ok := img.Tiers[spec.Suffix]
		if !ok {
			continue
		}
		url, err := s.Storage.PresignedURL(ctx, tf.Path, storage.URLExpiry)
		if err != nil {
			return nil, err
		}
		urls[spec.Suffix] = url
		sizes[spec.Suffix] = tf.Size
	}
	return &PageEntry{
		PageNumber: img.PageNumber,
		Width:      img.Width,
		Height:     img.Height,
		URLs:       urls,
		FileSizes:  sizes,
	}, nil
}

func (s *Service) generationStatus(ctx context.Context, documentID string) (string, int) {
	job, status, err := s.Status(ctx, documentID)
	if err != nil {
		s.Logger.Warn("loading generation status", "document_id", documentID, "error", err)
		return StatusNone, 0
	}
	if job == nil {
		return status, 0
	}
	return status, job.TotalPages
}

func filterTiers(tierFilter string) ([]render.TierSpec, error) {
	if tierFilter == "" {
		return render.Tiers(), nil
	}
	spec, ok := render.TierByName(tierFilter)
	if !ok {
		return nil, ErrUnknownTier
	}
	return []render.TierSpec{spec}, nil
}
