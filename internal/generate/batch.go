package generate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/render"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

// CoverDeriver produces the auto-derived cover from a document's first
// page. Kept as an interface so batch tests can observe the trigger.
type CoverDeriver interface {
	DeriveFromPage1(ctx context.Context, documentID string) error
}

// BatchProcessor renders one contiguous run of pages. Each page is
// all-or-nothing across tiers: a page image record exists only when every
// tier rendered and uploaded, otherwise the page is recorded as failed and
// any partial tier uploads are orphaned until the next successful run
// overwrites them.
type BatchProcessor struct {
	Store    store.Store
	Storage  storage.Gateway
	Renderer render.Renderer
	Covers   CoverDeriver
	Logger   *slog.Logger

	wg sync.WaitGroup
}

// BatchResult reports what one batch did.
type BatchResult struct {
	Completed int
	Failed    int
}

// ProcessBatch renders pages [first, last] of an open source, persisting
// progress per page. Page failures never abort the batch.
func (b *BatchProcessor) ProcessBatch(ctx context.Context, job *store.GenerationJob, src render.Source, first, last int) (BatchResult, error) {
	var result BatchResult
	for pageNum := first; pageNum <= last; pageNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := b.processPage(ctx, job, src, pageNum); err != nil {
			result.Failed++
			failure := store.PageFailure{
				Page:    pageNum,
				Message: err.Error(),
				At:      time.Now().UTC(),
			}
			if serr := b.Store.IncrementProgress(ctx, job.ID, 0, 1, []store.PageFailure{failure}); serr != nil {
				return result, serr
			}
			b.Logger.Warn("page failed",
				"document_id", job.DocumentID,
				"job_id", job.ID,
				"page", pageNum,
				"error", err)
			continue
		}
		result.Completed++
		if err := b.Store.IncrementProgress(ctx, job.ID, 1, 0, nil); err != nil {
			return result, err
		}
		if pageNum == 1 && b.Covers != nil {
			b.deriveCoverAsync(ctx, job.DocumentID)
		}
	}
	return result, nil
}

// processPage renders every tier of one page and persists the page record.
// The page image geometry is taken from the ultra tier.
func (b *BatchProcessor) processPage(ctx context.Context, job *store.GenerationJob, src render.Source, pageNum int) error {
	tiers := make(map[string]store.TierFile, 4)
	var width, height int

	for _, spec := range render.Tiers() {
		page, err := b.Renderer.RenderPage(ctx, src, pageNum, spec)
		if err != nil {
			return err
		}
		key := storage.PageKey(job.DocumentID, spec.Suffix, pageNum)
		err = b.Storage.Put(ctx, key, page.Data, storage.PutOptions{
			ContentType:  "image/jpeg",
			CacheControl: storage.CachePageImage,
		})
		if err != nil {
			return err
		}
		tiers[spec.Suffix] = store.TierFile{Path: key, Size: int64(len(page.Data))}
		if spec.Tier == render.TierUltra {
			width, height = page.Width, page.Height
		}
	}

	return b.Store.UpsertPageImage(ctx, &store.PageImage{
		DocumentID: job.DocumentID,
		PageNumber: pageNum,
		Width:      width,
		Height:     height,
		Tiers:      tiers,
		CreatedAt:  time.Now().UTC(),
	})
}

// deriveCoverAsync fires cover derivation without blocking the batch.
// Failures are logged; the coordinator re-checks after the job finishes.
func (b *BatchProcessor) deriveCoverAsync(ctx context.Context, documentID string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Covers.DeriveFromPage1(ctx, documentID); err != nil {
			b.Logger.Warn("cover derivation failed", "document_id", documentID, "error", err)
		}
	}()
}

// Wait blocks until in-flight cover derivations finish.
func (b *BatchProcessor) Wait() {
	b.wg.Wait()
}
