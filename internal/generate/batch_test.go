package generate

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

func testJob(documentID string) *store.GenerationJob {
	return &store.GenerationJob{
		ID:         "job-1",
		DocumentID: documentID,
		Status:     store.StatusProcessing,
		QueuedAt:   time.Now().UTC(),
	}
}

func TestStorageFailureFailsWholePage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	gw := storage.NewMemory()
	// The high-tier write for page 3 fails; earlier tiers succeeded.
	gw.FailKeys = []string{"high/3.jpg"}

	job := testJob("doc-1")
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	b := &BatchProcessor{
		Store:    st,
		Storage:  gw,
		Renderer: &fakeRenderer{failPages: map[int]bool{}},
		Logger:   slog.Default(),
	}

	result, err := b.ProcessBatch(ctx, job, &fakeSource{pages: 5}, 1, 5)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if result.Completed != 4 || result.Failed != 1 {
		t.Errorf("result = %+v, want 4 completed / 1 failed", result)
	}

	// No page record for the failed page, even though earlier tiers landed.
	if _, err := st.GetPage(ctx, "doc-1", 3); !errors.Is(err, store.ErrPageNotFound) {
		t.Error("failed page has a stored image")
	}
	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailedPages != 1 || got.CompletedPages != 4 {
		t.Errorf("counters = %d/%d", got.CompletedPages, got.FailedPages)
	}
	if nums := got.FailedPageNumbers(); len(nums) != 1 || nums[0] != 3 {
		t.Errorf("failed pages = %v", nums)
	}
}

func TestPageRecordCarriesAllTiers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	gw := storage.NewMemory()

	job := testJob("doc-1")
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	b := &BatchProcessor{
		Store:    st,
		Storage:  gw,
		Renderer: &fakeRenderer{failPages: map[int]bool{}},
		Logger:   slog.Default(),
	}
	if _, err := b.ProcessBatch(ctx, job, &fakeSource{pages: 2}, 1, 2); err != nil {
		t.Fatal(err)
	}

	page, err := st.GetPage(ctx, "doc-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Tiers) != 4 {
		t.Fatalf("tiers = %d, want 4", len(page.Tiers))
	}
	for _, suffix := range []string{"thumb", "med", "high", "ultra"} {
		tf, ok := page.Tiers[suffix]
		if !ok || tf.Size <= 0 {
			t.Errorf("tier %s missing or empty: %+v", suffix, tf)
		}
	}
	// Geometry comes from the ultra tier.
	if page.Width != 3200 || page.Height != 3200*4/3 {
		t.Errorf("geometry = %dx%d", page.Width, page.Height)
	}
}

func TestCoverDerivationFiredOnPageOne(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := testJob("doc-1")
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	rec := &coverRecorder{}
	b := &BatchProcessor{
		Store:    st,
		Storage:  storage.NewMemory(),
		Renderer: &fakeRenderer{failPages: map[int]bool{}},
		Covers:   rec,
		Logger:   slog.Default(),
	}
	if _, err := b.ProcessBatch(ctx, job, &fakeSource{pages: 3}, 1, 3); err != nil {
		t.Fatal(err)
	}
	b.Wait()

	if rec.count() != 1 {
		t.Errorf("cover derivations = %d, want 1", rec.count())
	}
}

func TestCoverNotFiredWhenPageOneFails(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	job := testJob("doc-1")
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	rec := &coverRecorder{}
	b := &BatchProcessor{
		Store:    st,
		Storage:  storage.NewMemory(),
		Renderer: &fakeRenderer{failPages: map[int]bool{1: true}},
		Covers:   rec,
		Logger:   slog.Default(),
	}
	if _, err := b.ProcessBatch(ctx, job, &fakeSource{pages: 3}, 1, 3); err != nil {
		t.Fatal(err)
	}
	b.Wait()

	if rec.count() != 0 {
		t.Errorf("cover derivations = %d, want 0", rec.count())
	}
}
