package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

func newService() (*Service, *store.Memory, *storage.Memory) {
	st := store.NewMemory()
	gw := storage.NewMemory()
	svc := &Service{Store: st, Storage: gw, Logger: slog.Default()}
	return svc, st, gw
}

func seedPages(t *testing.T, st *store.Memory, gw *storage.Memory, documentID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		tiers := make(map[string]store.TierFile, 4)
		for _, suffix := range []string{"thumb", "med", "high", "ultra"} {
			key := storage.PageKey(documentID, suffix, i)
			if err := gw.Put(ctx, key, []byte("img"), storage.PutOptions{}); err != nil {
				t.Fatal(err)
			}
			tiers[suffix] = store.TierFile{Path: key, Size: 3}
		}
		err := st.UpsertPageImage(ctx, &store.PageImage{
			DocumentID: documentID,
			PageNumber: i,
			Width:      3200,
			Height:     4266,
			Tiers:      tiers,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func seedTerminalJob(t *testing.T, st *store.Memory, documentID string, status store.Status, total, completed, failed int) {
	t.Helper()
	ctx := context.Background()
	job := &store.GenerationJob{
		ID:         fmt.Sprintf("job-%s", documentID),
		DocumentID: documentID,
		Status:     store.StatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := st.SetJobTotalPages(ctx, job.ID, total); err != nil {
		t.Fatal(err)
	}
	if err := st.IncrementProgress(ctx, job.ID, completed, failed, nil); err != nil {
		t.Fatal(err)
	}
	if err := st.FinalizeJob(ctx, job.ID, status); err != nil {
		t.Fatal(err)
	}
}

func TestListPagesPaginationAndStatus(t *testing.T) {
	ctx := context.Background()
	svc, st, gw := newService()
	seedPages(t, st, gw, "doc-1", 25)
	seedTerminalJob(t, st, "doc-1", store.StatusCompleted, 25, 25, 0)

	list, err := svc.ListPages(ctx, "doc-1", 2, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 25 || list.TotalPages != 25 {
		t.Errorf("totals = %d/%d", list.Total, list.TotalPages)
	}
	if list.GenerationStatus != "completed" {
		t.Errorf("status = %s", list.GenerationStatus)
	}
	if len(list.Pages) != 10 || list.Pages[0].PageNumber != 11 {
		t.Errorf("page window wrong: len=%d first=%d", len(list.Pages), list.Pages[0].PageNumber)
	}
	for _, entry := range list.Pages {
		if len(entry.URLs) != 4 || len(entry.FileSizes) != 4 {
			t.Errorf("page %d: urls=%d sizes=%d", entry.PageNumber, len(entry.URLs), len(entry.FileSizes))
		}
	}
}

func TestListPagesTierFilter(t *testing.T) {
	ctx := context.Background()
	svc, st, gw := newService()
	seedPages(t, st, gw, "doc-1", 3)

	list, err := svc.ListPages(ctx, "doc-1", 1, 10, "medium")
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range list.Pages {
		if len(entry.URLs) != 1 {
			t.Fatalf("urls = %v", entry.URLs)
		}
		if _, ok := entry.URLs["med"]; !ok {
			t.Errorf("missing med URL: %v", entry.URLs)
		}
	}

	if _, err := svc.ListPages(ctx, "doc-1", 1, 10, "giant"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("expected ErrUnknownTier, got %v", err)
	}
}

func TestURLsFreshMetadataStable(t *testing.T) {
	ctx := context.Background()
	svc, st, gw := newService()
	seedPages(t, st, gw, "doc-1", 1)

	first, err := svc.GetPage(ctx, "doc-1", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GetPage(ctx, "doc-1", 1, "")
	if err != nil {
		t.Fatal(err)
	}

	if first.Width != second.Width || first.Height != second.Height {
		t.Error("metadata differs across reads")
	}
	for suffix, url := range first.URLs {
		if second.URLs[suffix] == url {
			t.Errorf("tier %s URL identical across reads", suffix)
		}
		if first.FileSizes[suffix] != second.FileSizes[suffix] {
			t.Errorf("tier %s size differs across reads", suffix)
		}
	}
}

func TestGetPageNotFound(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.GetPage(context.Background(), "doc-1", 7, "")
	if !errors.Is(err, store.ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}

func TestStatusForFailedJobWithNoPages(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService()
	seedTerminalJob(t, st, "doc-1", store.StatusFailed, 10, 0, 10)

	list, err := svc.ListPages(ctx, "doc-1", 1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 0 {
		t.Errorf("pages = %d, want 0", len(list.Pages))
	}
	if list.GenerationStatus != "failed" {
		t.Errorf("status = %s", list.GenerationStatus)
	}
}

func TestStatusNoneWithoutJobs(t *testing.T) {
	svc, _, _ := newService()
	job, status, err := svc.Status(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if job != nil || status != StatusNone {
		t.Errorf("job=%v status=%s", job, status)
	}
}
