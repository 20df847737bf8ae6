package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/internal/covers"
	"github.com/foliolabs/folio/internal/events"
	"github.com/foliolabs/folio/internal/generate"
	"github.com/foliolabs/folio/internal/query"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
	"github.com/foliolabs/folio/internal/svcctx"
)

type testEnv struct {
	handler http.Handler
	store   *store.Memory
	gateway *storage.Memory
	sink    *events.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()
	st := store.NewMemory()
	gw := storage.NewMemory()
	sink := events.NewMemory()

	coverSvc := &covers.Service{Store: st, Storage: gw, Events: sink, Logger: logger}
	coordinator := &generate.Coordinator{
		Store:  st,
		Events: sink,
		Logger: logger,
	}
	pool := generate.NewPool(1, 8, logger, func(ctx context.Context, jobID string) {})

	services := &svcctx.Services{
		Store:       st,
		Storage:     gw,
		Events:      sink,
		Pool:        pool,
		Coordinator: coordinator,
		Covers:      coverSvc,
		Query:       &query.Service{Store: st, Storage: gw, Logger: logger},
		Logger:      logger,
	}

	registry := api.NewRegistry()
	for _, ep := range All() {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	})

	return &testEnv{handler: handler, store: st, gateway: gw, sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStartGenerationAcceptedThenConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/documents/doc-1/generation", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &resp)
	if resp.JobID == "" || resp.Status != "queued" {
		t.Errorf("resp = %+v", resp)
	}

	rec = env.do(t, http.MethodPost, "/api/documents/doc-1/generation", nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second request status = %d", rec.Code)
	}
}

func TestGenerationStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/documents/doc-1/generation/status", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no-job status = %d", rec.Code)
	}

	job := &store.GenerationJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		Status:     store.StatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := env.store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SetJobTotalPages(ctx, "job-1", 10); err != nil {
		t.Fatal(err)
	}
	failure := store.PageFailure{Page: 4, Message: "boom", At: time.Now().UTC()}
	if err := env.store.IncrementProgress(ctx, "job-1", 6, 1, []store.PageFailure{failure}); err != nil {
		t.Fatal(err)
	}

	rec = env.do(t, http.MethodGet, "/api/documents/doc-1/generation/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status            string `json:"status"`
		TotalPages        int    `json:"total_pages"`
		CompletedPages    int    `json:"completed_pages"`
		FailedPages       int    `json:"failed_pages"`
		FailedPageNumbers []int  `json:"failed_page_numbers"`
	}
	decodeBody(t, rec, &resp)
	if resp.TotalPages != 10 || resp.CompletedPages != 6 || resp.FailedPages != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.FailedPageNumbers) != 1 || resp.FailedPageNumbers[0] != 4 {
		t.Errorf("failed pages = %v", resp.FailedPageNumbers)
	}
}

func TestListPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	key := storage.PageKey("doc-1", "med", 1)
	if err := env.gateway.Put(ctx, key, []byte("img"), storage.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	err := env.store.UpsertPageImage(ctx, &store.PageImage{
		DocumentID: "doc-1",
		PageNumber: 1,
		Width:      3200,
		Height:     4000,
		Tiers:      map[string]store.TierFile{"med": {Path: key, Size: 3}},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/documents/doc-1/pages?resolution=medium", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var list query.PageList
	decodeBody(t, rec, &list)
	if list.Total != 1 || len(list.Pages) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Pages[0].URLs["med"] == "" {
		t.Error("missing med URL")
	}

	rec = env.do(t, http.MethodGet, "/api/documents/doc-1/pages?resolution=giant", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad resolution status = %d", rec.Code)
	}
}

func TestGetPageNotFoundIncludesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := &store.GenerationJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		Status:     store.StatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := env.store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := env.store.MarkJobProcessing(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/documents/doc-1/pages/5", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["generation_status"] != "processing" {
		t.Errorf("generation_status = %q", resp["generation_status"])
	}
}

func TestUploadCover(t *testing.T) {
	env := newTestEnv(t)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 40, 60))); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="cover"; filename="cover.png"`}
	hdr["Content-Type"] = []string{"image/png"}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	rec := env.do(t, http.MethodPut, "/api/documents/doc-1/cover", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cover store.BookCover
	decodeBody(t, rec, &cover)
	if !cover.IsCustom || cover.Width != 40 {
		t.Errorf("cover = %+v", cover)
	}

	rec = env.do(t, http.MethodGet, "/api/documents/doc-1/cover", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get cover status = %d", rec.Code)
	}
	var info covers.CoverInfo
	decodeBody(t, rec, &info)
	if info.URL == "" || !info.IsCustom {
		t.Errorf("info = %+v", info)
	}
}

func TestUploadCoverRejectsBadData(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="cover"; filename="cover.png"`}
	hdr["Content-Type"] = []string{"image/png"}
	part, _ := mw.CreatePart(hdr)
	part.Write([]byte("not an image"))
	mw.Close()

	rec := env.do(t, http.MethodPut, "/api/documents/doc-1/cover", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteCoverNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/api/documents/doc-1/cover", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
