package render

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct {
	pages int
	path  string
}

func (f *fakeSource) PageCount() int { return f.pages }
func (f *fakeSource) Path() string   { return f.path }
func (f *fakeSource) Close() error   { return nil }

func TestRenderPageRejectsOutOfRange(t *testing.T) {
	r := NewPopplerRenderer(0)
	src := &fakeSource{pages: 5, path: "/nonexistent.pdf"}
	spec, _ := TierByName("med")

	for _, page := range []int{0, -1, 6} {
		_, err := r.RenderPage(context.Background(), src, page, spec)
		var rerr *RenderError
		if !errors.As(err, &rerr) {
			t.Fatalf("page %d: expected RenderError, got %v", page, err)
		}
		if rerr.Page != page {
			t.Errorf("page %d: RenderError.Page = %d", page, rerr.Page)
		}
	}
}

func TestRenderPageRejectsInvalidWidth(t *testing.T) {
	r := NewPopplerRenderer(0)
	src := &fakeSource{pages: 5, path: "/nonexistent.pdf"}

	_, err := r.RenderPage(context.Background(), src, 1, TierSpec{Tier: TierMedium, Suffix: "med"})
	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
}
