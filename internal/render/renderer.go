package render

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// RenderedPage is the result of rendering one page at one tier.
type RenderedPage struct {
	Data   []byte // encoded JPEG bytes
	Width  int    // pixel width of the rendered image
	Height int    // pixel height of the rendered image
}

// RenderError marks a per-page rendering failure. Callers record it against
// the page and continue; it is never fatal to a batch or job.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer renders a single page of an open document at a tier.
// Implementations are stateless and safe for concurrent use.
type Renderer interface {
	RenderPage(ctx context.Context, src Source, pageNum int, spec TierSpec) (*RenderedPage, error)
}

// PopplerRenderer renders pages by shelling out to pdftoppm (poppler-utils).
// Each render is bounded by a per-page timeout so one stuck page cannot
// stall a batch.
type PopplerRenderer struct {
	// PageTimeout bounds a single pdftoppm invocation. Zero means 60s.
	PageTimeout time.Duration
}

// NewPopplerRenderer creates a renderer with the given per-page timeout.
func NewPopplerRenderer(pageTimeout time.Duration) *PopplerRenderer {
	if pageTimeout <= 0 {
		pageTimeout = 60 * time.Second
	}
	return &PopplerRenderer{PageTimeout: pageTimeout}
}

// RenderPage renders one page to JPEG at the tier's target width.
// Failures (bad page, timeout, decode error) are returned as *RenderError.
func (r *PopplerRenderer) RenderPage(ctx context.Context, src Source, pageNum int, spec TierSpec) (*RenderedPage, error) {
	if pageNum < 1 || pageNum > src.PageCount() {
		return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("page out of range [1, %d]", src.PageCount())}
	}
	if spec.Width <= 0 {
		return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("invalid target width %d", spec.Width)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.PageTimeout)
	defer cancel()

	// Create temp directory for output
	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// Run pdftoppm to render the page
	// -jpeg: output JPEG format at the tier's quality
	// -f N / -l N: render only this page
	// -scale-to-x W -scale-to-y -1: scale to target width, keep aspect
	// -singlefile: don't add page number suffix
	pageStr := fmt.Sprintf("%d", pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-jpeg",
		"-jpegopt", fmt.Sprintf("quality=%d", spec.Quality),
		"-f", pageStr,
		"-l", pageStr,
		"-scale-to-x", fmt.Sprintf("%d", spec.Width),
		"-scale-to-y", "-1",
		"-singlefile",
		src.Path(),
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("render timed out: %w", ctx.Err())}
		}
		return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))}
	}

	// pdftoppm with -singlefile creates: <prefix>.jpg
	data, err := os.ReadFile(outputPrefix + ".jpg")
	if err != nil {
		return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("pdftoppm did not create expected output: %w", err)}
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &RenderError{Page: pageNum, Err: fmt.Errorf("corrupt rendered image: %w", err)}
	}

	return &RenderedPage{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}
