package render

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Source is an opened document handle that pages can be rendered from.
// Close releases any backing resources (temp files for fetched sources).
type Source interface {
	PageCount() int
	Path() string
	Close() error
}

// Document is a Source backed by a PDF file on local disk.
type Document struct {
	path      string
	pageCount int

	// cleanup is invoked on Close; used when the file is a fetched temp copy.
	cleanup func() error
}

// OpenDocument opens a PDF and determines its page count.
// An unreadable or corrupt file returns an error; callers treat this as
// fatal to the whole generation job.
func OpenDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}

	return &Document{path: path, pageCount: pageCount}, nil
}

// OpenTemp opens a PDF that should be deleted when the document is closed.
func OpenTemp(path string) (*Document, error) {
	doc, err := OpenDocument(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	doc.cleanup = func() error { return os.Remove(path) }
	return doc, nil
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return d.pageCount
}

// Path returns the local filesystem path of the document.
func (d *Document) Path() string {
	return d.path
}

// Close removes the backing temp file, if any.
func (d *Document) Close() error {
	if d.cleanup != nil {
		return d.cleanup()
	}
	return nil
}
