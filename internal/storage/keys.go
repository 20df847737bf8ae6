package storage

import (
	"fmt"
	"time"
)

// Cache directives applied at write time. Page images are immutable at
// their logical path (regeneration is a deliberate re-trigger), covers can
// be replaced in place by custom uploads.
const (
	CachePageImage = "public, max-age=31536000, immutable"
	CacheCover     = "public, max-age=300"
)

// URLExpiry is the fixed lifetime of every presigned URL this service
// issues. URLs are minted per read request and never persisted.
const URLExpiry = time.Hour

// SourceKey is the object key of the uploaded source document.
func SourceKey(documentID string) string {
	return fmt.Sprintf("documents/%s/source.pdf", documentID)
}

// PageKey is the object key of one rendered page at one tier.
// tierSuffix is one of thumb/med/high/ultra.
func PageKey(documentID, tierSuffix string, pageNumber int) string {
	return fmt.Sprintf("documents/%s/pages/%s/%d.jpg", documentID, tierSuffix, pageNumber)
}

// CoverKey is the object key of the auto-derived cover.
func CoverKey(documentID string) string {
	return fmt.Sprintf("documents/%s/cover.jpg", documentID)
}

// CustomCoverKey is the object key of a user-uploaded cover.
func CustomCoverKey(documentID, ext string) string {
	return fmt.Sprintf("documents/%s/cover-custom.%s", documentID, ext)
}
