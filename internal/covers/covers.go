// Package covers manages book covers: deriving one from the first rendered
// page and handling user-uploaded replacements.
package covers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/foliolabs/folio/internal/events"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

// ErrInvalidCover rejects custom uploads that fail validation: unsupported
// format, undecodable data, or over the size limit.
var ErrInvalidCover = errors.New("invalid cover image")

const (
	// MaxUploadBytes is the custom cover size limit.
	MaxUploadBytes = 10 << 20

	// maxCustomWidth is the width custom uploads are downscaled to.
	maxCustomWidth = 1600

	// derivedWidth matches the medium tier the derived cover is copied from.
	derivedWidth = 800
)

// Service implements cover derivation, custom upload, and lookup.
type Service struct {
	Store   store.Store
	Storage storage.Gateway
	Events  events.Sink
	Logger  *slog.Logger
}

// CoverInfo is the read-side cover record with a fresh access URL.
type CoverInfo struct {
	DocumentID string    `json:"document_id"`
	IsCustom   bool      `json:"is_custom"`
	URL        string    `json:"url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeriveFromPage1 copies the medium rendering of page 1 into the cover
// slot. A custom cover always wins: derivation is a no-op while one is set.
func (s *Service) DeriveFromPage1(ctx context.Context, documentID string) error {
	existing, err := s.Store.GetCover(ctx, documentID)
	if err != nil && !errors.Is(err, store.ErrCoverNotFound) {
		return err
	}
	if existing != nil && existing.IsCustom {
		return nil
	}

	page, err := s.Store.GetPage(ctx, documentID, 1)
	if err != nil {
		return fmt.Errorf("loading page 1: %w", err)
	}
	med, ok := page.Tiers["med"]
	if !ok {
		return fmt.Errorf("page 1 has no medium tier")
	}

	coverKey := storage.CoverKey(documentID)
	err = s.Storage.Copy(ctx, med.Path, coverKey, storage.PutOptions{
		ContentType:  "image/jpeg",
		CacheControl: storage.CacheCover,
	})
	if err != nil {
		return err
	}

	// Scale the page geometry to the medium tier width.
	height := 0
	if page.Width > 0 {
		height = page.Height * derivedWidth / page.Width
	}
	err = s.Store.UpsertCover(ctx, &store.BookCover{
		DocumentID: documentID,
		IsCustom:   false,
		Path:       coverKey,
		Width:      derivedWidth,
		Height:     height,
		Size:       med.Size,
		MimeType:   "image/jpeg",
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.Events.Publish(ctx, events.Event{
		Type:       events.TypeCoverUpdated,
		DocumentID: documentID,
		At:         time.Now().UTC(),
		Payload:    map[string]any{"is_custom": false},
	})
	return nil
}

// UploadCustom validates and stores a user-provided cover. Images wider
// than 1600px are downscaled and re-encoded as JPEG.
func (s *Service) UploadCustom(ctx context.Context, documentID string, data []byte, mimeType string) (*store.BookCover, error) {
	if len(data) == 0 || len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: size %d exceeds limit", ErrInvalidCover, len(data))
	}
	img, err := decodeCover(data, mimeType)
	if err != nil {
		return nil, err
	}

	existing, err := s.Store.GetCover(ctx, documentID)
	if err != nil && !errors.Is(err, store.ErrCoverNotFound) {
		return nil, err
	}

	ext := extForMime(mimeType)
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > maxCustomWidth {
		scaled := resizeToWidth(img, maxCustomWidth)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encoding resized cover: %w", err)
		}
		data = buf.Bytes()
		mimeType = "image/jpeg"
		ext = "jpg"
		width = scaled.Bounds().Dx()
		height = scaled.Bounds().Dy()
	}

	key := storage.CustomCoverKey(documentID, ext)
	err = s.Storage.Put(ctx, key, data, storage.PutOptions{
		ContentType:  mimeType,
		CacheControl: storage.CacheCover,
	})
	if err != nil {
		return nil, err
	}

	cover := &store.BookCover{
		DocumentID: documentID,
		IsCustom:   true,
		Path:       key,
		Width:      width,
		Height:     height,
		Size:       int64(len(data)),
		MimeType:   mimeType,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.Store.UpsertCover(ctx, cover); err != nil {
		return nil, err
	}

	// A replacement with a different extension lands at a new key; drop the
	// old object so it does not linger unreferenced.
	if existing != nil && existing.IsCustom && existing.Path != key {
		if err := s.Storage.Remove(ctx, existing.Path); err != nil {
			s.Logger.Warn("removing replaced custom cover", "document_id", documentID, "error", err)
		}
	}

	s.Events.Publish(ctx, events.Event{
		Type:       events.TypeCoverUpdated,
		DocumentID: documentID,
		At:         time.Now().UTC(),
		Payload:    map[string]any{"is_custom": true},
	})
	return cover, nil
}

// DeleteCustom removes a custom cover and falls back to the derived one
// when page 1 has been rendered.
func (s *Service) DeleteCustom(ctx context.Context, documentID string) error {
	cover, err := s.Store.GetCover(ctx, documentID)
	if err != nil {
		return err
	}
	if !cover.IsCustom {
		return nil
	}

	if err := s.Storage.Remove(ctx, cover.Path); err != nil {
		s.Logger.Warn("removing custom cover object", "document_id", documentID, "error", err)
	}
	if err := s.Store.DeleteCover(ctx, documentID); err != nil {
		return err
	}

	if _, err := s.Store.GetPage(ctx, documentID, 1); err == nil {
		return s.DeriveFromPage1(ctx, documentID)
	}
	return nil
}

// CoverURL returns the cover record with a freshly minted access URL.
func (s *Service) CoverURL(ctx context.Context, documentID string) (*CoverInfo, error) {
	cover, err := s.Store.GetCover(ctx, documentID)
	if err != nil {
		return nil, err
	}
	url, err := s.Storage.PresignedURL(ctx, cover.Path, storage.URLExpiry)
	if err != nil {
		return nil, err
	}
	return &CoverInfo{
		DocumentID: cover.DocumentID,
		IsCustom:   cover.IsCustom,
		URL:        url,
		Width:      cover.Width,
		Height:     cover.Height,
		Size:       cover.Size,
		MimeType:   cover.MimeType,
		UpdatedAt:  cover.UpdatedAt,
	}, nil
}

func decodeCover(data []byte, mimeType string) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch mimeType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidCover, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}
	return img, nil
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}

func resizeToWidth(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	height := bounds.Dy() * width / bounds.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
