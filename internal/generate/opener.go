package generate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/foliolabs/folio/internal/render"
	"github.com/foliolabs/folio/internal/storage"
)

// SourceOpener produces an open render.Source for a document. The gateway
// implementation stages the object on local disk for pdftoppm; tests plug
// in fakes.
type SourceOpener interface {
	Open(ctx context.Context, documentID string) (render.Source, error)
}

// GatewayOpener fetches the stored source PDF into a temp file.
type GatewayOpener struct {
	Storage storage.Gateway
}

func (o *GatewayOpener) Open(ctx context.Context, documentID string) (render.Source, error) {
	rc, err := o.Storage.Fetch(ctx, storage.SourceKey(documentID))
	if err != nil {
		return nil, fmt.Errorf("fetching source: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "folio-src-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("staging source: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("staging source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("staging source: %w", err)
	}
	return render.OpenTemp(tmp.Name())
}
