package svcctx

import (
	"context"
	"testing"

	"github.com/foliolabs/folio/internal/store"
)

func TestWithServicesRoundTrip(t *testing.T) {
	st := store.NewMemory()
	ctx := WithServices(context.Background(), &Services{Store: st})

	if got := StoreFrom(ctx); got != store.Store(st) {
		t.Error("StoreFrom did not return the attached store")
	}
	if svcs := FromContext(ctx); svcs == nil || svcs.Store == nil {
		t.Error("FromContext lost the services")
	}
}

func TestExtractorsOnBareContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Error("expected nil services on bare context")
	}
	if StoreFrom(ctx) != nil || QueryFrom(ctx) != nil {
		t.Error("expected nil extractions on bare context")
	}
	if LoggerFrom(ctx) == nil {
		t.Error("LoggerFrom must fall back to the default logger")
	}
}
