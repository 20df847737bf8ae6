// Package svcctx carries the initialized service set through request
// contexts so endpoints stay plain http.HandlerFuncs.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/foliolabs/folio/internal/cache"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/covers"
	"github.com/foliolabs/folio/internal/events"
	"github.com/foliolabs/folio/internal/generate"
	"github.com/foliolabs/folio/internal/query"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
)

type contextKey string

const servicesKey contextKey = "folio-services"

// Services is the initialized dependency set handed to endpoints.
type Services struct {
	Store       store.Store
	Storage     storage.Gateway
	Events      events.Sink
	Cache       *cache.JobCache
	Pool        *generate.Pool
	Coordinator *generate.Coordinator
	Covers      *covers.Service
	Query       *query.Service
	Config      *config.Config
	Logger      *slog.Logger
}

// WithServices attaches the service set to a context.
func WithServices(ctx context.Context, svcs *Services) context.Context {
	return context.WithValue(ctx, servicesKey, svcs)
}

// FromContext extracts the service set, or nil if the server has not
// initialized yet.
func FromContext(ctx context.Context) *Services {
	svcs, _ := ctx.Value(servicesKey).(*Services)
	return svcs
}

func StoreFrom(ctx context.Context) store.Store {
	if svcs := FromContext(ctx); svcs != nil {
		return svcs.Store
	}
	return nil
}

func CoordinatorFrom(ctx context.Context) *generate.Coordinator {
	if svcs := FromContext(ctx); svcs != nil {
		return svcs.Coordinator
	}
	return nil
}

func PoolFrom(ctx context.Context) *generate.Pool {
	if svcs := FromContext(ctx); svcs != nil {
		return svcs.Pool
	}
	return nil
}

func CoversFrom(ctx context.Context) *covers.Service {
	if svcs := FromContext(ctx); svcs != nil {
		return svcs.Covers
	}
	return nil
}

func QueryFrom(ctx context.Context) *query.Service {
	if svcs := FromContext(ctx); svcs != nil {
		return svcs.Query
	}
	return nil
}

func LoggerFrom(ctx context.Context) *slog.Logger {
	if svcs := FromContext(ctx); svcs != nil && svcs.Logger != nil {
		return svcs.Logger
	}
	return slog.Default()
}
