package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/svcctx"
)

// HealthEndpoint reports process liveness. Available before initialization.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/health", e.handle
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command { return nil }

func (e *HealthEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyEndpoint reports whether the service can take work: store reachable
// and the worker pool constructed.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/ready", e.handle
}

func (e *ReadyEndpoint) RequiresInit() bool { return true }

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command { return nil }

func (e *ReadyEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.FromContext(r.Context())
	if err := svcs.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"queued":    svcs.Pool.Queued(),
		"in_flight": svcs.Pool.InFlight(),
	})
}
