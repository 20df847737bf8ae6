package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/internal/query"
	"github.com/foliolabs/folio/internal/store"
	"github.com/foliolabs/folio/internal/svcctx"
)

// ListPagesEndpoint lists a document's rendered pages with fresh per-tier
// URLs. Supports page/limit pagination and an optional resolution filter.
type ListPagesEndpoint struct{}

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/api/documents/{document_id}/pages", e.handle
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

func (e *ListPagesEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resolution := r.URL.Query().Get("resolution")

	list, err := svcs.Query.ListPages(r.Context(), documentID, page, limit, resolution)
	if errors.Is(err, query.ErrUnknownTier) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("listing pages", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		page       int
		limit      int
		resolution string
	)
	cmd := &cobra.Command{
		Use:   "pages <document-id>",
		Short: "List a document's rendered pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp query.PageList
			path := fmt.Sprintf("/api/documents/%s/pages?page=%d&limit=%d", args[0], page, limit)
			if resolution != "" {
				path += "&resolution=" + resolution
			}
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	cmd.Flags().IntVar(&limit, "limit", query.DefaultPageLimit, "results per page")
	cmd.Flags().StringVar(&resolution, "resolution", "", "restrict URLs to one tier (thumbnail, medium, high, ultra)")
	return cmd
}

// GetPageEndpoint returns one rendered page. A missing page includes the
// document's generation status so clients can tell "not yet" from "never".
type GetPageEndpoint struct{}

func (e *GetPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/api/documents/{document_id}/pages/{page_number}", e.handle
}

func (e *GetPageEndpoint) RequiresInit() bool { return true }

func (e *GetPageEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	pageNumber, err := strconv.Atoi(r.PathValue("page_number"))
	if err != nil || pageNumber < 1 {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}
	resolution := r.URL.Query().Get("resolution")

	entry, err := svcs.Query.GetPage(r.Context(), documentID, pageNumber, resolution)
	switch {
	case errors.Is(err, query.ErrUnknownTier):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrPageNotFound):
		_, status, serr := svcs.Query.Status(r.Context(), documentID)
		if serr != nil {
			status = query.StatusNone
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":             "page not found",
			"generation_status": status,
		})
		return
	case err != nil:
		svcctx.LoggerFrom(r.Context()).Error("loading page", "document_id", documentID, "page", pageNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load page")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (e *GetPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "page <document-id> <page-number>",
		Short: "Show one rendered page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp query.PageEntry
			path := fmt.Sprintf("/api/documents/%s/pages/%s", args[0], args[1])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
