package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/internal/covers"
	"github.com/foliolabs/folio/internal/store"
	"github.com/foliolabs/folio/internal/svcctx"
)

// GetCoverEndpoint returns the cover record with a fresh access URL.
type GetCoverEndpoint struct{}

func (e *GetCoverEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/api/documents/{document_id}/cover", e.handle
}

func (e *GetCoverEndpoint) RequiresInit() bool { return true }

func (e *GetCoverEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	info, err := svcs.Covers.CoverURL(r.Context(), documentID)
	if errors.Is(err, store.ErrCoverNotFound) {
		writeError(w, http.StatusNotFound, "no cover for document")
		return
	}
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("loading cover", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load cover")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (e *GetCoverEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document's cover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp covers.CoverInfo
			path := fmt.Sprintf("/api/documents/%s/cover", args[0])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UploadCoverEndpoint replaces the cover with a user-provided image sent as
// a multipart "cover" field.
type UploadCoverEndpoint struct{}

func (e *UploadCoverEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodPut, "/api/documents/{document_id}/cover", e.handle
}

func (e *UploadCoverEndpoint) RequiresInit() bool { return true }

func (e *UploadCoverEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	if err := r.ParseMultipartForm(covers.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing cover file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, covers.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	mimeType := header.Header.Get("Content-Type")

	cover, err := svcs.Covers.UploadCustom(r.Context(), documentID, data, mimeType)
	if errors.Is(err, covers.ErrInvalidCover) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("uploading cover", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store cover")
		return
	}
	writeJSON(w, http.StatusOK, cover)
}

func (e *UploadCoverEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <document-id> <image-file>",
		Short: "Upload a custom cover image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp store.BookCover
			path := fmt.Sprintf("/api/documents/%s/cover", args[0])
			if err := client.PutMultipart(cmd.Context(), path, "cover", args[1], data, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteCoverEndpoint removes a custom cover, falling back to the derived
// one when the first page has been rendered.
type DeleteCoverEndpoint struct{}

func (e *DeleteCoverEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodDelete, "/api/documents/{document_id}/cover", e.handle
}

func (e *DeleteCoverEndpoint) RequiresInit() bool { return true }

func (e *DeleteCoverEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	err := svcs.Covers.DeleteCustom(r.Context(), documentID)
	if errors.Is(err, store.ErrCoverNotFound) {
		writeError(w, http.StatusNotFound, "no cover for document")
		return
	}
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("deleting cover", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete cover")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteCoverEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a custom cover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/api/documents/%s/cover", args[0])
			return client.Delete(cmd.Context(), path)
		},
	}
}
