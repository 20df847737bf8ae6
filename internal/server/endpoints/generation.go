package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/internal/generate"
	"github.com/foliolabs/folio/internal/store"
	"github.com/foliolabs/folio/internal/svcctx"
)

// StartGenerationEndpoint triggers page-image generation for a document.
// Returns 202 with the job ID, or 409 while a job is already active.
type StartGenerationEndpoint struct{}

type startGenerationRequest struct {
	UserID string `json:"user_id"`
}

type startGenerationResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (e *StartGenerationEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodPost, "/api/documents/{document_id}/generation", e.handle
}

func (e *StartGenerationEndpoint) RequiresInit() bool { return true }

func (e *StartGenerationEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	var req startGenerationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	job, err := svcs.Coordinator.Start(r.Context(), svcs.Pool, documentID, req.UserID)
	switch {
	case errors.Is(err, store.ErrJobAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, generate.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		svcctx.LoggerFrom(r.Context()).Error("starting generation", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start generation")
		return
	}

	writeJSON(w, http.StatusAccepted, startGenerationResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

func (e *StartGenerationEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <document-id>",
		Short: "Trigger page image generation for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp startGenerationResponse
			path := fmt.Sprintf("/api/documents/%s/generation", args[0])
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GenerationStatusEndpoint reports the latest job for a document.
type GenerationStatusEndpoint struct{}

type generationStatusResponse struct {
	JobID             string `json:"job_id,omitempty"`
	Status            string `json:"status"`
	TotalPages        int    `json:"total_pages"`
	CompletedPages    int    `json:"completed_pages"`
	FailedPages       int    `json:"failed_pages"`
	FailedPageNumbers []int  `json:"failed_page_numbers,omitempty"`
}

func (e *GenerationStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/api/documents/{document_id}/generation/status", e.handle
}

func (e *GenerationStatusEndpoint) RequiresInit() bool { return true }

func (e *GenerationStatusEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	svcs := svcctx.FromContext(r.Context())

	job, status, err := svcs.Query.Status(r.Context(), documentID)
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Error("loading generation status", "document_id", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "no generation job for document")
		return
	}

	writeJSON(w, http.StatusOK, generationStatusResponse{
		JobID:             job.ID,
		Status:            status,
		TotalPages:        job.TotalPages,
		CompletedPages:    job.CompletedPages,
		FailedPages:       job.FailedPages,
		FailedPageNumbers: job.FailedPageNumbers(),
	})
}

func (e *GenerationStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show generation status for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp generationStatusResponse
			path := fmt.Sprintf("/api/documents/%s/generation/status", args[0])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
