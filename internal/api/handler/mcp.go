package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

// MCPHandler handles the MCP server install endpoints.
type MCPHandler struct {
	downloads *store.MCPDownloadStore
}

// NewMCPHandler creates a new MCPHandler.
func NewMCPHandler(downloads *store.MCPDownloadStore) *MCPHandler {
	return &MCPHandler{downloads: downloads}
}

// List handles GET /v1/mcp/downloads.
func (h *MCPHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.snapshot())
}

// Start handles POST /v1/mcp/downloads. Starting an install that is already
// tracked restarts it.
func (h *MCPHandler) Start(w http.ResponseWriter, r *http.Request) {
	var detail model.MCPDetail
	if err := decodeJSON(w, r, &detail); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if detail.ID == "" {
		response.BadRequest(w, r, "validation failed", []models.FieldError{{
			Field:   "id",
			Message: "is required",
			Code:    "REQUIRED",
		}})
		return
	}

	if err := h.downloads.Init(r.Context(), detail); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.Created(w, r, "/v1/mcp/downloads/"+url.PathEscape(detail.ID), h.snapshot())
}

// Report handles PATCH /v1/mcp/downloads/{id} with the install outcome.
func (h *MCPHandler) Report(w http.ResponseWriter, r *http.Request) {
	var input models.MCPReportRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	switch input.Status {
	case model.MCPDownloading, model.MCPSuccess, model.MCPError:
	default:
		response.BadRequest(w, r, "validation failed", []models.FieldError{{
			Field:   "status",
			Message: "must be one of downloading, success, error",
			Code:    "INVALID",
		}})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.downloads.Report(r.Context(), id, input.Status, input.Error); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.snapshot())
}

// Delete handles DELETE /v1/mcp/downloads/{id}.
func (h *MCPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetAddModal handles PUT /v1/mcp/add-modal with {"show": bool}.
func (h *MCPHandler) SetAddModal(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Show bool `json:"show"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	h.downloads.SetAddModalShow(input.Show)
	response.JSON(w, r, http.StatusOK, h.snapshot())
}

func (h *MCPHandler) snapshot() models.MCPDownloads {
	items := h.downloads.Items()
	if items == nil {
		items = []model.MCPDownloadItem{}
	}
	return models.MCPDownloads{Items: items, AddModalShow: h.downloads.AddModalShow()}
}
