package handler

import (
	"net/http"

	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

// SelectionHandler handles the selected model and selected MCP endpoints.
type SelectionHandler struct {
	model *store.SelectedModelStore
	mcp   *store.MCPSelectionStore
}

// NewSelectionHandler creates a new SelectionHandler.
func NewSelectionHandler(selected *store.SelectedModelStore, mcp *store.MCPSelectionStore) *SelectionHandler {
	return &SelectionHandler{model: selected, mcp: mcp}
}

// GetModel handles GET /v1/selection/model.
func (h *SelectionHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.selectedModel())
}

// PutModel handles PUT /v1/selection/model. A null selectedModel clears the
// selection.
func (h *SelectionHandler) PutModel(w http.ResponseWriter, r *http.Request) {
	var input models.SelectedModel
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	ctx := r.Context()
	if err := h.model.Set(ctx, input.SelectedModel); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := h.model.SetIsSelected(ctx, input.IsSelected); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.selectedModel())
}

// GetMCP handles GET /v1/selection/mcp.
func (h *SelectionHandler) GetMCP(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.selectedMCP())
}

// PutMCP handles PUT /v1/selection/mcp.
func (h *SelectionHandler) PutMCP(w http.ResponseWriter, r *http.Request) {
	var input models.SelectedMCP
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	items := input.Items
	if items == nil {
		items = []model.MCPItem{}
	}
	if err := h.mcp.SetSelected(r.Context(), items); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.selectedMCP())
}

// PutDrawer handles PUT /v1/selection/mcp/drawer. An empty id closes the
// drawer.
func (h *SelectionHandler) PutDrawer(w http.ResponseWriter, r *http.Request) {
	var input models.DrawerRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	if err := h.mcp.SetDrawerOpenID(r.Context(), input.ID); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.selectedMCP())
}

func (h *SelectionHandler) selectedModel() models.SelectedModel {
	return models.SelectedModel{
		SelectedModel: h.model.Selected(),
		IsSelected:    h.model.IsSelected(),
	}
}

func (h *SelectionHandler) selectedMCP() models.SelectedMCP {
	items := h.mcp.Selected()
	if items == nil {
		items = []model.MCPItem{}
	}
	return models.SelectedMCP{Items: items, DrawerOpenID: h.mcp.DrawerOpenID()}
}
