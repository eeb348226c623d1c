package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/engine"
	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

// ModelLister fetches the engine's model catalogue.
type ModelLister interface {
	ListModels(ctx context.Context, p engine.ListModelsParams) (*engine.ModelPage, error)
}

// ModelsHandler handles the model list endpoints.
type ModelsHandler struct {
	lists     *store.ModelListStore
	downloads store.ModelList
	engine    ModelLister
}

// NewModelsHandler creates a new ModelsHandler.
func NewModelsHandler(lists *store.ModelListStore, downloads store.ModelList, engine ModelLister) *ModelsHandler {
	return &ModelsHandler{
		lists:     lists,
		downloads: downloads,
		engine:    engine,
	}
}

// List handles GET /v1/models?list=all|mine|square.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(models.ModelListName(r.URL.Query().Get("list")))
	if !ok {
		response.BadRequest(w, r, "validation failed", listFieldError())
		return
	}
	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(list.Get())})
}

// Replace handles PUT /v1/models?list=all|mine|square.
func (h *ModelsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(models.ModelListName(r.URL.Query().Get("list")))
	if !ok {
		response.BadRequest(w, r, "validation failed", listFieldError())
		return
	}

	var input models.ModelList
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	if err := list.Set(r.Context(), nonNil(input.Items)); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(list.Get())})
}

// Refresh handles POST /v1/models:refresh. It fetches a page from the engine
// and replaces the selected list with it. Records that are on the download
// list keep their download state.
func (h *ModelsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var input models.RefreshModelsRequest
	if err := decodeJSON(w, r, &input); err != nil && !errors.Is(err, errEmptyBody) {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	list, ok := h.list(input.List)
	if !ok {
		response.BadRequest(w, r, "validation failed", listFieldError())
		return
	}
	if input.Page < 0 || input.PageSize < 0 {
		response.BadRequest(w, r, "validation failed", []models.FieldError{{
			Field:   "page",
			Message: "page and pageSize must not be negative",
			Code:    "OUT_OF_RANGE",
		}})
		return
	}

	page, err := h.engine.ListModels(r.Context(), engine.ListModelsParams{
		ServiceSource: model.Source(input.ServiceSource),
		Flavor:        input.Flavor,
		Page:          input.Page,
		PageSize:      input.PageSize,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	items := overlayDownloads(nonNil(page.Models), h.downloads.Get())
	if err := list.Set(r.Context(), items); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.RefreshModelsResponse{
		Items:     items,
		Page:      page.Page,
		PageSize:  page.PageSize,
		Total:     page.Total,
		TotalPage: page.TotalPage,
	})
}

func (h *ModelsHandler) list(name models.ModelListName) (*store.ListValue, bool) {
	switch name {
	case "", models.ModelListAll:
		return h.lists.All, true
	case models.ModelListMine:
		return h.lists.Mine, true
	case models.ModelListSquare:
		return h.lists.Square, true
	}
	return nil, false
}

// overlayDownloads copies the download state of every record on the
// download list onto the matching catalogue record.
func overlayDownloads(catalogue, downloads []model.Model) []model.Model {
	for i := range catalogue {
		for _, d := range downloads {
			if !catalogue[i].Matches(d.ID, d.ModelType) {
				continue
			}
			catalogue[i].Status = d.Status
			catalogue[i].CanSelect = d.CanSelect
			catalogue[i].CurrentDownload = d.CurrentDownload
			catalogue[i].CompletedSize = d.CompletedSize
			catalogue[i].TotalSize = d.TotalSize
			catalogue[i].Error = d.Error
		}
	}
	return catalogue
}

func listFieldError() []models.FieldError {
	return []models.FieldError{{
		Field:   "list",
		Message: "must be one of all, mine, square",
		Code:    "INVALID",
	}}
}
