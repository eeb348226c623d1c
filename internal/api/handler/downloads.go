package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/api/middleware"
	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

// Synchronizer keeps the download list and the model list in step.
type Synchronizer interface {
	ApplyUpdate(ctx context.Context, id int64, modelType string, patch model.Patch) error
	StartDownload(ctx context.Context, m model.Model) error
	Active() int
}

// ModelPuller starts and stops engine-side model downloads.
type ModelPuller interface {
	PullModel(ctx context.Context, m model.Model) error
	CancelPull(ctx context.Context, modelName string) error
}

// DownloadsHandler handles the download list endpoints.
type DownloadsHandler struct {
	downloads store.ModelList
	sync      Synchronizer
	engine    ModelPuller
	logger    zerolog.Logger
}

// NewDownloadsHandler creates a new DownloadsHandler.
func NewDownloadsHandler(downloads store.ModelList, sync Synchronizer, engine ModelPuller, logger zerolog.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		downloads: downloads,
		sync:      sync,
		engine:    engine,
		logger:    logger,
	}
}

// List handles GET /v1/downloads.
func (h *DownloadsHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(h.downloads.Get())})
}

// Replace handles PUT /v1/downloads. Duplicate (id, modelType) records keep
// the last value at the position of the first occurrence.
func (h *DownloadsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var input models.ModelList
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	if err := h.downloads.Set(r.Context(), input.Items); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(h.downloads.Get())})
}

// Patch handles PATCH /v1/downloads/{id}?modelType=. The patch is applied to
// the download list and the model list together.
func (h *DownloadsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, modelType, fieldErrors := modelKey(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	var patch model.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if fieldErrors := validatePatch(patch); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	if err := h.sync.ApplyUpdate(r.Context(), id, modelType, patch); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(h.downloads.Get())})
}

// Start handles POST /v1/downloads. The model is put on the download list
// before the engine is asked to pull it. If the engine refuses, the record
// is marked failed.
func (h *DownloadsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input models.StartDownloadRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if fieldErrors := validateDownload(input.Model); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	ctx := r.Context()
	m := input.Model
	if err := h.sync.StartDownload(ctx, m); err != nil {
		response.FromError(w, r, err)
		return
	}

	if err := h.engine.PullModel(ctx, m); err != nil {
		h.logger.Warn().
			Err(err).
			Int64("id", m.ID).
			Str("model_type", m.ModelType).
			Str("name", m.Name).
			Msg("engine refused model download")

		failed := model.Patch{
			Status: model.Ptr(model.StatusFailed),
			Error:  model.Ptr(err.Error()),
		}
		if syncErr := h.sync.ApplyUpdate(context.WithoutCancel(ctx), m.ID, m.ModelType, failed); syncErr != nil {
			h.logger.Error().Err(syncErr).Int64("id", m.ID).Msg("failed to mark download as failed")
		}
		response.FromError(w, r, err)
		return
	}

	h.logger.Info().
		Str("operator", middleware.GetOperator(ctx)).
		Int64("id", m.ID).
		Str("model_type", m.ModelType).
		Str("name", m.Name).
		Msg("model download started")

	response.Accepted(w, r, models.ModelList{Items: nonNil(h.downloads.Get())})
}

// Cancel handles POST /v1/downloads/{id}/cancel?modelType=. The engine stops
// the pull and the record is paused so it can be resumed later. If the engine
// cannot stop it, the record is marked failed.
func (h *DownloadsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, modelType, fieldErrors := modelKey(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	var target *model.Model
	for _, d := range h.downloads.Get() {
		if d.Matches(id, modelType) {
			target = &d
			break
		}
	}
	if target == nil {
		response.NotFound(w, r, "download not found")
		return
	}

	ctx := r.Context()
	if err := h.engine.CancelPull(ctx, target.Name); err != nil {
		h.logger.Warn().
			Err(err).
			Int64("id", id).
			Str("model_type", modelType).
			Str("name", target.Name).
			Msg("engine could not cancel model download")

		failed := model.Patch{
			Status: model.Ptr(model.StatusFailed),
			Error:  model.Ptr(err.Error()),
		}
		if syncErr := h.sync.ApplyUpdate(context.WithoutCancel(ctx), id, modelType, failed); syncErr != nil {
			h.logger.Error().Err(syncErr).Int64("id", id).Msg("failed to mark download as failed")
		}
		response.FromError(w, r, err)
		return
	}

	if err := h.sync.ApplyUpdate(ctx, id, modelType, model.Patch{Status: model.Ptr(model.StatusPaused)}); err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ModelList{Items: nonNil(h.downloads.Get())})
}

func validatePatch(p model.Patch) []models.FieldError {
	var fieldErrors []models.FieldError

	if p.IsEmpty() {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "body",
			Message: "patch changes nothing",
			Code:    "EMPTY",
		})
	}
	if p.Status != nil && !validStatus(*p.Status) {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "status",
			Message: "must be one of in_progress, paused, completed, failed",
			Code:    "INVALID",
		})
	}
	if p.CurrentDownload != nil && (*p.CurrentDownload < 0 || *p.CurrentDownload > 100) {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "currentDownload",
			Message: "must be between 0 and 100",
			Code:    "OUT_OF_RANGE",
		})
	}

	return fieldErrors
}

func validateDownload(m model.Model) []models.FieldError {
	var fieldErrors []models.FieldError

	if m.Name == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "model.name",
			Message: "is required",
			Code:    "REQUIRED",
		})
	}
	if m.ModelType == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "model.modelType",
			Message: "is required",
			Code:    "REQUIRED",
		})
	}

	return fieldErrors
}

func validStatus(s model.DownloadStatus) bool {
	switch s {
	case model.StatusInProgress, model.StatusPaused, model.StatusCompleted, model.StatusFailed:
		return true
	}
	return false
}

func nonNil(list []model.Model) []model.Model {
	if list == nil {
		return []model.Model{}
	}
	return list
}
