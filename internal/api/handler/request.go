package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/byze/byze-console/internal/api/models"
)

// maxBodyBytes bounds request bodies. Model lists are the largest payloads.
const maxBodyBytes = 4 << 20

var errEmptyBody = errors.New("request body is empty")

// decodeJSON decodes the request body into dst. An empty body yields
// errEmptyBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// modelKey reads the {id} path parameter and the modelType query parameter
// identifying one model record.
func modelKey(r *http.Request) (int64, string, []models.FieldError) {
	var fieldErrors []models.FieldError

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "id",
			Message: "must be an integer",
			Code:    "INVALID",
		})
	}

	modelType := r.URL.Query().Get("modelType")
	if modelType == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "modelType",
			Message: "is required",
			Code:    "REQUIRED",
		})
	}

	return id, modelType, fieldErrors
}
