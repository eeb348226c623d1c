// Package modelsync keeps the download list and the model list consistent
// when a single model record changes.
package modelsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

var (
	// ErrPartialUpdate is returned when the model list rejected an update
	// and the download list was rolled back.
	ErrPartialUpdate = errors.New("partial update rolled back")

	// ErrUnknownModel is returned when an event names a model that is in
	// neither list.
	ErrUnknownModel = errors.New("unknown model")

	// ErrTooManyDownloads is returned when every download slot is taken.
	ErrTooManyDownloads = errors.New("too many downloads in progress")
)

// Synchronizer applies record updates to both lists.
type Synchronizer struct {
	downloads store.ModelList
	models    store.ModelList
	logger    zerolog.Logger

	// serializes the read-compute-commit cycle across both lists
	mu sync.Mutex
}

// New creates a synchronizer over the download list and the model list.
func New(downloads, models store.ModelList, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		downloads: downloads,
		models:    models,
		logger:    logger,
	}
}

// ApplyUpdate merges patch into every record for id. In the download list a
// record must also match modelType; in the model list id alone selects it.
// Records that do not match are left as they are.
//
// Both new lists are computed before either is written. If the model list
// rejects its write, the touched download records are restored and the
// returned error wraps ErrPartialUpdate.
func (s *Synchronizer) ApplyUpdate(ctx context.Context, id int64, modelType string, patch model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ctx, id, modelType, patch)
}

func (s *Synchronizer) applyLocked(ctx context.Context, id int64, modelType string, patch model.Patch) error {
	prevDownloads := s.normalize("downloads", s.downloads.Get())
	prevModels := s.normalize("models", s.models.Get())

	nextDownloads := patchWhere(prevDownloads, patch, func(m model.Model) bool {
		return m.Matches(id, modelType)
	})
	nextModels := patchWhere(prevModels, patch, func(m model.Model) bool {
		return m.ID == id
	})

	if err := s.downloads.Set(ctx, nextDownloads); err != nil {
		return fmt.Errorf("update download list: %w", err)
	}

	if err := s.models.Set(ctx, nextModels); err != nil {
		if rbErr := s.rollback(ctx, id, modelType, prevDownloads); rbErr != nil {
			s.logger.Error().
				Err(rbErr).
				Int64("model_id", id).
				Str("model_type", modelType).
				Msg("failed to roll back download list")
			return fmt.Errorf("update model list: %w (rollback failed: %v)", errors.Join(ErrPartialUpdate, err), rbErr)
		}
		return fmt.Errorf("update model list: %w", errors.Join(ErrPartialUpdate, err))
	}

	return nil
}

// rollback puts the records touched by an update back to their previous
// values and leaves everything else in the download list alone.
func (s *Synchronizer) rollback(ctx context.Context, id int64, modelType string, prev []model.Model) error {
	var original *model.Model
	for i := range prev {
		if prev[i].Matches(id, modelType) {
			original = &prev[i]
			break
		}
	}
	if original == nil {
		return nil
	}

	return s.downloads.Update(ctx, func(current []model.Model) []model.Model {
		for i := range current {
			if current[i].Matches(id, modelType) {
				current[i] = *original
			}
		}
		return current
	})
}

// ApplyEvent merges a download progress event into both lists. Once a
// download succeeds its completed records leave the download list.
func (s *Synchronizer) ApplyEvent(ctx context.Context, ev model.DownloadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownLocked(ev.ID, ev.ModelType) {
		return fmt.Errorf("model %d (%s): %w", ev.ID, ev.ModelType, ErrUnknownModel)
	}

	if err := s.applyLocked(ctx, ev.ID, ev.ModelType, ev.Patch()); err != nil {
		return err
	}

	if ev.Status != model.EventSuccess {
		return nil
	}

	err := s.downloads.Update(ctx, func(current []model.Model) []model.Model {
		kept := make([]model.Model, 0, len(current))
		for _, m := range current {
			if m.Status != model.StatusCompleted {
				kept = append(kept, m)
			}
		}
		return kept
	})
	if err != nil {
		return fmt.Errorf("drop completed downloads: %w", err)
	}
	return nil
}

// StartDownload puts m on the download list as in progress and marks it in
// the model list. A record already on the list is resumed without a limit
// check. A new record fails with ErrTooManyDownloads when
// MaxConcurrentDownloads unfinished records are listed, paused or failed ones
// included.
func (s *Synchronizer) StartDownload(ctx context.Context, m model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listed := false
	unfinished := 0
	for _, d := range s.downloads.Get() {
		if d.Matches(m.ID, m.ModelType) {
			listed = true
			break
		}
		if d.IsActiveDownload() {
			unfinished++
		}
	}
	if !listed && unfinished >= model.MaxConcurrentDownloads {
		return ErrTooManyDownloads
	}

	m.Status = model.StatusInProgress
	m.CanSelect = false
	m.Error = ""

	err := s.downloads.Update(ctx, func(current []model.Model) []model.Model {
		for i := range current {
			if current[i].Matches(m.ID, m.ModelType) {
				// resume keeps the progress reported so far
				m.CurrentDownload = current[i].CurrentDownload
				m.CompletedSize = current[i].CompletedSize
				m.TotalSize = current[i].TotalSize
				current[i] = m
				return current
			}
		}
		return append(current, m)
	})
	if err != nil {
		return fmt.Errorf("add download: %w", err)
	}

	return s.applyLocked(ctx, m.ID, m.ModelType, model.Patch{
		Status:    model.Ptr(model.StatusInProgress),
		CanSelect: model.Ptr(false),
	})
}

// Active returns the number of unfinished downloads occupying a slot.
func (s *Synchronizer) Active() int {
	n := 0
	for _, d := range s.downloads.Get() {
		if d.IsActiveDownload() {
			n++
		}
	}
	return n
}

func (s *Synchronizer) knownLocked(id int64, modelType string) bool {
	for _, m := range s.downloads.Get() {
		if m.Matches(id, modelType) {
			return true
		}
	}
	for _, m := range s.models.Get() {
		if m.ID == id {
			return true
		}
	}
	return false
}

// normalize turns an absent collection into an empty one.
func (s *Synchronizer) normalize(name string, list []model.Model) []model.Model {
	if len(list) == 0 {
		s.logger.Debug().Str("collection", name).Msg("treating missing collection as empty")
		return []model.Model{}
	}
	return list
}

// patchWhere returns a new list in which every record selected by match is
// replaced by patch applied to it.
func patchWhere(list []model.Model, patch model.Patch, match func(model.Model) bool) []model.Model {
	out := make([]model.Model, len(list))
	for i, m := range list {
		if match(m) {
			out[i] = patch.Apply(m)
			continue
		}
		out[i] = m
	}
	return out
}
