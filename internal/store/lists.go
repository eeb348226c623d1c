package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/model"
)

// DownloadListKey is the storage key of the persisted download list.
const DownloadListKey = "model_download_list"

// ModelList is the contract shared by every list of model records.
type ModelList interface {
	Get() []model.Model
	Set(ctx context.Context, list []model.Model) error
	Update(ctx context.Context, fn func(current []model.Model) []model.Model) error
}

// DownloadStore holds the models being downloaded. Records are unique per
// (id, modelType) and the list is written to durable storage on every
// mutation.
type DownloadStore struct {
	list *Value[[]model.Model]
}

// NewDownloadStore restores the download list from kv. A missing or
// malformed snapshot yields an empty list. Downloads that were in progress
// when the previous process stopped are restored as paused.
func NewDownloadStore(ctx context.Context, kv kvstore.Store, logger zerolog.Logger) *DownloadStore {
	var restored []model.Model
	err := kvstore.GetJSON(ctx, kv, DownloadListKey, &restored)
	switch {
	case err == nil:
	case errors.Is(err, kvstore.ErrNotFound):
	default:
		logger.Warn().Err(err).Str("key", DownloadListKey).Msg("discarding stored download list")
		restored = nil
	}

	for i := range restored {
		if restored[i].Status == model.StatusInProgress {
			restored[i].Status = model.StatusPaused
		}
	}

	commit := func(ctx context.Context, next []model.Model) error {
		if err := kvstore.SetJSON(ctx, kv, DownloadListKey, next); err != nil {
			return fmt.Errorf("persist download list: %w", err)
		}
		return nil
	}

	return &DownloadStore{list: NewValue(dedupe(restored), commit)}
}

// Get returns the current download list.
func (s *DownloadStore) Get() []model.Model {
	return clone(s.list.Get())
}

// Set replaces the download list.
func (s *DownloadStore) Set(ctx context.Context, list []model.Model) error {
	return s.list.Set(ctx, dedupe(list))
}

// Update replaces the download list with fn(current).
func (s *DownloadStore) Update(ctx context.Context, fn func(current []model.Model) []model.Model) error {
	return s.list.Update(ctx, func(current []model.Model) []model.Model {
		return dedupe(fn(clone(current)))
	})
}

// ModelListStore holds the model lists shown by the console. They live in
// memory and are refilled from the engine.
type ModelListStore struct {
	// All is the global model list kept in step with the download list.
	All *ListValue
	// Mine is the "my models" list.
	Mine *ListValue
	// Square is the model square list.
	Square *ListValue
}

// NewModelListStore creates empty model lists.
func NewModelListStore() *ModelListStore {
	return &ModelListStore{
		All:    NewListValue(nil),
		Mine:   NewListValue(nil),
		Square: NewListValue(nil),
	}
}

// ListValue is an in-memory ModelList. Get hands out copies so callers cannot
// mutate the stored records.
type ListValue struct {
	v *Value[[]model.Model]
}

// NewListValue creates a list holding initial.
func NewListValue(initial []model.Model) *ListValue {
	return &ListValue{v: NewValue(clone(initial), nil)}
}

// Get returns the current list.
func (l *ListValue) Get() []model.Model { return clone(l.v.Get()) }

// Set replaces the list.
func (l *ListValue) Set(ctx context.Context, list []model.Model) error {
	return l.v.Set(ctx, clone(list))
}

// Update replaces the list with fn(current).
func (l *ListValue) Update(ctx context.Context, fn func(current []model.Model) []model.Model) error {
	return l.v.Update(ctx, func(current []model.Model) []model.Model {
		return fn(clone(current))
	})
}

var (
	_ ModelList = (*DownloadStore)(nil)
	_ ModelList = (*ListValue)(nil)
)

type recordKey struct {
	id        int64
	modelType string
}

// dedupe keeps one record per (id, modelType): the last one written, at the
// position where the key first appeared.
func dedupe(list []model.Model) []model.Model {
	out := make([]model.Model, 0, len(list))
	index := make(map[recordKey]int, len(list))
	for _, m := range list {
		k := recordKey{m.ID, m.ModelType}
		if i, ok := index[k]; ok {
			out[i] = m.Clone()
			continue
		}
		index[k] = len(out)
		out = append(out, m.Clone())
	}
	return out
}

// clone deep-copies list so callers cannot reach the stored records.
func clone(list []model.Model) []model.Model {
	if list == nil {
		return nil
	}
	out := make([]model.Model, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	return out
}
