package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/model"
)

// SelectedModelKey is the storage key of the selected model snapshot.
const SelectedModelKey = "selected_model_store"

// selectedModelSnapshot is the persisted part of SelectedModelStore.
type selectedModelSnapshot struct {
	SelectedModel *model.Model `json:"selectedModel"`
}

// SelectedModelStore holds the model the user picked for chat. Only the
// selected model itself is persisted; IsSelected is process-local.
type SelectedModelStore struct {
	selected   *Value[*model.Model]
	isSelected *Value[bool]
}

// NewSelectedModelStore restores the selected model from kv. A missing or
// malformed snapshot yields no selection.
func NewSelectedModelStore(ctx context.Context, kv kvstore.Store, logger zerolog.Logger) *SelectedModelStore {
	var snap selectedModelSnapshot
	err := kvstore.GetJSON(ctx, kv, SelectedModelKey, &snap)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		logger.Warn().Err(err).Str("key", SelectedModelKey).Msg("discarding stored model selection")
		snap = selectedModelSnapshot{}
	}

	commit := func(ctx context.Context, next *model.Model) error {
		if err := kvstore.SetJSON(ctx, kv, SelectedModelKey, selectedModelSnapshot{SelectedModel: next}); err != nil {
			return fmt.Errorf("persist selected model: %w", err)
		}
		return nil
	}

	return &SelectedModelStore{
		selected:   NewValue(snap.SelectedModel, commit),
		isSelected: NewValue(false, nil),
	}
}

// Selected returns a copy of the selected model, or nil.
func (s *SelectedModelStore) Selected() *model.Model {
	return copyModel(s.selected.Get())
}

// Set replaces the selection. A nil model clears it.
func (s *SelectedModelStore) Set(ctx context.Context, m *model.Model) error {
	return s.selected.Set(ctx, copyModel(m))
}

// Update replaces the selection with fn(current).
func (s *SelectedModelStore) Update(ctx context.Context, fn func(current *model.Model) *model.Model) error {
	return s.selected.Update(ctx, func(current *model.Model) *model.Model {
		return copyModel(fn(copyModel(current)))
	})
}

// IsSelected reports whether the user confirmed the selection in this
// process.
func (s *SelectedModelStore) IsSelected() bool {
	return s.isSelected.Get()
}

// SetIsSelected records whether the selection is confirmed.
func (s *SelectedModelStore) SetIsSelected(ctx context.Context, selected bool) error {
	return s.isSelected.Set(ctx, selected)
}

func copyModel(m *model.Model) *model.Model {
	if m == nil {
		return nil
	}
	c := m.Clone()
	return &c
}

// MCPSelectionStore holds the MCP servers picked for the current chat and
// the id of the MCP detail drawer that is open. Nothing is persisted.
type MCPSelectionStore struct {
	selected *Value[[]model.MCPItem]
	drawer   *Value[string]
}

// NewMCPSelectionStore creates an empty selection.
func NewMCPSelectionStore() *MCPSelectionStore {
	return &MCPSelectionStore{
		selected: NewValue[[]model.MCPItem](nil, nil),
		drawer:   NewValue("", nil),
	}
}

// Selected returns the selected MCP servers.
func (s *MCPSelectionStore) Selected() []model.MCPItem {
	return cloneMCPItems(s.selected.Get(), []model.MCPItem{})
}

// SetSelected replaces the selected MCP servers.
func (s *MCPSelectionStore) SetSelected(ctx context.Context, list []model.MCPItem) error {
	return s.selected.Set(ctx, cloneMCPItems(list, nil))
}

// UpdateSelected replaces the selected MCP servers with fn(current).
func (s *MCPSelectionStore) UpdateSelected(ctx context.Context, fn func(current []model.MCPItem) []model.MCPItem) error {
	return s.selected.Update(ctx, func(current []model.MCPItem) []model.MCPItem {
		return cloneMCPItems(fn(cloneMCPItems(current, nil)), nil)
	})
}

// DrawerOpenID returns the id of the open MCP drawer, or "".
func (s *MCPSelectionStore) DrawerOpenID() string {
	return s.drawer.Get()
}

// SetDrawerOpenID opens the drawer for id; an empty id closes it.
func (s *MCPSelectionStore) SetDrawerOpenID(ctx context.Context, id string) error {
	return s.drawer.Set(ctx, id)
}

func cloneMCPItems(list, dst []model.MCPItem) []model.MCPItem {
	for _, item := range list {
		dst = append(dst, item.Clone())
	}
	return dst
}
