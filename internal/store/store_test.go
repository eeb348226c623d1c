package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/store"
)

// failingKV rejects every write.
type failingKV struct {
	*kvstore.InMemoryStore
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestValue_UpdateReplacesState(t *testing.T) {
	ctx := context.Background()
	v := store.NewValue([]int{1, 2, 3}, nil)

	require.NoError(t, v.Update(ctx, func(current []int) []int {
		return []int{current[0]}
	}))
	assert.Equal(t, []int{1}, v.Get())

	require.NoError(t, v.Set(ctx, []int{9}))
	assert.Equal(t, []int{9}, v.Get())
}

func TestValue_CommitFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	v := store.NewValue("old", func(context.Context, string) error {
		return errors.New("boom")
	})

	assert.Error(t, v.Set(ctx, "new"))
	assert.Equal(t, "old", v.Get())
}

func TestSelectedModelStore_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()

	s := store.NewSelectedModelStore(ctx, kv, zerolog.Nop())
	assert.Nil(t, s.Selected())

	require.NoError(t, s.Set(ctx, &model.Model{ID: 1, Name: "m1"}))
	require.NoError(t, s.SetIsSelected(ctx, true))

	raw, err := kv.Get(ctx, store.SelectedModelKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"selectedModel"`)

	restored := store.NewSelectedModelStore(ctx, kv, zerolog.Nop())
	require.NotNil(t, restored.Selected())
	assert.Equal(t, "m1", restored.Selected().Name)
	// confirmation is not persisted
	assert.False(t, restored.IsSelected())
}

func TestSelectedModelStore_MalformedSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	require.NoError(t, kv.Set(ctx, store.SelectedModelKey, []byte("{not json")))

	s := store.NewSelectedModelStore(ctx, kv, zerolog.Nop())
	assert.Nil(t, s.Selected())
}

func TestSelectedModelStore_UpdateAndClear(t *testing.T) {
	ctx := context.Background()
	s := store.NewSelectedModelStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())

	require.NoError(t, s.Set(ctx, &model.Model{ID: 1, Name: "m1"}))
	require.NoError(t, s.Update(ctx, func(current *model.Model) *model.Model {
		current.Name = "m1-renamed"
		return current
	}))
	assert.Equal(t, "m1-renamed", s.Selected().Name)

	require.NoError(t, s.Set(ctx, nil))
	assert.Nil(t, s.Selected())
}

func TestSelectedModelStore_WriteFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewSelectedModelStore(ctx, failingKV{kvstore.NewInMemoryStore()}, zerolog.Nop())

	assert.Error(t, s.Set(ctx, &model.Model{ID: 1}))
	assert.Nil(t, s.Selected())
}

func TestMCPSelectionStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMCPSelectionStore()
	assert.Empty(t, s.Selected())
	assert.Equal(t, "", s.DrawerOpenID())

	require.NoError(t, s.SetSelected(ctx, []model.MCPItem{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, s.UpdateSelected(ctx, func(current []model.MCPItem) []model.MCPItem {
		return current[1:]
	}))
	require.Len(t, s.Selected(), 1)
	assert.Equal(t, "b", s.Selected()[0].ID)

	require.NoError(t, s.SetDrawerOpenID(ctx, "b"))
	assert.Equal(t, "b", s.DrawerOpenID())
}

func TestDownloadStore_DedupesByIDAndType(t *testing.T) {
	ctx := context.Background()
	s := store.NewDownloadStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())

	require.NoError(t, s.Set(ctx, []model.Model{
		{ID: 1, ModelType: "local", Name: "first"},
		{ID: 1, ModelType: "remote", Name: "other type"},
		{ID: 1, ModelType: "local", Name: "second"},
	}))

	got := s.Get()
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Name)
	assert.Equal(t, "other type", got[1].Name)
}

func TestDownloadStore_RestoresInProgressAsPaused(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()

	s := store.NewDownloadStore(ctx, kv, zerolog.Nop())
	require.NoError(t, s.Set(ctx, []model.Model{
		{ID: 1, Status: model.StatusInProgress, CurrentDownload: 40},
		{ID: 2, Status: model.StatusFailed},
	}))

	restored := store.NewDownloadStore(ctx, kv, zerolog.Nop()).Get()
	require.Len(t, restored, 2)
	assert.Equal(t, model.StatusPaused, restored[0].Status)
	assert.Equal(t, 40.0, restored[0].CurrentDownload)
	assert.Equal(t, model.StatusFailed, restored[1].Status)
}

func TestDownloadStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := store.NewDownloadStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())
	require.NoError(t, s.Set(ctx, []model.Model{{ID: 1, Name: "a"}}))

	got := s.Get()
	got[0].Name = "mutated"
	assert.Equal(t, "a", s.Get()[0].Name)
}

func TestDownloadStore_CopiesShareNoMemory(t *testing.T) {
	ctx := context.Background()
	s := store.NewDownloadStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())

	input := []model.Model{{ID: 1, ModelType: "local", Class: []string{"chat", "embed"}}}
	require.NoError(t, s.Set(ctx, input))
	input[0].Class[0] = "changed by caller"

	got := s.Get()
	got[0].Class[1] = "changed by reader"

	assert.Equal(t, []string{"chat", "embed"}, s.Get()[0].Class)
}

func TestListValue_CopiesShareNoMemory(t *testing.T) {
	list := store.NewListValue([]model.Model{{ID: 1, Class: []string{"chat"}}})

	list.Get()[0].Class[0] = "changed"

	assert.Equal(t, []string{"chat"}, list.Get()[0].Class)
}

func TestSelectionStores_CopiesShareNoMemory(t *testing.T) {
	ctx := context.Background()

	selected := store.NewSelectedModelStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())
	require.NoError(t, selected.Set(ctx, &model.Model{ID: 2, Class: []string{"chat"}}))
	selected.Selected().Class[0] = "changed"
	assert.Equal(t, []string{"chat"}, selected.Selected().Class)

	mcp := store.NewMCPSelectionStore()
	require.NoError(t, mcp.SetSelected(ctx, []model.MCPItem{{ID: "fs", Tags: []string{"files"}}}))
	mcp.Selected()[0].Tags[0] = "changed"
	assert.Equal(t, []string{"files"}, mcp.Selected()[0].Tags)
}

func TestMCPDownloadStore_ItemsShareNoMemory(t *testing.T) {
	ctx := context.Background()
	s := store.NewMCPDownloadStore(ctx, store.MCPDownloadConfig{
		Storage: kvstore.NewInMemoryStore(),
		Logger:  zerolog.Nop(),
	})
	defer s.Close()

	detail := model.MCPDetail{MCPItem: model.MCPItem{ID: "fs", Tags: []string{"files"}}}
	require.NoError(t, s.Init(ctx, detail))
	detail.Tags[0] = "changed by caller"

	items := s.Items()
	items[0].Detail.ID = "other"
	items[0].Detail.Tags[0] = "changed by reader"

	got := s.Items()
	require.Len(t, got, 1)
	assert.Equal(t, "fs", got[0].ID())
	assert.Equal(t, []string{"files"}, got[0].Detail.Tags)
}

func TestMCPDownloadStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	s := store.NewMCPDownloadStore(ctx, store.MCPDownloadConfig{
		Storage:          kv,
		Logger:           zerolog.Nop(),
		SuccessRetention: 10 * time.Millisecond,
	})
	defer s.Close()

	detail := model.MCPDetail{
		MCPItem:      model.MCPItem{ID: "fs"},
		ServerName:   "filesystem",
		Summary:      "long text",
		ServerConfig: []byte(`{"command":"npx"}`),
	}
	require.NoError(t, s.Init(ctx, detail))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, model.MCPDownloading, items[0].Status)
	assert.Empty(t, items[0].Detail.ServerConfig)
	assert.Empty(t, items[0].Detail.ServerName)
	assert.Empty(t, items[0].Detail.Summary)
	assert.False(t, items[0].StartTime.IsZero())

	require.NoError(t, s.Report(ctx, "fs", model.MCPSuccess, ""))
	assert.Equal(t, model.MCPSuccess, s.Items()[0].Status)

	assert.Eventually(t, func() bool { return len(s.Items()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestMCPDownloadStore_ReportError(t *testing.T) {
	ctx := context.Background()
	s := store.NewMCPDownloadStore(ctx, store.MCPDownloadConfig{
		Storage: kvstore.NewInMemoryStore(),
		Logger:  zerolog.Nop(),
	})
	defer s.Close()

	require.NoError(t, s.Init(ctx, model.MCPDetail{MCPItem: model.MCPItem{ID: "fs"}}))
	require.NoError(t, s.Report(ctx, "fs", model.MCPError, "npx not found"))

	assert.True(t, s.AddModalShow())
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "npx not found", items[0].Error)

	err := s.Report(ctx, "missing", model.MCPSuccess, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMCPDownloadStore_SweepStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := store.NewMCPDownloadStore(ctx, store.MCPDownloadConfig{
		Storage: kvstore.NewInMemoryStore(),
		Logger:  zerolog.Nop(),
		Now:     clock,
	})
	defer s.Close()

	require.NoError(t, s.Init(ctx, model.MCPDetail{MCPItem: model.MCPItem{ID: "old"}}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Init(ctx, model.MCPDetail{MCPItem: model.MCPItem{ID: "new"}}))
	now = now.Add(10 * time.Second)

	removed, err := s.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].ID())
}

func TestMCPDownloadStore_Restores(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	cfg := store.MCPDownloadConfig{Storage: kv, Logger: zerolog.Nop()}

	s := store.NewMCPDownloadStore(ctx, cfg)
	require.NoError(t, s.Init(ctx, model.MCPDetail{MCPItem: model.MCPItem{ID: "fs"}}))
	s.Close()

	restored := store.NewMCPDownloadStore(ctx, cfg)
	defer restored.Close()
	require.Len(t, restored.Items(), 1)
	assert.Equal(t, "fs", restored.Items()[0].ID())
}

func TestSelectedModelStore_UpdaterReturnReplacesState(t *testing.T) {
	ctx := context.Background()
	s := store.NewSelectedModelStore(ctx, kvstore.NewInMemoryStore(), zerolog.Nop())
	require.NoError(t, s.Set(ctx, &model.Model{ID: 1, Name: "m1", ModelType: "local"}))

	require.NoError(t, s.Update(ctx, func(*model.Model) *model.Model {
		return &model.Model{ID: 2}
	}))

	// nothing from the previous selection is merged in
	assert.Equal(t, &model.Model{ID: 2}, s.Selected())
}
