package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/model"
)

// MCPDownloadKey is the storage key of the persisted MCP install list.
const MCPDownloadKey = "mcp-download-store"

// Default MCP install timings.
const (
	// DefaultSuccessRetention is how long a finished install stays listed.
	DefaultSuccessRetention = 2 * time.Second

	// DefaultStaleAfter is how long an install may stay "downloading" before
	// the sweep drops it.
	DefaultStaleAfter = 2*time.Minute + 5*time.Second
)

// MCPDownloadConfig holds configuration for the MCP install store.
type MCPDownloadConfig struct {
	Storage          kvstore.Store
	Logger           zerolog.Logger
	SuccessRetention time.Duration
	StaleAfter       time.Duration
	Now              func() time.Time
}

// MCPDownloadStore tracks MCP server installs started from the console.
type MCPDownloadStore struct {
	items  *Value[[]model.MCPDownloadItem]
	logger zerolog.Logger

	successRetention time.Duration
	staleAfter       time.Duration
	now              func() time.Time

	mu           sync.Mutex
	addModalShow bool
	timers       map[*time.Timer]struct{}
}

// NewMCPDownloadStore restores the install list from storage.
func NewMCPDownloadStore(ctx context.Context, cfg MCPDownloadConfig) *MCPDownloadStore {
	if cfg.SuccessRetention == 0 {
		cfg.SuccessRetention = DefaultSuccessRetention
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var restored []model.MCPDownloadItem
	err := kvstore.GetJSON(ctx, cfg.Storage, MCPDownloadKey, &restored)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		cfg.Logger.Warn().Err(err).Str("key", MCPDownloadKey).Msg("discarding stored mcp installs")
		restored = nil
	}

	kv := cfg.Storage
	commit := func(ctx context.Context, next []model.MCPDownloadItem) error {
		if err := kvstore.SetJSON(ctx, kv, MCPDownloadKey, next); err != nil {
			return fmt.Errorf("persist mcp installs: %w", err)
		}
		return nil
	}

	return &MCPDownloadStore{
		items:            NewValue(restored, commit),
		logger:           cfg.Logger,
		successRetention: cfg.SuccessRetention,
		staleAfter:       cfg.StaleAfter,
		now:              cfg.Now,
		timers:           make(map[*time.Timer]struct{}),
	}
}

// Items returns a copy of the tracked installs.
func (s *MCPDownloadStore) Items() []model.MCPDownloadItem {
	current := s.items.Get()
	out := make([]model.MCPDownloadItem, 0, len(current))
	for _, item := range current {
		out = append(out, item.Clone())
	}
	return out
}

// Init starts tracking an install of detail, or restarts an existing one.
func (s *MCPDownloadStore) Init(ctx context.Context, detail model.MCPDetail) error {
	now := s.now()
	return s.items.Update(ctx, func(current []model.MCPDownloadItem) []model.MCPDownloadItem {
		next := append([]model.MCPDownloadItem(nil), current...)
		for i := range next {
			if next[i].ID() == detail.ID {
				next[i].Status = model.MCPDownloading
				next[i].StartTime = now
				return next
			}
		}

		// keep only what the list needs to render
		detail := detail.Clone()
		detail.ServerConfig = nil
		detail.ServerName = ""
		detail.Summary = ""
		return append(next, model.MCPDownloadItem{
			Detail:    &detail,
			Status:    model.MCPDownloading,
			StartTime: now,
		})
	})
}

// Report records the outcome of an install. An error outcome raises the
// add-failed modal; a success outcome is dropped after the retention delay.
func (s *MCPDownloadStore) Report(ctx context.Context, id string, status model.MCPDownloadStatus, errMsg string) error {
	found := false
	err := s.items.Update(ctx, func(current []model.MCPDownloadItem) []model.MCPDownloadItem {
		next := append([]model.MCPDownloadItem(nil), current...)
		for i := range next {
			if next[i].ID() == id {
				found = true
				next[i].Status = status
				next[i].Error = errMsg
			}
		}
		return next
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mcp %q: %w", id, ErrNotFound)
	}

	switch status {
	case model.MCPError:
		s.SetAddModalShow(true)
	case model.MCPSuccess:
		s.scheduleRemoval(id)
	}
	return nil
}

// Delete stops tracking the install of id.
func (s *MCPDownloadStore) Delete(ctx context.Context, id string) error {
	return s.items.Update(ctx, func(current []model.MCPDownloadItem) []model.MCPDownloadItem {
		next := make([]model.MCPDownloadItem, 0, len(current))
		for _, item := range current {
			if item.ID() != id {
				next = append(next, item)
			}
		}
		return next
	})
}

// SweepStale drops installs that have been downloading for longer than the
// stale threshold and returns how many were dropped.
func (s *MCPDownloadStore) SweepStale(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0
	err := s.items.Update(ctx, func(current []model.MCPDownloadItem) []model.MCPDownloadItem {
		next := make([]model.MCPDownloadItem, 0, len(current))
		for _, item := range current {
			if item.Status == model.MCPDownloading && !item.StartTime.IsZero() &&
				now.Sub(item.StartTime) > s.staleAfter {
				removed++
				continue
			}
			next = append(next, item)
		}
		return next
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// AddModalShow reports whether the add-failed modal should be shown.
func (s *MCPDownloadStore) AddModalShow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addModalShow
}

// SetAddModalShow shows or hides the add-failed modal.
func (s *MCPDownloadStore) SetAddModalShow(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addModalShow = show
}

// Close cancels pending removals.
func (s *MCPDownloadStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}

func (s *MCPDownloadStore) scheduleRemoval(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(s.successRetention, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if err := s.Delete(context.Background(), id); err != nil {
			s.logger.Warn().Err(err).Str("mcp_id", id).Msg("failed to drop finished mcp install")
		}
	})
	s.timers[t] = struct{}{}
}
