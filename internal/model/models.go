// Package model defines the model records shared by the download list and the
// model list, and the partial updates applied to them.
package model

import "slices"

// Source identifies where a model is served from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// DownloadStatus is the download lifecycle state of a model.
type DownloadStatus string

// Download status constants.
const (
	StatusNone       DownloadStatus = ""
	StatusInProgress DownloadStatus = "in_progress"
	StatusPaused     DownloadStatus = "paused"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
)

// MaxConcurrentDownloads is the number of downloads allowed to be in flight
// at the same time.
const MaxConcurrentDownloads = 3

// Model is a model record as seen by the console. The same record may appear
// in both the download list and the model list.
type Model struct {
	ID                  int64          `json:"id"`
	ModelType           string         `json:"modelType"`
	Type                string         `json:"type,omitempty"`
	Name                string         `json:"name"`
	ServiceName         string         `json:"service_name,omitempty"`
	ServiceProviderName string         `json:"service_provider_name,omitempty"`
	APIFlavor           string         `json:"api_flavor,omitempty"`
	Provider            string         `json:"provider,omitempty"`
	Source              Source         `json:"source,omitempty"`
	Description         string         `json:"desc,omitempty"`
	Avatar              string         `json:"avatar,omitempty"`
	Size                string         `json:"size,omitempty"`
	Class               []string       `json:"class,omitempty"`
	ParamsSize          float64        `json:"params_size,omitempty"`
	IsRecommended       bool           `json:"is_recommended,omitempty"`
	Status              DownloadStatus `json:"status,omitempty"`
	CanSelect           bool           `json:"can_select"`
	CurrentDownload     float64        `json:"currentDownload,omitempty"`
	CompletedSize       int64          `json:"completedsize,omitempty"`
	TotalSize           int64          `json:"totalsize,omitempty"`
	Error               string         `json:"error,omitempty"`
	UpdateTime          int64          `json:"update_time,omitempty"`
}

// Matches reports whether m is the record identified by id and modelType.
func (m Model) Matches(id int64, modelType string) bool {
	return m.ID == id && m.ModelType == modelType
}

// Clone returns a copy of m that shares no memory with it.
func (m Model) Clone() Model {
	m.Class = slices.Clone(m.Class)
	return m
}

// IsActiveDownload reports whether m still occupies a download slot.
func (m Model) IsActiveDownload() bool {
	return !m.CanSelect && m.CurrentDownload < 100
}
