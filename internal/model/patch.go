package model

import "strings"

// Patch is a partial update of a Model. Every non-nil field replaces the
// corresponding field of the record it is applied to.
type Patch struct {
	Status          *DownloadStatus `json:"status,omitempty"`
	CanSelect       *bool           `json:"can_select,omitempty"`
	CurrentDownload *float64        `json:"currentDownload,omitempty"`
	CompletedSize   *int64          `json:"completedsize,omitempty"`
	TotalSize       *int64          `json:"totalsize,omitempty"`
	Error           *string         `json:"error,omitempty"`
	Avatar          *string         `json:"avatar,omitempty"`
	UpdateTime      *int64          `json:"update_time,omitempty"`
}

// Apply returns a copy of m with the patch merged over it.
func (p Patch) Apply(m Model) Model {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.CanSelect != nil {
		m.CanSelect = *p.CanSelect
	}
	if p.CurrentDownload != nil {
		m.CurrentDownload = *p.CurrentDownload
	}
	if p.CompletedSize != nil {
		m.CompletedSize = *p.CompletedSize
	}
	if p.TotalSize != nil {
		m.TotalSize = *p.TotalSize
	}
	if p.Error != nil {
		m.Error = *p.Error
	}
	if p.Avatar != nil {
		m.Avatar = *p.Avatar
	}
	if p.UpdateTime != nil {
		m.UpdateTime = *p.UpdateTime
	}
	return m
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T {
	return &v
}

// EventStatus is the status reported by the engine's download stream.
type EventStatus string

const (
	EventSuccess  EventStatus = "success"
	EventCanceled EventStatus = "canceled"
	EventError    EventStatus = "error"
)

// DownloadEvent is one progress message of a model download.
type DownloadEvent struct {
	ID            int64       `json:"id"`
	ModelType     string      `json:"modelType"`
	Progress      float64     `json:"progress,omitempty"`
	CompletedSize int64       `json:"completedsize,omitempty"`
	TotalSize     int64       `json:"totalsize,omitempty"`
	Status        EventStatus `json:"status,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Patch translates the event into the update applied to both lists.
func (e DownloadEvent) Patch() Patch {
	if e.Error != "" {
		status := StatusFailed
		if strings.Contains(e.Error, "aborted") {
			status = StatusPaused
		}
		return Patch{Status: &status}
	}

	var p Patch
	if e.Progress != 0 {
		p.CurrentDownload = Ptr(e.Progress)
	}
	if e.CompletedSize != 0 {
		p.CompletedSize = Ptr(e.CompletedSize)
	}
	if e.TotalSize != 0 {
		p.TotalSize = Ptr(e.TotalSize)
	}

	switch e.Status {
	case EventSuccess:
		p.CurrentDownload = Ptr(100.0)
		p.Status = Ptr(StatusCompleted)
		p.CompletedSize = Ptr(e.TotalSize)
		p.TotalSize = Ptr(e.TotalSize)
		p.CanSelect = Ptr(true)
	case EventCanceled:
		p.Status = Ptr(StatusPaused)
	case EventError:
		p.Status = Ptr(StatusFailed)
	default:
		p.Status = Ptr(StatusInProgress)
	}
	return p
}
