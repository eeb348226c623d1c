package model

import (
	"encoding/json"
	"slices"
	"time"
)

// LocalizedText carries a source-language string and its Chinese rendering.
type LocalizedText struct {
	Src string `json:"src"`
	Zh  string `json:"zh"`
}

// MCPItem is an MCP server entry as listed in the MCP square.
type MCPItem struct {
	ID         string        `json:"id"`
	Status     int           `json:"status"`
	Name       LocalizedText `json:"name"`
	Abstract   LocalizedText `json:"abstract"`
	Supplier   string        `json:"supplier,omitempty"`
	Logo       string        `json:"logo,omitempty"`
	Popularity int           `json:"popularity,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Hosted     bool          `json:"hosted"`
	UpdatedAt  int64         `json:"updatedAt,omitempty"`
}

// Clone returns a copy of i that shares no memory with it.
func (i MCPItem) Clone() MCPItem {
	i.Tags = slices.Clone(i.Tags)
	return i
}

// MCPDetail is the detail record of an MCP server attached to a download.
// ServerConfig, ServerName and Summary are stripped before an item is stored.
type MCPDetail struct {
	MCPItem
	ServerName   string          `json:"serverName,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	ServerConfig json.RawMessage `json:"serverConfig,omitempty"`
}

// Clone returns a copy of d that shares no memory with it.
func (d MCPDetail) Clone() MCPDetail {
	d.MCPItem = d.MCPItem.Clone()
	d.ServerConfig = slices.Clone(d.ServerConfig)
	return d
}

// MCPDownloadStatus is the install state of an MCP server.
type MCPDownloadStatus string

const (
	MCPDownloading MCPDownloadStatus = "downloading"
	MCPSuccess     MCPDownloadStatus = "success"
	MCPError       MCPDownloadStatus = "error"
)

// MCPDownloadItem tracks one MCP server install.
type MCPDownloadItem struct {
	Detail    *MCPDetail        `json:"mcpDetail"`
	Status    MCPDownloadStatus `json:"downStatus"`
	Error     string            `json:"error,omitempty"`
	StartTime time.Time         `json:"startTime,omitempty"`
}

// ID returns the MCP server id of the item, or "" when it has no detail.
func (i MCPDownloadItem) ID() string {
	if i.Detail == nil {
		return ""
	}
	return i.Detail.ID
}

// Clone returns a copy of i with its own detail record.
func (i MCPDownloadItem) Clone() MCPDownloadItem {
	if i.Detail != nil {
		d := i.Detail.Clone()
		i.Detail = &d
	}
	return i
}
