package models

import "github.com/byze/byze-console/internal/model"

// ModelListName selects one of the model lists.
type ModelListName string

const (
	ModelListAll    ModelListName = "all"
	ModelListMine   ModelListName = "mine"
	ModelListSquare ModelListName = "square"
)

// ModelList is the body of the model and download list endpoints.
type ModelList struct {
	Items []model.Model `json:"items"`
}

// StartDownloadRequest asks the console to start downloading a model.
type StartDownloadRequest struct {
	Model model.Model `json:"model"`
}

// RefreshModelsRequest selects what the model list is refreshed from.
type RefreshModelsRequest struct {
	List          ModelListName `json:"list,omitempty"`
	ServiceSource string        `json:"serviceSource,omitempty"`
	Flavor        string        `json:"flavor,omitempty"`
	Page          int           `json:"page,omitempty"`
	PageSize      int           `json:"pageSize,omitempty"`
}

// RefreshModelsResponse reports the refreshed page.
type RefreshModelsResponse struct {
	Items     []model.Model `json:"items"`
	Page      int           `json:"page"`
	PageSize  int           `json:"pageSize"`
	Total     int           `json:"total"`
	TotalPage int           `json:"totalPage"`
}

// SelectedModel is the body of the selected model endpoints.
type SelectedModel struct {
	SelectedModel *model.Model `json:"selectedModel"`
	IsSelected    bool         `json:"isSelected"`
}

// SelectedMCP is the body of the MCP selection endpoints.
type SelectedMCP struct {
	Items        []model.MCPItem `json:"items"`
	DrawerOpenID string          `json:"drawerOpenId"`
}

// DrawerRequest sets the MCP drawer.
type DrawerRequest struct {
	ID string `json:"id"`
}

// MCPDownloads is the body of the MCP download list.
type MCPDownloads struct {
	Items        []model.MCPDownloadItem `json:"items"`
	AddModalShow bool                    `json:"addModalShow"`
}

// MCPReportRequest reports the outcome of an MCP server install.
type MCPReportRequest struct {
	Status model.MCPDownloadStatus `json:"status"`
	Error  string                  `json:"error,omitempty"`
}
