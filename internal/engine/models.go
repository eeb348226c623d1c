package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"strconv"

	"github.com/byze/byze-console/internal/model"
)

// ListModelsParams filters the supported model list.
type ListModelsParams struct {
	ServiceSource model.Source
	Flavor        string
	Page          int
	PageSize      int
}

// ModelPage is one page of supported models.
type ModelPage struct {
	Models    []model.Model `json:"data"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	Total     int           `json:"total"`
	TotalPage int           `json:"total_page"`
}

// supportedModel is the engine's model record. Its id may be a number or a
// string.
type supportedModel struct {
	ID              json.RawMessage `json:"id"`
	Name            string          `json:"name"`
	Service         string          `json:"service_name"`
	APIFlavor       string          `json:"api_flavor"`
	Flavor          string          `json:"flavor"`
	Desc            string          `json:"desc"`
	ServiceProvider string          `json:"service_provider_name"`
	Size            string          `json:"size"`
	IsRecommended   bool            `json:"is_recommended"`
	Status          string          `json:"status"`
	Avatar          string          `json:"avatar"`
	CanSelect       bool            `json:"can_select"`
	Class           []string        `json:"class"`
	ParamsSize      float64         `json:"params_size"`
	Source          string          `json:"source"`
}

type supportedPage struct {
	Data      []supportedModel `json:"data"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	Total     int              `json:"total"`
	TotalPage int              `json:"total_page"`
}

// ListModels fetches one page of the models the engine supports.
func (c *Client) ListModels(ctx context.Context, p ListModelsParams) (*ModelPage, error) {
	query := url.Values{}
	source := p.ServiceSource
	if source == "" {
		source = model.SourceLocal
	}
	query.Set("service_source", string(source))
	if p.Flavor != "" {
		query.Set("flavor", p.Flavor)
	}
	if p.Page > 0 {
		query.Set("page_index", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(p.PageSize))
	}

	var page supportedPage
	if err := c.Get(ctx, "/model/support", query, &page); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	out := &ModelPage{
		Models:    make([]model.Model, 0, len(page.Data)),
		Page:      page.Page,
		PageSize:  page.PageSize,
		Total:     page.Total,
		TotalPage: page.TotalPage,
	}
	for _, m := range page.Data {
		out.Models = append(out.Models, m.toModel(source))
	}
	return out, nil
}

// PullModel asks the engine to download m.
func (c *Client) PullModel(ctx context.Context, m model.Model) error {
	req := map[string]string{
		"model_name":     m.Name,
		"service_name":   m.ServiceName,
		"service_source": string(sourceOf(m)),
		"provider_name":  m.ServiceProviderName,
	}
	if err := c.Post(ctx, "/model", req, nil); err != nil {
		return fmt.Errorf("pull model %q: %w", m.Name, err)
	}
	return nil
}

// CancelPull stops an in-flight download of the named model.
func (c *Client) CancelPull(ctx context.Context, modelName string) error {
	if err := c.Post(ctx, "/model/stream/cancel", map[string]string{"model_name": modelName}, nil); err != nil {
		return fmt.Errorf("cancel pull %q: %w", modelName, err)
	}
	return nil
}

// DeleteModel removes m from the engine.
func (c *Client) DeleteModel(ctx context.Context, m model.Model) error {
	req := map[string]string{
		"model_name":     m.Name,
		"service_name":   m.ServiceName,
		"service_source": string(sourceOf(m)),
		"provider_name":  m.ServiceProviderName,
	}
	if err := c.Delete(ctx, "/model", req, nil); err != nil {
		return fmt.Errorf("delete model %q: %w", m.Name, err)
	}
	return nil
}

func sourceOf(m model.Model) model.Source {
	if m.Source == "" {
		return model.SourceLocal
	}
	return m.Source
}

func (m supportedModel) toModel(source model.Source) model.Model {
	if m.Source != "" {
		source = model.Source(m.Source)
	}
	return model.Model{
		ID:                  parseID(m.ID, m.Name),
		ModelType:           string(source),
		Type:                m.Flavor,
		Name:                m.Name,
		ServiceName:         m.Service,
		ServiceProviderName: m.ServiceProvider,
		APIFlavor:           m.APIFlavor,
		Source:              source,
		Description:         m.Desc,
		Avatar:              m.Avatar,
		Size:                m.Size,
		Class:               m.Class,
		ParamsSize:          m.ParamsSize,
		IsRecommended:       m.IsRecommended,
		CanSelect:           m.CanSelect,
	}
}

// parseID reads a numeric id, or derives a stable one from a string id (or
// the name when there is none).
func parseID(raw json.RawMessage, name string) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil && n != 0 {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	} else {
		s = name
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
