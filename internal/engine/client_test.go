package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byze/byze-console/internal/engine"
	"github.com/byze/byze-console/internal/gate"
	"github.com/byze/byze-console/internal/model"
)

type fixedChecker bool

func (c fixedChecker) Check(context.Context) bool { return bool(c) }

func newClient(t *testing.T, handler http.HandlerFunc, up bool) *engine.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return engine.NewClient(engine.Config{
		BaseURL: server.URL + "/byze/v0.2",
		HTTP:    server.Client(),
		Gate:    gate.New(gate.Config{Checker: fixedChecker(up), Logger: zerolog.Nop()}),
		Logger:  zerolog.Nop(),
	})
}

func TestClient_UnwrapsEnvelope(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/byze/v0.2/service", r.URL.Path)
		assert.Equal(t, "local", r.URL.Query().Get("source"))
		_, _ = w.Write([]byte(`{"business_code":10000,"message":"ok","data":{"name":"ollama"}}`))
	}, true)

	var out struct {
		Name string `json:"name"`
	}
	err := client.Get(context.Background(), "/service", url.Values{"source": {"local"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ollama", out.Name)
}

func TestClient_BareBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"ollama"}`))
	}, true)

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.Get(context.Background(), "service", nil, &out))
	assert.Equal(t, "ollama", out.Name)
}

func TestClient_APIError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"business_code":20003,"message":"invalid auth"}`))
	}, true)

	err := client.Post(context.Background(), "/model", map[string]string{"model_name": "x"}, nil)

	var apiErr *engine.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 20003, apiErr.BusinessCode)
	assert.Equal(t, "invalid auth", apiErr.Message)
}

func TestClient_GatedWhenDown(t *testing.T) {
	called := false
	client := newClient(t, func(http.ResponseWriter, *http.Request) {
		called = true
	}, false)

	err := client.Get(context.Background(), "/model", nil, nil)
	assert.ErrorIs(t, err, gate.ErrServiceUnavailable)
	assert.False(t, called)
}

func TestClient_ListModels(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/byze/v0.2/model/support", r.URL.Path)
		assert.Equal(t, "local", r.URL.Query().Get("service_source"))
		assert.Equal(t, "2", r.URL.Query().Get("page_index"))
		_, _ = w.Write([]byte(`{"business_code":10000,"data":{
			"data":[
				{"id":"17","name":"qwen2:7b","service_name":"chat","can_select":true,"class":["chat"]},
				{"id":"deepseek-r1","name":"deepseek-r1:7b","service_name":"chat"}
			],
			"page":2,"page_size":10,"total":12,"total_page":2}}`))
	}, true)

	page, err := client.ListModels(context.Background(), engine.ListModelsParams{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Models, 2)
	assert.Equal(t, 12, page.Total)

	first := page.Models[0]
	assert.Equal(t, int64(17), first.ID)
	assert.Equal(t, "local", first.ModelType)
	assert.True(t, first.CanSelect)
	assert.Equal(t, []string{"chat"}, first.Class)

	// string ids map to a stable positive id
	second := page.Models[1]
	assert.Positive(t, second.ID)

	again, err := client.ListModels(context.Background(), engine.ListModelsParams{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, second.ID, again.Models[1].ID)
}

func TestClient_PullModel(t *testing.T) {
	var got map[string]string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/byze/v0.2/model", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"business_code":10000,"message":"ok"}`))
	}, true)

	err := client.PullModel(context.Background(), model.Model{Name: "qwen2:7b", ServiceName: "chat"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2:7b", got["model_name"])
	assert.Equal(t, "local", got["service_source"])
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "engine returned 502", (&engine.APIError{StatusCode: 502}).Error())
	assert.Equal(t, "engine returned 400: bad", (&engine.APIError{StatusCode: 400, Message: "bad"}).Error())
}
