package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, zerolog.Nop()), server
}

func TestClient_OpenSession(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"sessionHandle": "sh-1"})
	}))

	handle, err := client.OpenSession(context.Background(), "default", map[string]string{"execution.runtime-mode": "streaming"})
	require.NoError(t, err)
	assert.Equal(t, "sh-1", handle)
	assert.Equal(t, "/sessions", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "default", gotBody["sessionName"])
}

func TestClient_OpenSession_EmptyHandle(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))

	_, err := client.OpenSession(context.Background(), "default", nil)
	assert.True(t, errors.IsCode(err, errors.CodeGateway))
}

func TestClient_SessionAlive(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions/alive" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors": ["session not found"]}`))
	}))

	assert.NoError(t, client.SessionAlive(context.Background(), "alive"))
	err := client.SessionAlive(context.Background(), "dead")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestClient_SubmitStatement(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sh-1/statements", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SELECT 1", body["statement"])
		assert.Equal(t, float64(60000), body["executionTimeout"])
		json.NewEncoder(w).Encode(map[string]string{"operationHandle": "op-1"})
	}))

	op, err := client.SubmitStatement(context.Background(), "sh-1", "SELECT 1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "op-1", op)
}

func TestClient_FetchResults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sh-1/operations/op-1/result/0", r.URL.Path)
		w.Write([]byte(`{
			"resultType": "PAYLOAD",
			"isQueryResult": false,
			"results": {"columns": [{"name": "v", "logicalType": "INT"}], "data": [[1]]}
		}`))
	}))

	result, err := client.FetchResults(context.Background(), "sh-1", "op-1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.ResultTypePayload, result.ResultType)
	require.NotNil(t, result.Results)
	assert.Len(t, result.Results.Data, 1)
}

func TestClient_CancelAndClose(t *testing.T) {
	var calls []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
	}))

	require.NoError(t, client.CancelOperation(context.Background(), "sh-1", "op-1"))
	require.NoError(t, client.CloseOperation(context.Background(), "sh-1", "op-1"))

	assert.Equal(t, []string{
		"POST /sessions/sh-1/operations/op-1/cancel",
		"DELETE /sessions/sh-1/operations/op-1/close",
	}, calls)
}

func TestClient_TransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zerolog.Nop())
	err := client.SessionAlive(context.Background(), "sh-1")
	assert.True(t, errors.IsTransport(err))
}

func TestClient_ClassifiesErrorBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors": ["Internal server error.", "<Exception on server side:\njava.lang.RuntimeException: top\nCaused by: java.io.IOException: root cause\nEnd of exception on server side>"]}`))
	}))

	err := client.SessionAlive(context.Background(), "sh-1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "root cause"))
	assert.False(t, errors.IsTransport(err))
}

func TestClient_SetBaseURL(t *testing.T) {
	client := NewClient("http://old.example/", zerolog.Nop())
	assert.Equal(t, "http://old.example", client.BaseURL())
	client.SetBaseURL("http://new.example/v1/")
	assert.Equal(t, "http://new.example/v1", client.BaseURL())
}

func TestClient_ContextCancellation(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := client.SessionAlive(ctx, "sh-1")
	assert.True(t, errors.IsCanceled(err))
}
