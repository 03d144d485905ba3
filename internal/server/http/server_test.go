package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/runtime"
	queuesvc "github.com/quillmq/quill/internal/services/queues"
	"github.com/quillmq/quill/pkg/log"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := log.New(log.WithWriter(io.Discard))
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Config: config.Default(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	srv := New(rt, queuesvc.New(rt, config.Default(), logger), logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var res map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/v1/healthz", &res))
	assert.Equal(t, "ok", res["status"])
}

func TestQueueEndpoints(t *testing.T) {
	ts := newTestServer(t)

	code := postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "orders"}, nil)
	require.Equal(t, http.StatusCreated, code)

	code = postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "bad name!"}, nil)
	require.Equal(t, http.StatusBadRequest, code)

	// re-create with a differing configuration
	code = postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "orders", VisibilityTimeoutMs: 60_000}, nil)
	require.Equal(t, http.StatusConflict, code)

	var list struct {
		Queues []queuesvc.QueueAttributes `json:"queues"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/v1/queues", &list))
	require.Len(t, list.Queues, 1)
	assert.Equal(t, "orders", list.Queues[0].Config.Name)

	var attrs queuesvc.QueueAttributes
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/v1/queues/attributes?name=orders", &attrs))
	assert.Equal(t, "orders", attrs.Config.Name)
	require.Equal(t, http.StatusNotFound, getJSON(t, ts, "/v1/queues/attributes?name=missing", nil))

	require.Equal(t, http.StatusNoContent, postJSON(t, ts, "/v1/queues/purge", map[string]string{"name": "orders"}, nil))
	require.Equal(t, http.StatusNoContent, postJSON(t, ts, "/v1/queues/delete", map[string]string{"name": "orders"}, nil))
	require.Equal(t, http.StatusNotFound, postJSON(t, ts, "/v1/queues/delete", map[string]string{"name": "orders"}, nil))
}

func TestMessageRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "orders"}, nil))

	var sent queuesvc.SendResult
	code := postJSON(t, ts, "/v1/messages/send", queuesvc.SendRequest{
		Queue:     "orders",
		SendEntry: queuesvc.SendEntry{Body: "hello"},
	}, &sent)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, sent.ID)

	var recv struct {
		Messages []queuesvc.ReceivedMessage `json:"messages"`
	}
	code = postJSON(t, ts, "/v1/messages/receive", queuesvc.ReceiveRequest{Queue: "orders", Max: 10}, &recv)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, recv.Messages, 1)
	assert.Equal(t, sent.ID, recv.Messages[0].ID)
	assert.Equal(t, "hello", recv.Messages[0].Body)

	code = postJSON(t, ts, "/v1/messages/delete", queuesvc.DeleteRequest{
		Queue:         "orders",
		ReceiptHandle: recv.Messages[0].ReceiptHandle,
	}, nil)
	require.Equal(t, http.StatusNoContent, code)

	// stale receipt maps to 400
	code = postJSON(t, ts, "/v1/messages/delete", queuesvc.DeleteRequest{
		Queue:         "orders",
		ReceiptHandle: recv.Messages[0].ReceiptHandle,
	}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "work"}, nil))

	// unknown queue
	code := postJSON(t, ts, "/v1/messages/send", queuesvc.SendRequest{
		Queue:     "missing",
		SendEntry: queuesvc.SendEntry{Body: "x"},
	}, nil)
	require.Equal(t, http.StatusNotFound, code)

	// empty body
	code = postJSON(t, ts, "/v1/messages/send", queuesvc.SendRequest{Queue: "work"}, nil)
	require.Equal(t, http.StatusBadRequest, code)

	// oversized batch
	entries := make([]queuesvc.SendEntry, 11)
	for i := range entries {
		entries[i] = queuesvc.SendEntry{Body: "x"}
	}
	code = postJSON(t, ts, "/v1/messages/send-batch", queuesvc.SendBatchRequest{Queue: "work", Entries: entries}, nil)
	require.Equal(t, http.StatusBadRequest, code)

	// change-visibility with an unknown receipt
	code = postJSON(t, ts, "/v1/messages/change-visibility", queuesvc.ChangeVisibilityRequest{
		Queue:         "work",
		ReceiptHandle: "bogus",
	}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestDeleteQueueConflict(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "work-dlq"}, nil))

	var req queuesvc.CreateQueueRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "work",
		"redrive": {"targetQueue": "work-dlq", "maxReceiveCount": 3}
	}`), &req))
	require.Equal(t, http.StatusCreated, postJSON(t, ts, "/v1/queues/create", req, nil))

	code := postJSON(t, ts, "/v1/queues/delete", map[string]string{"name": "work-dlq"}, nil)
	require.Equal(t, http.StatusConflict, code)
}

func TestPeekEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		postJSON(t, ts, "/v1/queues/create", queuesvc.CreateQueueRequest{Name: "orders"}, nil))
	postJSON(t, ts, "/v1/messages/send", queuesvc.SendRequest{
		Queue:     "orders",
		SendEntry: queuesvc.SendEntry{Body: "visible"},
	}, nil)

	var peeked struct {
		Messages []queuesvc.ReceivedMessage `json:"messages"`
	}
	code := postJSON(t, ts, "/v1/messages/peek", queuesvc.PeekRequest{Queue: "orders"}, &peeked)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, peeked.Messages, 1)
	assert.Empty(t, peeked.Messages[0].ReceiptHandle)
}
