package controlapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burncloud-aria2/internal/audit"
	"burncloud-aria2/internal/facade"
	"burncloud-aria2/internal/rpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFacadeWithFakeEngine stands up a minimal aria2-compatible RPC
// server and returns a Facade bound to it, reusing the shape of the
// engine fake in the facade package's own tests.
func newFacadeWithFakeEngine(t *testing.T) *facade.Facade {
	t.Helper()
	gids := map[string]map[string]interface{}{}
	nextGID := 0

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
			ID     string        `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var result interface{}
		switch req.Method {
		case "aria2.addUri":
			nextGID++
			gid := strconv.Itoa(nextGID)
			gids[gid] = map[string]interface{}{"gid": gid, "status": "active"}
			result = gid
		case "aria2.tellStatus":
			result = gids[req.Params[1].(string)]
		case "aria2.tellActive":
			var active []map[string]interface{}
			for _, s := range gids {
				active = append(active, s)
			}
			result = active
		case "aria2.tellWaiting", "aria2.tellStopped":
			result = []map[string]interface{}{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(engine.Close)

	u, err := url.Parse(engine.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := rpc.New(u.Hostname(), port, "secret", engine.Client(), testLogger())
	return facade.New(client, &http.Client{Timeout: 5 * time.Second})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	f := newFacadeWithFakeEngine(t)
	auditLogger := audit.New(t.TempDir(), testLogger())
	t.Cleanup(auditLogger.Close)
	return New(f, auditLogger, "test-token")
}

func authedRequest(method, path string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.RemoteAddr = "127.0.0.1:54321"
	r.Header.Set("X-BurnCloud-Token", "test-token")
	return r
}

func TestAddDownloadRequiresValidToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/downloads", bytes.NewReader([]byte(`{"url":"http://x/f.zip","target_path":"/tmp/f.zip"}`)))
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("X-BurnCloud-Token", "wrong-token")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAddDownloadRejectsNonLoopback(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/downloads", bytes.NewReader([]byte(`{"url":"http://x/f.zip","target_path":"/tmp/f.zip"}`)))
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-BurnCloud-Token", "test-token")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddDownloadAndRetrieve(t *testing.T) {
	s := newTestServer(t)

	addReq := authedRequest(http.MethodPost, "/v1/downloads", []byte(`{"url":"http://example.com/f.zip","target_path":"/tmp/dl/f.zip"}`))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, addReq)
	require.Equal(t, http.StatusOK, w.Code)

	var addResp addDownloadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&addResp))
	require.NotEmpty(t, addResp.TaskID)

	getReq := authedRequest(http.MethodGet, "/v1/downloads/"+addResp.TaskID, nil)
	w2 := httptest.NewRecorder()
	s.router.ServeHTTP(w2, getReq)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestStatusEndpointReportsActiveCount(t *testing.T) {
	s := newTestServer(t)

	req := authedRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 0, body["active_downloads"])
}

func TestControlEndpointRejectsUnknownAction(t *testing.T) {
	s := newTestServer(t)

	addReq := authedRequest(http.MethodPost, "/v1/downloads", []byte(`{"url":"http://example.com/f.zip","target_path":"/tmp/dl/f.zip"}`))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, addReq)
	var addResp addDownloadResponse
	json.NewDecoder(w.Body).Decode(&addResp)

	controlReq := authedRequest(http.MethodPost, "/v1/downloads/"+addResp.TaskID+"/control", []byte(`{"action":"bogus"}`))
	w2 := httptest.NewRecorder()
	s.router.ServeHTTP(w2, controlReq)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

