package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Wyydra/peercall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	status  domain.Status
	logs    []domain.LogEntry
	err     error
	target  domain.PeerID
	called  []string
	limitIn int
}

func (f *fakeCalls) Status(ctx context.Context) (domain.Status, error) {
	return f.status, nil
}

func (f *fakeCalls) Logs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	f.limitIn = limit
	return f.logs, nil
}

func (f *fakeCalls) StartCall(ctx context.Context, target domain.PeerID) error {
	f.called = append(f.called, "start")
	f.target = target
	return f.err
}

func (f *fakeCalls) EndCall(ctx context.Context) error {
	f.called = append(f.called, "end")
	return f.err
}

func (f *fakeCalls) AnswerPending(ctx context.Context) error {
	f.called = append(f.called, "answer")
	return f.err
}

func (f *fakeCalls) RejectPending(ctx context.Context) error {
	f.called = append(f.called, "reject")
	return f.err
}

func (f *fakeCalls) Reconnect(ctx context.Context) error {
	f.called = append(f.called, "reconnect")
	return f.err
}

func newTestRouter(t *testing.T, calls *fakeCalls) (http.Handler, *ws.Hub) {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return NewHandler(calls, hub, "").NewRouter(), hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	calls := &fakeCalls{status: domain.Status{PeerID: "me", SignalingConnected: true}.Derive()}
	h, _ := newTestRouter(t, calls)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.PeerID("me"), got.PeerID)
	assert.True(t, got.CanCall)
}

func TestGetID(t *testing.T) {
	calls := &fakeCalls{status: domain.Status{PeerID: "abc123"}}
	h, _ := newTestRouter(t, calls)

	rec := do(t, h, http.MethodGet, "/api/id", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())

	calls.status = domain.Status{}
	rec = do(t, h, http.MethodGet, "/api/id", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetLogs(t *testing.T) {
	calls := &fakeCalls{}
	h, _ := newTestRouter(t, calls)

	rec := do(t, h, http.MethodGet, "/api/logs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, calls.limitIn)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/logs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartCall(t *testing.T) {
	calls := &fakeCalls{}
	h, _ := newTestRouter(t, calls)

	rec := do(t, h, http.MethodPost, "/api/calls", `{"target":"friend"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, domain.PeerID("friend"), calls.target)

	rec = do(t, h, http.MethodPost, "/api/calls", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperationErrorsMapToStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"in progress", domain.ErrCallInProgress, http.StatusConflict},
		{"self", domain.ErrSelfCall, http.StatusBadRequest},
		{"empty target", domain.ErrInvalidTarget, http.StatusBadRequest},
		{"not connected", domain.ErrNotConnected, http.StatusServiceUnavailable},
		{"closed", domain.ErrClosed, http.StatusServiceUnavailable},
		{"no pending", domain.ErrNoPendingCall, http.StatusNotFound},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &fakeCalls{err: tt.err}
			h, _ := newTestRouter(t, calls)

			rec := do(t, h, http.MethodPost, "/api/calls", `{"target":"x"}`)
			assert.Equal(t, tt.code, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestCallRoutes(t *testing.T) {
	calls := &fakeCalls{}
	h, _ := newTestRouter(t, calls)

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodDelete, "/api/calls/current", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/calls/pending/answer", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/api/calls/pending", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/reconnect", "").Code)

	assert.Equal(t, []string{"end", "answer", "reject", "reconnect"}, calls.called)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>peercall</h1>"), 0o644))

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	h := NewHandler(&fakeCalls{}, hub, dir).NewRouter()

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "peercall")
}

func TestServeWSStreamsStatus(t *testing.T) {
	h, hub := newTestRouter(t, &fakeCalls{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration is asynchronous; publishing after a status was replayed
	// or broadcast both end up on this connection
	require.NoError(t, hub.PublishStatus(context.Background(), domain.Status{PeerID: "me"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ws.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ws.EventStatus, ev.Event)
	require.NotNil(t, ev.Status)
	assert.Equal(t, domain.PeerID("me"), ev.Status.PeerID)
}
