package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/pairpad/internal/config"
	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/logging"
	"github.com/michaelbrown/pairpad/internal/protocol"
	"github.com/michaelbrown/pairpad/internal/session"
	"github.com/michaelbrown/pairpad/internal/storage"
	"github.com/michaelbrown/pairpad/internal/storage/sqlite"
)

type testServer struct {
	*Server
	http     *httptest.Server
	sessions *session.MemoryStore
	journal  *sqlite.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logging.Discard()
	cfg := config.Default()
	cfg.Runtime.Timeout = 2 * time.Second

	engine, err := execution.FromConfig(cfg.Runtime, log)
	require.NoError(t, err)

	journal, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	sessions := session.NewMemoryStore()
	srv := New(cfg, sessions, engine, journal, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})

	return &testServer{Server: srv, http: ts, sessions: sessions, journal: journal}
}

func (ts *testServer) createSession(t *testing.T) session.Session {
	t.Helper()
	resp, err := http.Post(ts.http.URL+"/api/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sess session.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	return sess
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(protocol.MustEnvelope(event, data, "")))
}

func recv(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env protocol.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func join(t *testing.T, ws *websocket.Conn, id string) session.Session {
	t.Helper()
	send(t, ws, protocol.EventJoinSession, id)
	env := recv(t, ws)
	require.Equal(t, protocol.EventSessionData, env.Event)
	var snap session.Session
	require.NoError(t, env.Decode(&snap))
	return snap
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestCreateSessionDefaults(t *testing.T) {
	ts := newTestServer(t)

	sess := ts.createSession(t)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, session.LanguageJavaScript, sess.Language)
	assert.Equal(t, "// Start coding here\nconsole.log(\"Hello World\");", sess.Code)
	assert.Empty(t, sess.Output)

	other := ts.createSession(t)
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestGetSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, err := http.Get(ts.http.URL + "/api/session/" + sess.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got session.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, sess, got)
}

func TestGetSessionNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/session/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Session not found"}`, string(body))
}

func TestExecuteEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.http.URL+"/api/execute", "application/json",
		strings.NewReader(`{"language":"python","code":"print(6 * 7)","sessionId":"s1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res protocol.ExecutionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "42", res.Output)
	assert.False(t, res.Failed)

	runs, err := ts.journal.ListRuns(context.Background(), storage.RunListOptions{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "print(6 * 7)", runs[0].Source)
}

func TestExecuteEndpointErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown language", `{"language":"ruby","code":"puts 1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.http.URL+"/api/execute", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	for _, code := range []string{"1", "2", "3"} {
		resp, err := http.Post(ts.http.URL+"/api/execute", "application/json",
			strings.NewReader(`{"language":"javascript","code":"`+code+`","sessionId":"`+sess.ID+`"}`))
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.http.URL + "/api/session/" + sess.ID + "/runs?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var runs []storage.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "3", runs[0].Source)
}

func TestSPAFallback(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/session/abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>pairpad</title>")
}

func TestWebSocketJoinUnknown(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)

	send(t, ws, protocol.EventJoinSession, "nope")
	env := recv(t, ws)

	var msg string
	require.NoError(t, env.Decode(&msg))
	assert.Equal(t, protocol.EventError, env.Event)
	assert.Equal(t, protocol.MsgSessionNotFound, msg)
	assert.Equal(t, 0, ts.sessions.Len())
}

func TestWebSocketCollaboration(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	a, b := ts.dial(t), ts.dial(t)
	join(t, a, sess.ID)
	join(t, b, sess.ID)

	send(t, a, protocol.EventCodeChange, protocol.CodeChange{SessionID: sess.ID, Code: "let x = 1"})

	env := recv(t, b)
	assert.Equal(t, protocol.EventCodeUpdate, env.Event)
	var code string
	require.NoError(t, env.Decode(&code))
	assert.Equal(t, "let x = 1", code)
	assert.NotEmpty(t, env.Origin)

	// A late joiner sees the current state.
	c := ts.dial(t)
	snap := join(t, c, sess.ID)
	assert.Equal(t, "let x = 1", snap.Code)
}

func TestWebSocketExecuteRepliesToSenderOnly(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	a, b := ts.dial(t), ts.dial(t)
	join(t, a, sess.ID)
	join(t, b, sess.ID)

	send(t, a, protocol.EventExecute, protocol.ExecuteRequest{SessionID: sess.ID, Language: "javascript", Code: `console.log(40 + 2)`})

	env := recv(t, a)
	require.Equal(t, protocol.EventExecutionResult, env.Event)
	var res protocol.ExecutionResult
	require.NoError(t, env.Decode(&res))
	assert.Equal(t, "42", res.Output)

	// The requester shares the output; b only ever sees that.
	send(t, a, protocol.EventOutputChange, protocol.OutputChange{SessionID: sess.ID, Output: res.Output})
	env = recv(t, b)
	assert.Equal(t, protocol.EventOutputUpdate, env.Event)

	got, _ := ts.sessions.Get(sess.ID)
	assert.Equal(t, "42", got.Output)
}

func TestWebSocketExecuteErrorCarriesRunID(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	a := ts.dial(t)
	join(t, a, sess.ID)

	send(t, a, protocol.EventExecute, protocol.ExecuteRequest{SessionID: sess.ID, Language: "ruby", Code: "puts 1", RunID: "r1"})

	env := recv(t, a)
	require.Equal(t, protocol.EventExecutionResult, env.Event)
	var res protocol.ExecutionResult
	require.NoError(t, env.Decode(&res))
	assert.Equal(t, "r1", res.RunID)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Error, "unsupported language")
}

func TestWebSocketInvalidFrame(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := recv(t, ws)
	assert.Equal(t, protocol.EventError, env.Event)

	// The connection survives.
	send(t, ws, protocol.EventJoinSession, "nope")
	assert.Equal(t, protocol.EventError, recv(t, ws).Event)
}

func TestWebSocketDisconnectLeavesRoom(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	ws := ts.dial(t)
	join(t, ws, sess.ID)
	require.Equal(t, 1, ts.Hub().RoomSize(sess.ID))

	ws.Close()
	assert.Eventually(t, func() bool { return ts.Hub().RoomSize(sess.ID) == 0 }, 2*time.Second, 10*time.Millisecond)

	// Session state outlives its participants.
	_, ok := ts.sessions.Get(sess.ID)
	assert.True(t, ok)
}

func TestSweeperEvictsIdleSessions(t *testing.T) {
	log := logging.Discard()
	cfg := config.Default()
	cfg.Session.IdleTTL = 20 * time.Millisecond
	cfg.Session.SweepInterval = 10 * time.Millisecond

	engine, err := execution.FromConfig(cfg.Runtime, log)
	require.NoError(t, err)

	sessions := session.NewMemoryStore(session.WithIdleTTL(cfg.Session.IdleTTL))
	srv := New(cfg, sessions, engine, nil, log)
	sessions.Create("idle")

	srv.StartSweeper()
	defer srv.Shutdown(context.Background())

	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
