package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/idebridge/host"
	"github.com/viant/idebridge/pending"
)

const testToken = "test-token"

type recordingHost struct {
	invocations chan *host.ToolInvocation
	mux         sync.Mutex
	changes     []bool
}

func (h *recordingHost) OnToolCall(ctx context.Context, invocation *host.ToolInvocation) {
	h.invocations <- invocation
}

func (h *recordingHost) OnConnectionChanged(connected bool) {
	h.mux.Lock()
	defer h.mux.Unlock()
	h.changes = append(h.changes, connected)
}

func (h *recordingHost) connectionChanges() []bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	return append([]bool(nil), h.changes...)
}

func newTestServer(t *testing.T, options ...Option) (*Server, *httptest.Server, *recordingHost) {
	t.Helper()
	aHost := &recordingHost{invocations: make(chan *host.ToolInvocation, 64)}
	options = append([]Option{
		WithHost(aHost),
		WithPingInterval(50 * time.Millisecond),
		WithSSEWatchInterval(20 * time.Millisecond),
	}, options...)
	srv, err := New(options...)
	require.NoError(t, err)
	srv.token = testToken
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ts, aHost
}

func dial(ts *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set(AuthHeader, token)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", header)
}

func mustDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(ts, testToken)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(message)))
}

func receive(t *testing.T, conn *websocket.Conn) *testResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return decodeResponse(t, data)
}

func nextInvocation(t *testing.T, aHost *recordingHost) *host.ToolInvocation {
	t.Helper()
	select {
	case invocation := <-aHost.invocations:
		return invocation
	case <-time.After(3 * time.Second):
		t.Fatal("no tool invocation")
		return nil
	}
}

func TestServer_WebSocketSession(t *testing.T) {
	srv, ts, aHost := newTestServer(t)
	conn := mustDial(t, ts)

	send(t, conn, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"cli","version":"1"}}}`)
	response := receive(t, conn)
	assert.Equal(t, `1`, string(response.Id))
	assert.JSONEq(t, `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"aiTerm","version":"0.1"}}`, string(response.Result))

	send(t, conn, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	send(t, conn, `{"jsonrpc":"2.0","id":"list","method":"tools/list"}`)
	response = receive(t, conn)
	assert.Equal(t, `"list"`, string(response.Id))
	var listed struct {
		Tools []json.RawMessage `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(response.Result, &listed))
	assert.Len(t, listed.Tools, 10)

	send(t, conn, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"getOpenEditors","arguments":{}}}`)
	invocation := nextInvocation(t, aHost)
	assert.Equal(t, "getOpenEditors", invocation.Tool)
	require.NoError(t, srv.Respond(invocation.CallID, json.RawMessage(`[]`)))
	response = receive(t, conn)
	assert.Equal(t, `3`, string(response.Id))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"[]"}]}`, string(response.Result))
	assert.ErrorIs(t, srv.Respond(invocation.CallID, json.RawMessage(`[]`)), pending.ErrNotFound)

	send(t, conn, `{"jsonrpc":"2.0","id":4,"method":"foo/bar"}`)
	response = receive(t, conn)
	require.NotNil(t, response.Error)
	assert.Equal(t, "Method not found: foo/bar", response.Error.Message)
}

func TestServer_WebSocketMalformedDropped(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := mustDial(t, ts)
	send(t, conn, `not json`)
	send(t, conn, `{"jsonrpc":"2.0","method":"unknown/notification"}`)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"jsonrpc":"2.0","id":8,"method":"ping"}`)))
	send(t, conn, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	response := receive(t, conn)
	assert.Equal(t, `9`, string(response.Id))
	assert.JSONEq(t, `{}`, string(response.Result))
}

func TestServer_ConcurrentToolCalls(t *testing.T) {
	srv, ts, aHost := newTestServer(t)
	conn := mustDial(t, ts)
	const count = 8
	for i := 1; i <= count; i++ {
		send(t, conn, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"getDiagnostics","arguments":{"n":%d}}}`, i, i))
	}
	var invocations []*host.ToolInvocation
	for i := 0; i < count; i++ {
		invocations = append(invocations, nextInvocation(t, aHost))
	}
	assert.Equal(t, count, srv.pending.Len())
	// resolve in reverse arrival order, each result names its request
	for i := len(invocations) - 1; i >= 0; i-- {
		var arguments struct {
			N int `json:"n"`
		}
		require.NoError(t, json.Unmarshal(invocations[i].Arguments, &arguments))
		require.NoError(t, srv.Respond(invocations[i].CallID, json.RawMessage(fmt.Sprintf(`{"n":%d}`, arguments.N))))
	}
	seen := map[string]bool{}
	for i := 0; i < count; i++ {
		response := receive(t, conn)
		require.Nil(t, response.Error)
		var result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		require.NoError(t, json.Unmarshal(response.Result, &result))
		require.Len(t, result.Content, 1)
		assert.Equal(t, fmt.Sprintf(`{"n":%s}`, response.Id), result.Content[0].Text)
		seen[string(response.Id)] = true
	}
	assert.Len(t, seen, count)
	assert.Equal(t, 0, srv.pending.Len())
}

func TestServer_ToolTimeout(t *testing.T) {
	srv, ts, aHost := newTestServer(t, WithToolTimeout(50*time.Millisecond))
	conn := mustDial(t, ts)
	send(t, conn, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"openDiff","arguments":{}}}`)
	invocation := nextInvocation(t, aHost)
	response := receive(t, conn)
	require.NotNil(t, response.Error)
	assert.Equal(t, "Tool response timeout", response.Error.Message)
	assert.ErrorIs(t, srv.Respond(invocation.CallID, json.RawMessage(`{}`)), pending.ErrNotFound)
}

func TestServer_Unauthorized(t *testing.T) {
	var testCases = []struct {
		description string
		token       string
	}{
		{description: "wrong token", token: "wrong"},
		{description: "missing token", token: ""},
	}
	for _, testCase := range testCases {
		srv, ts, aHost := newTestServer(t)
		conn, response, err := dial(ts, testCase.token)
		if conn != nil {
			_ = conn.Close()
		}
		assert.ErrorIs(t, err, websocket.ErrBadHandshake, testCase.description)
		require.NotNil(t, response, testCase.description)
		assert.Equal(t, http.StatusUnauthorized, response.StatusCode, testCase.description)
		assert.Equal(t, 0, srv.Sessions(), testCase.description)
		assert.Empty(t, aHost.connectionChanges(), testCase.description)

		for _, path := range []string{"/sse", "/message?sessionId=x"} {
			method := http.MethodGet
			if strings.HasPrefix(path, "/message") {
				method = http.MethodPost
			}
			request, err := http.NewRequest(method, ts.URL+path, strings.NewReader(`{}`))
			require.NoError(t, err)
			if testCase.token != "" {
				request.Header.Set(AuthHeader, testCase.token)
			}
			httpResponse, err := http.DefaultClient.Do(request)
			require.NoError(t, err)
			_ = httpResponse.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, httpResponse.StatusCode, testCase.description+" "+path)
		}
		assert.Empty(t, aHost.connectionChanges(), testCase.description)
	}
}

func TestServer_ForeignOrigin(t *testing.T) {
	_, ts, _ := newTestServer(t)
	header := http.Header{}
	header.Set(AuthHeader, testToken)
	header.Set("Origin", "https://evil.example.com")
	_, response, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", header)
	assert.Error(t, err)
	require.NotNil(t, response)
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestServer_ConnectionChanges(t *testing.T) {
	srv, ts, aHost := newTestServer(t)
	changed := func(count int) func() bool {
		return func() bool { return len(aHost.connectionChanges()) == count }
	}
	first := mustDial(t, ts)
	assert.Eventually(t, changed(1), 3*time.Second, 10*time.Millisecond)
	second := mustDial(t, ts)
	assert.Eventually(t, changed(2), 3*time.Second, 10*time.Millisecond)
	assert.True(t, srv.Connected())
	assert.Equal(t, 2, srv.Sessions())

	_ = second.Close()
	assert.Eventually(t, func() bool { return srv.Sessions() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, srv.Connected())
	assert.Len(t, aHost.connectionChanges(), 2, "closing one of two sessions is not reported")
	_ = first.Close()
	assert.Eventually(t, changed(3), 3*time.Second, 10*time.Millisecond)
	assert.False(t, srv.Connected())
	assert.Equal(t, []bool{true, true, false}, aHost.connectionChanges())
}

func TestServer_NotifyTargetsLatestSession(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	assert.NoError(t, srv.Notify(json.RawMessage(`{"jsonrpc":"2.0","method":"selection_changed"}`)))

	first := mustDial(t, ts)
	assert.Eventually(t, func() bool { return srv.Sessions() == 1 }, 3*time.Second, 10*time.Millisecond)
	second := mustDial(t, ts)
	assert.Eventually(t, func() bool { return srv.Sessions() == 2 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Notify(json.RawMessage(`{"jsonrpc": "2.0", "method": "selection_changed", "params": {"n": 1}}`)))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","method":"selection_changed","params":{"n":1}}`, string(data))

	_ = second.Close()
	assert.Eventually(t, func() bool { return srv.Sessions() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, srv.Notify(json.RawMessage(`{"jsonrpc":"2.0","method":"selection_changed"}`)))
	require.NoError(t, first.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err = first.ReadMessage()
	assert.Error(t, err, "closed target is not replaced by an older session")

	assert.Error(t, srv.Notify(json.RawMessage(`{broken`)))
}

func TestServer_ShutdownCancelsPending(t *testing.T) {
	srv, ts, aHost := newTestServer(t)
	conn := mustDial(t, ts)
	send(t, conn, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"openDiff","arguments":{}}}`)
	nextInvocation(t, aHost)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 0, srv.pending.Len())
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 3*time.Second, 10*time.Millisecond)
}

type sseStream struct {
	reader *bufio.Reader
	cancel context.CancelFunc
}

func openSSE(t *testing.T, ts *httptest.Server) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse", nil)
	require.NoError(t, err)
	request.Header.Set(AuthHeader, testToken)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))
	stream := &sseStream{reader: bufio.NewReader(response.Body), cancel: cancel}
	t.Cleanup(func() {
		cancel()
		_ = response.Body.Close()
	})
	return stream
}

// next returns the next data payload, skipping comments, event names and separators
func (s *sseStream) next(t *testing.T) string {
	t.Helper()
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := s.reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "stream ended")
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("no sse data")
		return ""
	}
}

func postMessage(ts *httptest.Server, endpoint, body string) (int, error) {
	request, err := http.NewRequest(http.MethodPost, ts.URL+endpoint, strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	request.Header.Set(AuthHeader, testToken)
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return 0, err
	}
	_ = response.Body.Close()
	return response.StatusCode, nil
}

func post(t *testing.T, ts *httptest.Server, endpoint, body string) int {
	t.Helper()
	status, err := postMessage(ts, endpoint, body)
	require.NoError(t, err)
	return status
}

// postAsync posts a message whose reply waits on the host
func postAsync(ts *httptest.Server, endpoint, body string) <-chan int {
	status := make(chan int, 1)
	go func() {
		code, _ := postMessage(ts, endpoint, body)
		status <- code
	}()
	return status
}

func TestServer_SSESession(t *testing.T) {
	srv, ts, aHost := newTestServer(t, WithPingInterval(time.Hour))
	stream := openSSE(t, ts)
	endpoint := stream.next(t)
	require.True(t, strings.HasPrefix(endpoint, "/message?sessionId="), endpoint)
	assert.Eventually(t, func() bool { return srv.Sessions() == 1 }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusAccepted, post(t, ts, endpoint, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"cli","version":"1"}}}`))
	response := decodeResponse(t, []byte(stream.next(t)))
	assert.Equal(t, `1`, string(response.Id))
	assert.Contains(t, string(response.Result), `"2024-11-05"`)

	status := postAsync(ts, endpoint, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"getWorkspaceFolders"}}`)
	invocation := nextInvocation(t, aHost)
	require.NoError(t, srv.Respond(invocation.CallID, json.RawMessage(`{"folders":["/w"]}`)))
	response = decodeResponse(t, []byte(stream.next(t)))
	assert.Equal(t, `2`, string(response.Id))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"{\"folders\":[\"/w\"]}"}]}`, string(response.Result))
	assert.Equal(t, http.StatusAccepted, <-status)

	assert.Equal(t, http.StatusAccepted, post(t, ts, endpoint, `{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, srv.Notify(json.RawMessage(`{"jsonrpc":"2.0","method":"at_mentioned","params":{"filePath":"/w/a.go"}}`)))
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"at_mentioned","params":{"filePath":"/w/a.go"}}`, stream.next(t))
	assert.Error(t, srv.Notify(json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{}}`)), "stream pushes must name a method")

	assert.Equal(t, http.StatusNotFound, post(t, ts, "/message?sessionId=unknown", `{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	assert.Equal(t, http.StatusNotFound, post(t, ts, "/message", `{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	assert.Equal(t, 1, srv.Sessions(), "posts without a session do not open one")

	stream.cancel()
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusNotFound, post(t, ts, endpoint, `{"jsonrpc":"2.0","id":3,"method":"ping"}`))
	assert.Equal(t, []bool{true, false}, aHost.connectionChanges())
}

func TestServer_SSESessionShutdown(t *testing.T) {
	srv, ts, aHost := newTestServer(t, WithSSEWatchInterval(time.Hour))
	stream := openSSE(t, ts)
	stream.next(t)
	assert.Eventually(t, func() bool { return srv.Sessions() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 0, srv.Sessions())
	assert.Equal(t, []bool{true, false}, aHost.connectionChanges())
}

func TestServer_SharedIdsStayWithTheirSession(t *testing.T) {
	srv, ts, aHost := newTestServer(t, WithPingInterval(time.Hour))
	conn := mustDial(t, ts)
	stream := openSSE(t, ts)
	endpoint := stream.next(t)
	assert.Eventually(t, func() bool { return srv.Sessions() == 2 }, 3*time.Second, 10*time.Millisecond)

	send(t, conn, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"getDiagnostics","arguments":{"from":"ws"}}}`)
	status := postAsync(ts, endpoint, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"getDiagnostics","arguments":{"from":"sse"}}}`)
	calls := map[string]string{}
	for i := 0; i < 2; i++ {
		invocation := nextInvocation(t, aHost)
		var arguments struct {
			From string `json:"from"`
		}
		require.NoError(t, json.Unmarshal(invocation.Arguments, &arguments))
		calls[arguments.From] = invocation.CallID
	}
	require.Len(t, calls, 2)

	// resolved in reverse order of arrival
	require.NoError(t, srv.Respond(calls["sse"], json.RawMessage(`"sse result"`)))
	require.NoError(t, srv.Respond(calls["ws"], json.RawMessage(`"ws result"`)))

	fromStream := decodeResponse(t, []byte(stream.next(t)))
	assert.Equal(t, `7`, string(fromStream.Id))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"\"sse result\""}]}`, string(fromStream.Result))
	fromSocket := receive(t, conn)
	assert.Equal(t, `7`, string(fromSocket.Id))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"\"ws result\""}]}`, string(fromSocket.Result))
	assert.Equal(t, http.StatusAccepted, <-status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "the socket gets exactly one reply")
}

func TestServer_SSEKeepalive(t *testing.T) {
	_, ts, _ := newTestServer(t)
	stream := openSSE(t, ts)
	stream.next(t)
	deadline := time.After(3 * time.Second)
	for {
		lineCh := make(chan string, 1)
		go func() {
			line, _ := stream.reader.ReadString('\n')
			lineCh <- line
		}()
		select {
		case line := <-lineCh:
			if strings.HasPrefix(line, ":") {
				return
			}
		case <-deadline:
			t.Fatal("no keepalive comment")
		}
	}
}
