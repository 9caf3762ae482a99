package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// agentServer fakes the conversational agent endpoint.
type agentServer struct {
	mu       sync.Mutex
	received []map[string]any
	script   []string // messages pushed to the client on connect
	agentID  string
	apiKey   string
}

func (a *agentServer) handler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.agentID = r.URL.Query().Get("agent_id")
	a.apiKey = r.Header.Get("Xi-Api-Key")
	script := a.script
	a.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, msg := range script {
		conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		a.mu.Lock()
		a.received = append(a.received, msg)
		a.mu.Unlock()
	}
}

func newAgentSession(t *testing.T, srv *agentServer, callbacks Callbacks) *Session {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	s := NewSession(Config{
		AgentID: "agent-1",
		APIKey:  "xi-key",
		BaseURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}, callbacks)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnect_SendsCredentials(t *testing.T) {
	srv := &agentServer{}
	s := newAgentSession(t, srv, Callbacks{})

	require.NoError(t, s.Connect(context.Background()))

	assert.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.agentID == "agent-1" && srv.apiKey == "xi-key"
	}, time.Second, 10*time.Millisecond)
}

func TestTranscriptAndResponseCallbacks(t *testing.T) {
	srv := &agentServer{script: []string{
		`{"type":"user_transcript","user_transcription_event":{"user_transcript":"two pairs of sneakers"}}`,
		`{"type":"agent_response","agent_response_event":{"agent_response":"Adding them to your cart."}}`,
		`{"type":"audio","audio_event":{"audio_base_64":"UklGRg==","event_id":1}}`,
	}}

	var mu sync.Mutex
	var transcript, response, audio string
	s := newAgentSession(t, srv, Callbacks{
		OnTranscript: func(text string) { mu.Lock(); transcript = text; mu.Unlock() },
		OnResponse:   func(text string) { mu.Lock(); response = text; mu.Unlock() },
		OnAudio:      func(b64 string) { mu.Lock(); audio = b64; mu.Unlock() },
	})

	require.NoError(t, s.Connect(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return transcript == "two pairs of sneakers" &&
			response == "Adding them to your cart." &&
			audio == "UklGRg=="
	}, time.Second, 10*time.Millisecond)
}

func TestPingAnsweredWithPong(t *testing.T) {
	srv := &agentServer{script: []string{
		`{"type":"ping","ping_event":{"event_id":7}}`,
	}}
	s := newAgentSession(t, srv, Callbacks{})

	require.NoError(t, s.Connect(context.Background()))

	assert.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		for _, msg := range srv.received {
			if msg["type"] == "pong" && msg["event_id"] == float64(7) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestSendTextAndAudio(t *testing.T) {
	srv := &agentServer{}
	s := newAgentSession(t, srv, Callbacks{})

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.SendText("do you have this in red?"))
	require.NoError(t, s.SendAudio("cGNtZGF0YQ=="))

	assert.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.received) == 2
	}, time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "user_message", srv.received[0]["type"])
	assert.Equal(t, "do you have this in red?", srv.received[0]["text"])
	assert.Equal(t, "cGNtZGF0YQ==", srv.received[1]["user_audio_chunk"])
}

func TestSendBeforeConnect(t *testing.T) {
	s := NewSession(Config{AgentID: "agent-1"}, Callbacks{})
	assert.Error(t, s.SendText("hello"))
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := &agentServer{}
	s := newAgentSession(t, srv, Callbacks{})

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestServerDisconnectInvokesOnClose(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close() // drop immediately
	}))
	t.Cleanup(ts.Close)

	closed := make(chan error, 1)
	s := NewSession(Config{
		AgentID: "agent-1",
		BaseURL: "ws" + strings.TrimPrefix(ts.URL, "http"),
	}, Callbacks{
		OnClose: func(err error) { closed <- err },
	})

	require.NoError(t, s.Connect(context.Background()))

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("OnClose not invoked after server disconnect")
	}
}

func TestUnparseableMessageSkipped(t *testing.T) {
	srv := &agentServer{script: []string{
		`not json at all`,
		`{"type":"agent_response","agent_response_event":{"agent_response":"still alive"}}`,
	}}

	got := make(chan string, 1)
	s := newAgentSession(t, srv, Callbacks{
		OnResponse: func(text string) { got <- text },
	})
	require.NoError(t, s.Connect(context.Background()))

	select {
	case text := <-got:
		assert.Equal(t, "still alive", text)
	case <-time.After(time.Second):
		t.Fatal("read loop did not survive garbage message")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	// The wire struct must tolerate partial payloads.
	var msg agentMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","ping_event":{"event_id":3}}`), &msg))
	assert.Equal(t, 3, msg.Ping.EventID)
	assert.Empty(t, msg.AgentResponse.Text)
}
