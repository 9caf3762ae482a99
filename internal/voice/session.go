// Package voice maintains a WebSocket session with the ElevenLabs
// conversational agent used for voice mode.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "wss://api.elevenlabs.io"

// Config configures an agent session.
type Config struct {
	AgentID string
	APIKey  string
	// BaseURL overrides the agent endpoint, mainly for tests.
	BaseURL          string
	HandshakeTimeout time.Duration
}

// Callbacks receive agent traffic. Nil callbacks are skipped. Each callback
// runs on the session's read goroutine, so handlers must not block.
type Callbacks struct {
	OnTranscript func(text string)
	OnResponse   func(text string)
	OnAudio      func(b64 string)
	OnClose      func(err error)
}

// agentMessage is the wire format both directions: a type tag plus the
// fields that type uses.
type agentMessage struct {
	Type string `json:"type"`

	UserTranscript struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`
	AgentResponse struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`
	Audio struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int    `json:"event_id"`
	} `json:"audio_event,omitempty"`
	Ping struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

// Session is one live agent conversation.
type Session struct {
	mu        sync.Mutex
	cfg       Config
	callbacks Callbacks
	conn      *websocket.Conn
	done      chan struct{}
}

// NewSession builds a disconnected session.
func NewSession(cfg Config, callbacks Callbacks) *Session {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Session{cfg: cfg, callbacks: callbacks}
}

// Connect dials the agent and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil // Already connected
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	url := s.cfg.BaseURL + "/v1/convai/conversation?agent_id=" + s.cfg.AgentID

	var header map[string][]string
	if s.cfg.APIKey != "" {
		header = map[string][]string{"Xi-Api-Key": {s.cfg.APIKey}}
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("voice agent dial: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})

	go s.readLoop(conn, s.done)
	return nil
}

// SendText sends a typed user message into the voice conversation.
func (s *Session) SendText(text string) error {
	return s.writeJSON(map[string]any{
		"type": "user_message",
		"text": text,
	})
}

// SendAudio streams one base64 PCM chunk from the microphone.
func (s *Session) SendAudio(b64 string) error {
	return s.writeJSON(map[string]any{
		"user_audio_chunk": b64,
	})
}

func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("voice session not connected")
	}
	return s.conn.WriteJSON(v)
}

// Close ends the conversation with a normal closure frame.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	close(s.done)

	err := s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close voice session: %w", err)
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Close() already tore the connection down.
				return
			default:
			}
			if s.callbacks.OnClose != nil {
				s.callbacks.OnClose(err)
			}
			return
		}

		var msg agentMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[Voice] Dropping unparseable agent message: %v", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg agentMessage) {
	switch msg.Type {
	case "user_transcript":
		if s.callbacks.OnTranscript != nil {
			s.callbacks.OnTranscript(msg.UserTranscript.Text)
		}
	case "agent_response":
		if s.callbacks.OnResponse != nil {
			s.callbacks.OnResponse(msg.AgentResponse.Text)
		}
	case "audio":
		if s.callbacks.OnAudio != nil {
			s.callbacks.OnAudio(msg.Audio.AudioBase64)
		}
	case "ping":
		// The agent expects a pong echoing the event id to keep the
		// conversation alive.
		if err := s.writeJSON(map[string]any{
			"type":     "pong",
			"event_id": msg.Ping.EventID,
		}); err != nil {
			log.Printf("[Voice] Failed to answer ping: %v", err)
		}
	}
}
