package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/ojachat/ojachat/internal/api/middleware"
	"github.com/ojachat/ojachat/internal/voice"
)

// SessionDialer opens a connected voice session. Indirected so tests can
// substitute a fake agent.
type SessionDialer func(ctx context.Context, callbacks voice.Callbacks) (VoiceSession, error)

// VoiceSession is the slice of voice.Session the handlers use.
type VoiceSession interface {
	SendText(text string) error
	SendAudio(b64 string) error
	Close() error
}

// NewSessionDialer wires the real agent config into a SessionDialer.
func NewSessionDialer(cfg voice.Config) SessionDialer {
	return func(ctx context.Context, callbacks voice.Callbacks) (VoiceSession, error) {
		s := voice.NewSession(cfg, callbacks)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// VoiceHandlers exposes voice mode: one agent conversation per user, with
// transcripts mirrored into the user's chat session log through the same
// gated send path as typed messages.
type VoiceHandlers struct {
	dial   SessionDialer
	states *StateRegistry
	chat   *Handlers

	mu       sync.Mutex
	sessions map[string]VoiceSession
}

func NewVoiceHandlers(dial SessionDialer, states *StateRegistry, chat *Handlers) *VoiceHandlers {
	return &VoiceHandlers{
		dial:     dial,
		states:   states,
		chat:     chat,
		sessions: make(map[string]VoiceSession),
	}
}

// Start opens a voice conversation for the user. An existing conversation is
// closed first.
func (v *VoiceHandlers) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	state, err := v.states.For(userID)
	if err != nil {
		respondError(w, "internal error", http.StatusInternalServerError)
		return
	}

	chatLog := state.Chat
	callbacks := voice.Callbacks{
		OnTranscript: func(text string) {
			// Voice turns are gated and metered exactly like typed
			// ones. Dispatched off the session read goroutine: the
			// send can block in retries and must not stall ping
			// handling.
			go func() {
				if _, err := v.chat.gatedChatSend(context.Background(), userID, chatLog, text); err != nil {
					log.Printf("[Voice] Transcript for %s not relayed: %v", userID, err)
				}
			}()
		},
		OnClose: func(err error) {
			log.Printf("[Voice] Agent session for %s ended: %v", userID, err)
			v.drop(userID)
		},
	}

	session, err := v.dial(r.Context(), callbacks)
	if err != nil {
		respondError(w, "voice agent unavailable", http.StatusBadGateway)
		return
	}

	v.mu.Lock()
	if old, ok := v.sessions[userID]; ok {
		old.Close()
	}
	v.sessions[userID] = session
	v.mu.Unlock()

	respondJSON(w, http.StatusCreated, map[string]string{"status": "connected"})
}

// Send pushes a text or audio frame into the user's live conversation.
func (v *VoiceHandlers) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	v.mu.Lock()
	session, ok := v.sessions[userID]
	v.mu.Unlock()
	if !ok {
		respondError(w, "no voice session", http.StatusConflict)
		return
	}

	var req struct {
		Text        string `json:"text,omitempty"`
		AudioBase64 string `json:"audio_base64,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var sendErr error
	switch {
	case req.Text != "":
		sendErr = session.SendText(req.Text)
	case req.AudioBase64 != "":
		sendErr = session.SendAudio(req.AudioBase64)
	default:
		respondError(w, "text or audio_base64 required", http.StatusBadRequest)
		return
	}
	if sendErr != nil {
		respondError(w, sendErr.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Stop closes the user's conversation.
func (v *VoiceHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	v.mu.Lock()
	session, ok := v.sessions[userID]
	delete(v.sessions, userID)
	v.mu.Unlock()

	if ok {
		session.Close()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *VoiceHandlers) drop(userID string) {
	v.mu.Lock()
	delete(v.sessions, userID)
	v.mu.Unlock()
}
