// Package chat keeps the local history of conversations with the shopping
// assistant: titled sessions, append-only messages, and the send path to the
// chat relay.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojachat/ojachat/internal/relay"
)

const (
	// MaxSessions caps the session list; the oldest by timestamp is
	// evicted when a new session would exceed it.
	MaxSessions = 50
	// TitleMaxLen is how much of the first message becomes the title.
	TitleMaxLen = 40

	snapshotKey = "chatSessions"
	sendRetries = 2
	retryDelay  = time.Second

	// RetryAction is the action carried by the fallback message's button.
	RetryAction = "retry_send"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSuperseded      = errors.New("send superseded by a newer action")
	ErrEmptyMessage    = errors.New("message text is required")
	// ErrRelayUnavailable accompanies the fallback message when every
	// relay attempt failed; callers can tell fallback from a real reply.
	ErrRelayUnavailable = errors.New("relay unavailable")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content is what a message carries: text plus optional structured extras
// surfaced by the assistant.
type Content struct {
	Text          string               `json:"text"`
	Products      []relay.Product      `json:"products,omitempty"`
	ActionButtons []relay.ActionButton `json:"actionButtons,omitempty"`
	RichComponent string               `json:"richComponent,omitempty"`
}

type Message struct {
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one titled conversation. Messages are append-only; Timestamp
// tracks the last update and drives eviction order.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender performs one relay call. The log owns the retry policy.
type Sender interface {
	Send(ctx context.Context, sessionID, text string) (*relay.Reply, error)
}

// Persister is the slice of the local snapshot store the log needs.
type Persister interface {
	Save(key string, v any) error
	Load(key string, v any) (bool, error)
}

// Log is the chat session container for one user. Each send captures the
// generation current at its start; a reply resolving under a stale
// generation — the user started a new chat meanwhile — is discarded.
type Log struct {
	sender  Sender
	persist Persister

	gen atomic.Uint64

	mu       sync.Mutex
	sessions []*Session
	activeID string

	// sleep is swapped out in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLog(sender Sender, persist Persister) *Log {
	l := &Log{
		sender:  sender,
		persist: persist,
		sleep:   sleepCtx,
	}
	if persist != nil {
		var sessions []*Session
		if ok, err := persist.Load(snapshotKey, &sessions); err != nil {
			log.Printf("[Chat] Failed to load session snapshot: %v", err)
		} else if ok {
			l.sessions = sessions
		}
	}
	return l
}

// NewSession starts a fresh conversation and makes it active. Any send still
// in flight for the previous session is superseded.
func (l *Log) NewSession() *Session {
	l.gen.Add(1)

	now := time.Now()
	session := &Session{
		ID:        fmt.Sprintf("session-%d", now.UnixNano()),
		Title:     "New chat",
		Timestamp: now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sessions = append(l.sessions, session)
	l.evictLocked()
	l.activeID = session.ID
	l.persistLocked()
	return session
}

// SwitchSession makes an existing session active.
func (l *Log) SwitchSession(id string) error {
	l.gen.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.findLocked(id) == nil {
		return ErrNoActiveSession
	}
	l.activeID = id
	return nil
}

// ActiveSession returns a copy of the active session.
func (l *Log) ActiveSession() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.findLocked(l.activeID)
	if s == nil {
		return Session{}, false
	}
	return copySession(s), true
}

// Sessions returns copies of all sessions.
func (l *Log) Sessions() []Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, copySession(s))
	}
	return out
}

// SendMessage appends the user message, persists, and performs the relay
// call with bounded retry: the initial attempt plus two retries a fixed
// second apart. When every attempt fails, exactly one fallback assistant
// message carrying a retry action is appended and returned together with
// ErrRelayUnavailable, and the send stops.
func (l *Log) SendMessage(ctx context.Context, text string) (*Message, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}

	gen := l.gen.Load()

	l.mu.Lock()
	session := l.findLocked(l.activeID)
	if session == nil {
		l.mu.Unlock()
		l.NewSession()
		gen = l.gen.Load()
		l.mu.Lock()
		session = l.findLocked(l.activeID)
	}
	sessionID := session.ID

	now := time.Now()
	session.Messages = append(session.Messages, Message{
		Role:      RoleUser,
		Content:   Content{Text: text},
		Timestamp: now,
	})
	if session.Title == "New chat" || session.Title == "" {
		session.Title = truncateTitle(text)
	}
	session.Timestamp = now
	l.persistLocked()
	l.mu.Unlock()

	reply, err := l.sendWithRetry(ctx, sessionID, text)
	if err != nil {
		log.Printf("[Chat] Send to session %s failed after %d attempts: %v", sessionID, sendRetries+1, err)
		msg, aerr := l.appendAssistant(gen, sessionID, fallbackContent())
		if aerr != nil {
			return nil, aerr
		}
		return msg, ErrRelayUnavailable
	}

	return l.appendAssistant(gen, sessionID, Content{
		Text:          reply.Text,
		Products:      reply.Products,
		ActionButtons: reply.ActionButtons,
		RichComponent: reply.RichComponent,
	})
}

func (l *Log) sendWithRetry(ctx context.Context, sessionID, text string) (*relay.Reply, error) {
	var lastErr error
	for attempt := 0; attempt <= sendRetries; attempt++ {
		if attempt > 0 {
			if err := l.sleep(ctx, retryDelay); err != nil {
				return nil, err
			}
		}
		reply, err := l.sender.Send(ctx, sessionID, text)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// appendAssistant appends an assistant message unless the send was
// superseded while the relay call ran.
func (l *Log) appendAssistant(gen uint64, sessionID string, content Content) (*Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen.Load() {
		log.Printf("[Chat] Discarding late reply for session %s", sessionID)
		return nil, ErrSuperseded
	}
	session := l.findLocked(sessionID)
	if session == nil {
		return nil, ErrSuperseded
	}

	msg := Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	session.Messages = append(session.Messages, msg)
	session.Timestamp = msg.Timestamp
	l.persistLocked()
	return &msg, nil
}

func fallbackContent() Content {
	return Content{
		Text: "Sorry, I couldn't reach the assistant. Please try again.",
		ActionButtons: []relay.ActionButton{
			{Label: "Retry", Action: RetryAction},
		},
	}
}

func (l *Log) findLocked(id string) *Session {
	for _, s := range l.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// evictLocked drops the oldest sessions by timestamp until the cap holds.
func (l *Log) evictLocked() {
	for len(l.sessions) > MaxSessions {
		oldest := 0
		for i, s := range l.sessions {
			if s.Timestamp.Before(l.sessions[oldest].Timestamp) {
				oldest = i
			}
		}
		if l.sessions[oldest].ID == l.activeID {
			l.activeID = ""
		}
		l.sessions = append(l.sessions[:oldest], l.sessions[oldest+1:]...)
	}
}

func (l *Log) persistLocked() {
	if l.persist == nil {
		return
	}
	if err := l.persist.Save(snapshotKey, l.sessions); err != nil {
		log.Printf("[Chat] Failed to persist sessions: %v", err)
	}
}

func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxLen {
		return text
	}
	return string(runes[:TitleMaxLen])
}

func copySession(s *Session) Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return cp
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
