package localstore

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is bumped whenever the shape of a persisted snapshot changes.
// Snapshots written under a different version are discarded on load.
const SchemaVersion = 1

var ErrStale = errors.New("snapshot is older than current state")

// Envelope wraps every persisted snapshot with versioning metadata so that
// concurrent writers can be reconciled by last-write-wins on UpdatedAt.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Data          json.RawMessage `json:"data"`
}

// Store persists JSON snapshots under named keys in a directory, one file
// per key. Writes are atomic (temp file + rename). Watchers registered for a
// key are notified after every successful save so in-memory holders of the
// same key can merge or invalidate.
type Store struct {
	dir string

	mu       sync.Mutex
	lastSeen map[string]time.Time // key -> UpdatedAt of last write/load
	watchers map[string][]chan Envelope
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dir:      dir,
		lastSeen: make(map[string]time.Time),
		watchers: make(map[string][]chan Envelope),
	}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Save marshals v into a versioned envelope and writes it atomically.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	env := Envelope{
		SchemaVersion: SchemaVersion,
		UpdatedAt:     time.Now(),
		Data:          data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return err
	}
	s.lastSeen[key] = env.UpdatedAt
	s.notify(key, env)
	return nil
}

// Load reads the snapshot for key into v. A missing file, unparseable
// content, or a schema version mismatch all result in (false, nil): the
// snapshot is discarded rather than surfaced as a hard failure.
func (s *Store) Load(key string, v any) (bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[LocalStore] Discarding corrupt snapshot %q: %v", key, err)
		return false, nil
	}
	if env.SchemaVersion != SchemaVersion {
		log.Printf("[LocalStore] Discarding snapshot %q: schema version %d, want %d",
			key, env.SchemaVersion, SchemaVersion)
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Printf("[LocalStore] Discarding corrupt snapshot %q: %v", key, err)
		return false, nil
	}

	s.mu.Lock()
	s.lastSeen[key] = env.UpdatedAt
	s.mu.Unlock()
	return true, nil
}

// LoadNewer is Load restricted to snapshots written after since. It returns
// ErrStale when the stored snapshot is not newer, so callers holding live
// state keep their copy on a last-write-wins basis.
func (s *Store) LoadNewer(key string, since time.Time, v any) (bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.SchemaVersion != SchemaVersion {
		return false, nil
	}
	if !env.UpdatedAt.After(since) {
		return false, ErrStale
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, nil
	}

	s.mu.Lock()
	s.lastSeen[key] = env.UpdatedAt
	s.mu.Unlock()
	return true, nil
}

// Watch returns a channel receiving the envelope of every save to key.
// Slow receivers are skipped rather than blocking the writer.
func (s *Store) Watch(key string) <-chan Envelope {
	ch := make(chan Envelope, 4)
	s.mu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify(key string, env Envelope) {
	for _, ch := range s.watchers[key] {
		select {
		case ch <- env:
		default:
		}
	}
}
