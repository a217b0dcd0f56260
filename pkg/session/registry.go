package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raka/paceline/pkg/agent"
)

const (
	// DefaultIdleAge is how long a session may sit unused before the
	// eviction sweep reclaims it.
	DefaultIdleAge = 2 * time.Hour

	// DefaultMaxSessions caps the registry. When full, the least recently
	// used session is evicted to admit a new key.
	DefaultMaxSessions = 200

	sweepInterval = 10 * time.Minute
)

// Factory builds a fresh agent session for a key.
type Factory func(key string) (*agent.Session, error)

type entry struct {
	session  *agent.Session
	lastUsed time.Time
}

// Registry hands out one agent session per key. Lookups refresh the key's
// last-used time; a background sweep evicts idle entries.
type Registry struct {
	mu          sync.Mutex
	factory     Factory
	sessions    map[string]*entry
	idleAge     time.Duration
	maxSessions int

	stopCh  chan struct{}
	running bool
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory Factory, idleAge time.Duration, maxSessions int) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if idleAge <= 0 {
		idleAge = DefaultIdleAge
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	return &Registry{
		factory:     factory,
		sessions:    make(map[string]*entry),
		idleAge:     idleAge,
		maxSessions: maxSessions,
		stopCh:      make(chan struct{}),
	}, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

// GetOrCreate returns the session for key, building it on first use.
// Creation and lookup happen under one lock, so two racing callers on the
// same key end up sharing a single session.
func (r *Registry) GetOrCreate(key string) (*agent.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[key]; ok {
		e.lastUsed = time.Now()
		return e.session, nil
	}

	if len(r.sessions) >= r.maxSessions {
		r.evictOldestLocked()
	}

	s, err := r.factory(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %q: %w", key, err)
	}

	r.sessions[key] = &entry{session: s, lastUsed: time.Now()}
	log.Debug().Str("session_key", key).Int("active", len(r.sessions)).Msg("Session created")

	return s, nil
}

// Clear empties the conversation history for key. The session itself stays
// registered, so its identity and last usage record survive the clear.
func (r *Registry) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[key]; ok {
		e.session.ClearHistory()
		log.Debug().Str("session_key", key).Msg("Session history cleared")
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Keys lists the keys of live sessions.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}

// evictOldestLocked removes the least recently used entry. Caller holds mu.
func (r *Registry) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for k, e := range r.sessions {
		if oldestKey == "" || e.lastUsed.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastUsed
		}
	}
	if oldestKey != "" {
		delete(r.sessions, oldestKey)
		log.Info().Str("session_key", oldestKey).Msg("Session evicted (registry full)")
	}
}

// EvictIdle removes every session idle for longer than the configured age
// and returns how many were removed.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.idleAge)
	evicted := 0
	for k, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(r.sessions, k)
			evicted++
			log.Debug().Str("session_key", k).Msg("Session evicted (idle)")
		}
	}

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int("active", len(r.sessions)).Msg("Idle session sweep")
	}
	return evicted
}

// Start launches the background idle sweep.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("registry sweep is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	go r.run(r.stopCh)

	log.Info().Dur("idle_age", r.idleAge).Msg("Session registry sweep started")
	return nil
}

// Stop halts the background sweep.
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("registry sweep is not running")
	}
	close(r.stopCh)
	r.running = false

	log.Info().Msg("Session registry sweep stopped")
	return nil
}

func (r *Registry) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvictIdle()
		case <-stopCh:
			return
		}
	}
}
