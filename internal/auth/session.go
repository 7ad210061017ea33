package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// Session errors.
var (
	// ErrSessionNotFound indicates the session was not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession indicates the session is missing required fields.
	ErrInvalidSession = errors.New("invalid session")
)

// DefaultSessionDuration is the default session lifetime.
const DefaultSessionDuration = 24 * time.Hour

// SessionIDLength is the number of random bytes used for session IDs.
const SessionIDLength = 32

// Session binds a browser to an authenticated principal. The access token is
// held server-side only; it authorizes profile-store calls on the
// principal's behalf and never reaches the client.
type Session struct {
	ID          string            `json:"id"`
	Principal   Principal         `json:"principal"`
	AccessToken string            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewSession creates a session with a cryptographically random ID.
func NewSession(principal Principal, accessToken string, duration time.Duration, metadata map[string]string) (*Session, error) {
	if !principal.Valid() {
		return nil, ErrInvalidSession
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}

	idBytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Session{
		ID:          hex.EncodeToString(idBytes),
		Principal:   principal,
		AccessToken: accessToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(duration),
		Metadata:    metadata,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsValid returns true if the session is not expired and carries a principal.
func (s *Session) IsValid() bool {
	return s.ID != "" && s.Principal.Valid() && !s.IsExpired()
}

// SessionStore defines the interface for session persistence.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by its ID. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by its ID.
	Delete(ctx context.Context, id string) error

	// DeleteBySubject removes all sessions for a principal.
	DeleteBySubject(ctx context.Context, subject string) error

	// Cleanup removes expired sessions and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)
}

// MemorySessionStore is an in-memory SessionStore. Thread-safe; suitable for
// development and single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// subjectIndex maps principal subject to session IDs.
	subjectIndex map[string]map[string]struct{}
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:     make(map[string]*Session),
		subjectIndex: make(map[string]map[string]struct{}),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" || !session.Principal.Valid() {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp

	subject := session.Principal.Subject
	if s.subjectIndex[subject] == nil {
		s.subjectIndex[subject] = make(map[string]struct{})
	}
	s.subjectIndex[subject][session.ID] = struct{}{}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *MemorySessionStore) DeleteBySubject(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.subjectIndex[subject] {
		delete(s.sessions, id)
	}
	delete(s.subjectIndex, subject)
	return nil
}

func (s *MemorySessionStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySessionStore) deleteLocked(id string) {
	session, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)

	subject := session.Principal.Subject
	if idx := s.subjectIndex[subject]; idx != nil {
		delete(idx, id)
		if len(idx) == 0 {
			delete(s.subjectIndex, subject)
		}
	}
}
