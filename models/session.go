package models

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/tilestream/tiles"
	"github.com/google/uuid"
)

// Stats is a snapshot of the streaming state of a session.
type Stats struct {
	CurrentTile  tiles.ID   `json:"current_tile"`
	ActiveTiles  []tiles.ID `json:"active_tiles"`
	Pending      int        `json:"pending"`
	TilesEntered int        `json:"tiles_entered"`
	Contacts     int        `json:"contacts"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session represents the streaming session of a connected client.
type Session struct {
	ID          uint32
	SessionUUID string

	// The session id unique across servers. Set when the session is added to
	// a store.
	GlobalID string

	ClientID  string
	Variant   string
	CreatedAt time.Time

	statsMutex sync.RWMutex
	stats      Stats

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(id uint32, variant string) *Session {
	return &Session{
		ID:          id,
		SessionUUID: uuid.New().String(),
		Variant:     variant,
		CreatedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// Close marks the session as closed. It is safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done returns a channel that is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// UpdateStats applies f to the session stats.
func (s *Session) UpdateStats(f func(*Stats)) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()

	f(&s.stats)
	s.stats.UpdatedAt = time.Now()
}

// Stats returns a copy of the session stats.
func (s *Session) Stats() Stats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()

	stats := s.stats
	stats.ActiveTiles = append([]tiles.ID(nil), s.stats.ActiveTiles...)
	return stats
}

// SessionInfo describes a session for listing purposes.
type SessionInfo struct {
	ID          string    `json:"id"`
	SessionUUID string    `json:"session_uuid"`
	ClientID    string    `json:"client_id,omitempty"`
	Variant     string    `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
	Stats       Stats     `json:"stats"`
}

type SessionStore struct {
	// The id attributed to the current server. Used to build global session
	// ids.
	ServerID string

	initOnce sync.Once
	mutex    sync.RWMutex
	sessions map[string]*Session
	ids      SequentialIDGenerator
}

func (s *SessionStore) init() {
	s.sessions = map[string]*Session{}

	if s.ServerID == "" {
		s.ServerID = "tile"
	}
}

func (s *SessionStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SessionStore) Add(ctx context.Context, session *Session) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session.GlobalID = s.GlobalSessionID(session.ID)
	s.sessions[session.GlobalID] = session

	instrumentIncreaseSessionGauge(session.Variant)
	instrumentCountSession(session.Variant)
	return nil
}

func (s *SessionStore) Remove(ctx context.Context, session *Session) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.GlobalSessionID(session.ID)
	if _, ok := s.sessions[id]; !ok {
		return
	}

	delete(s.sessions, id)
	session.Close()

	s.ids.Reuse(session.ID)

	instrumentDecreaseSessionGauge(session.Variant)
}

func (s *SessionStore) GetByGlobalID(v string) (*Session, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[v]
	return session, ok
}

func (s *SessionStore) Len() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.sessions)
}

// List returns the stored sessions ordered by id.
func (s *SessionStore) List() []*Session {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mutex.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// Info returns a description of every stored session.
func (s *SessionStore) Info() []SessionInfo {
	sessions := s.List()

	infos := make([]SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = SessionInfo{
			ID:          session.GlobalID,
			SessionUUID: session.SessionUUID,
			ClientID:    session.ClientID,
			Variant:     session.Variant,
			CreatedAt:   session.CreatedAt,
			Stats:       session.Stats(),
		}
	}
	return infos
}

func (s *SessionStore) GlobalSessionID(sessionID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, sessionID)
}
