package rebalance

import (
	"context"
	"sync"

	"github.com/trogers1052/positions-dashboard/internal/models"
	"golang.org/x/sync/singleflight"
)

// Sessions keeps one loaded Session per user
type Sessions struct {
	store     Store
	publisher Publisher

	mu       sync.Mutex
	sessions map[string]*Session
	loading  singleflight.Group
}

// NewSessions creates an empty registry; publisher may be nil
func NewSessions(store Store, publisher Publisher) *Sessions {
	return &Sessions{
		store:     store,
		publisher: publisher,
		sessions:  make(map[string]*Session),
	}
}

type loadedSession struct {
	session  *Session
	settings []*models.RebalanceSettings
	fresh    bool
}

// Get returns the session of userID, creating and loading it on first use.
// A session whose initial load fails is not kept.
func (s *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	loaded, err := s.get(ctx, userID)
	return loaded.session, err
}

// List returns every stored setting of userID, reloading an already known session
func (s *Sessions) List(ctx context.Context, userID string) ([]*models.RebalanceSettings, error) {
	loaded, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loaded.fresh {
		return loaded.settings, nil
	}
	return loaded.session.Load(ctx)
}

// get reports fresh when the session was loaded by this call or a call it waited on
func (s *Sessions) get(ctx context.Context, userID string) (loadedSession, error) {
	if userID == "" {
		return loadedSession{}, ErrNoUser
	}
	if session, ok := s.lookup(userID); ok {
		return loadedSession{session: session}, nil
	}

	v, err, _ := s.loading.Do(userID, func() (interface{}, error) {
		if session, ok := s.lookup(userID); ok {
			return &loadedSession{session: session}, nil
		}

		session := NewSession(userID, s.store, s.publisher)
		settings, err := session.Load(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.sessions[userID] = session
		s.mu.Unlock()
		return &loadedSession{session: session, settings: settings, fresh: true}, nil
	})
	if err != nil {
		return loadedSession{}, err
	}
	return *v.(*loadedSession), nil
}

func (s *Sessions) lookup(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// Drop forgets the session of userID; the next Get reloads it
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
