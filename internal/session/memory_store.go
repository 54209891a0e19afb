package session

import (
	"context"
	"sync"
	"time"

	"ideabox/internal/utils"
)

// MemoryStore keeps sessions in a bounded LRU. Used when REDIS_URL is unset.
type MemoryStore struct {
	mu     sync.Mutex
	cache  *utils.TTLCache[string, Session]
	byUser map[uint]map[string]struct{}
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := utils.NewTTLCache[string, Session](size, 0)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c, byUser: make(map[uint]map[string]struct{})}, nil
}

func (s *MemoryStore) Save(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.SetWithTTL(sess.ID, sess, time.Until(sess.ExpiresAt))
	if s.byUser[sess.UserID] == nil {
		s.byUser[sess.UserID] = make(map[string]struct{})
	}
	s.byUser[sess.UserID][sess.ID] = struct{}{}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache.Get(id); ok {
		delete(s.byUser[sess.UserID], id)
		if len(s.byUser[sess.UserID]) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	s.cache.Delete(id)
	return nil
}

func (s *MemoryStore) RevokeUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.byUser[userID] {
		s.cache.Delete(id)
	}
	delete(s.byUser, userID)
	return nil
}
