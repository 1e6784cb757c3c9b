package session

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store keeps sessions in memory and expires them after a period of inactivity.
type Store struct {
	cache *ttlcache.Cache[string, *Session]
}

// NewStore creates a store whose sessions expire ttl after their last use.
//
// Call [Store.Start] to run the background eviction loop and [Store.Stop] to end it.
func NewStore(ttl time.Duration) *Store {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Session](ttl),
	)
	return &Store{cache: cache}
}

func (s *Store) Start() { go s.cache.Start() }

func (s *Store) Stop() { s.cache.Stop() }

// Create registers a new empty session.
func (s *Store) Create() *Session {
	sess := New()
	s.cache.Set(sess.ID(), sess, ttlcache.DefaultTTL)
	return sess
}

// Get returns a live session and extends its expiry.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *Store) Delete(id string) { s.cache.Delete(id) }

func (s *Store) Len() int { return s.cache.Len() }
