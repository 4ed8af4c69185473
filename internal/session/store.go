package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store keeps sessions in memory and drops them after ttl of inactivity.
type Store struct {
	cache *cache.Cache
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := cache.New(ttl, ttl/6)
	// Expired sessions take their temp image with them.
	c.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*Session); ok {
			_ = s.Clear()
		}
	})
	return &Store{cache: c}
}

func (st *Store) Create() *Session {
	s := newSession(uuid.NewString())
	st.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s
}

// Get returns the session and refreshes its expiry.
func (st *Store) Get(id string) (*Session, bool) {
	x, found := st.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	st.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Delete removes the session and its temp image.
func (st *Store) Delete(id string) bool {
	if _, found := st.cache.Get(id); !found {
		return false
	}
	st.cache.Delete(id)
	return true
}

func (st *Store) Count() int {
	return st.cache.ItemCount()
}
