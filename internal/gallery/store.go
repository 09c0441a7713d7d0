package gallery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ErrNoSession is returned for unknown or expired session ids.
var ErrNoSession = errors.New("session not found")

// Store keeps sessions in memory and closes them once idle for the TTL.
type Store struct {
	deps     *Deps
	folder   string
	sessions *cache.Cache
}

// NewStore creates a Store whose new sessions start on folder.
func NewStore(deps *Deps, folder string, ttl time.Duration) *Store {
	c := cache.New(ttl, ttl/2+time.Second)
	c.OnEvicted(func(id string, v interface{}) {
		deps.Log.WithField("session", id).Debug("session expired")
		v.(*Session).Close()
	})
	return &Store{deps: deps, folder: folder, sessions: c}
}

// Create starts a new session and lists its folder in the background.
func (st *Store) Create() *Session {
	s := NewSession(uuid.NewString(), st.folder, st.deps)
	st.sessions.SetDefault(s.ID, s)
	st.deps.Log.WithField("session", s.ID).Info("session created")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Refresh(ctx)
	}()
	return s
}

// Get returns the session with id and extends its lifetime. A session closed
// by an eviction that raced with an earlier Get is dropped.
func (st *Store) Get(id string) (*Session, error) {
	v, ok := st.sessions.Get(id)
	if !ok {
		return nil, ErrNoSession
	}
	s := v.(*Session)
	if s.Closed() {
		st.sessions.Delete(id)
		return nil, ErrNoSession
	}
	st.sessions.SetDefault(id, s)
	return s, nil
}

// GetOrCreate returns the session with id, or a new one if it is unknown.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, err := st.Get(id); err == nil {
			return s, false
		}
	}
	return st.Create(), true
}

// ModelChanged reschedules inference on every live session.
func (st *Store) ModelChanged() {
	for _, item := range st.sessions.Items() {
		item.Object.(*Session).ModelChanged()
	}
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	return st.sessions.ItemCount()
}

// Close ends every session. Deleting runs the eviction hook, which closes it.
func (st *Store) Close() {
	for id := range st.sessions.Items() {
		st.sessions.Delete(id)
	}
}
