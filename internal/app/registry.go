package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

type StoreConfig struct {
	// TTL bounds how long cached offers and candidates are replayed and how
	// long an idle session survives the sweeper.
	TTL time.Duration
	// MaxCandidatesPerSender caps the candidate list per sender; the oldest
	// are evicted first. Zero means unbounded.
	MaxCandidatesPerSender int
}

type storedEntry struct {
	To        domain.ClientID
	Payload   json.RawMessage
	CreatedAt time.Time
}

type clientState struct {
	channel      core.Channel
	offer        *storedEntry
	candidates   []storedEntry
	lastActivity time.Time
}

// Session is the per-session state. Its exported methods must only be called
// from inside Store.Do, which holds the session lock.
type Session struct {
	id  domain.SessionID
	cfg StoreConfig

	mu      sync.Mutex
	purged  bool
	clients map[domain.ClientID]*clientState
	// first-seen order of identities, replay follows it
	order []domain.ClientID
}

type bindKey struct {
	session domain.SessionID
	client  domain.ClientID
}

// Store owns every session. The session map and the channel index have their
// own locks and are never held while waiting for a session lock.
type Store struct {
	cfg     StoreConfig
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[domain.SessionID]*Session

	chMu  sync.Mutex
	bound map[core.Channel]bindKey
}

func NewStore(cfg StoreConfig, m *metrics.Metrics) *Store {
	return &Store{
		cfg:      cfg,
		metrics:  m,
		sessions: make(map[domain.SessionID]*Session),
		bound:    make(map[core.Channel]bindKey),
	}
}

func (st *Store) TTL() time.Duration { return st.cfg.TTL }

// Do runs fn with the session lock held, creating the session on first use.
// A session purged between lookup and lock is replaced by a fresh one.
func (st *Store) Do(sid domain.SessionID, fn func(*Session)) {
	for {
		st.mu.Lock()
		s, ok := st.sessions[sid]
		if !ok {
			s = newSession(sid, st.cfg)
			st.sessions[sid] = s
			log.Debug().Str("module", "app.registry").Str("session", string(sid)).Msg("created session")
		}
		st.mu.Unlock()

		s.mu.Lock()
		if s.purged {
			s.mu.Unlock()
			continue
		}
		fn(s)
		s.mu.Unlock()
		return
	}
}

func (st *Store) doExisting(sid domain.SessionID, fn func(*Session)) bool {
	st.mu.Lock()
	s, ok := st.sessions[sid]
	st.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purged {
		return false
	}
	fn(s)
	return true
}

// Bind installs ch as the active channel of (sid, id) and stamps activity.
// It returns the channel it replaced, if any; the caller does not close it.
// A channel holds one binding at a time, binding elsewhere moves it.
func (st *Store) Bind(sid domain.SessionID, id domain.ClientID, ch core.Channel, now time.Time) core.Channel {
	return st.BindDo(sid, id, ch, now, nil)
}

// BindDo binds like Bind and then runs fn under the same session lock, so
// nothing can observe the session between the bind and fn.
func (st *Store) BindDo(sid domain.SessionID, id domain.ClientID, ch core.Channel, now time.Time, fn func(*Session)) core.Channel {
	key := bindKey{session: sid, client: id}
	var (
		prev  core.Channel
		moved bool
		old   bindKey
	)
	st.Do(sid, func(s *Session) {
		prev = s.bind(id, ch, now)

		st.chMu.Lock()
		if k, ok := st.bound[ch]; ok && k != key {
			old, moved = k, true
		}
		st.bound[ch] = key
		if prev != nil && prev != ch && st.bound[prev] == key {
			delete(st.bound, prev)
		}
		st.chMu.Unlock()

		if fn != nil {
			fn(s)
		}
	})
	if moved {
		st.doExisting(old.session, func(s *Session) { s.unbind(old.client, ch) })
		log.Debug().Str("module", "app.registry").Str("conn", ch.ID()).
			Str("from_session", string(old.session)).Str("to_session", string(sid)).Msg("moved binding")
	}
	if prev == ch {
		return nil
	}
	return prev
}

// Unbind removes ch's binding, but only while ch is still the active channel
// of its identity. Cached offers and candidates stay.
func (st *Store) Unbind(ch core.Channel) bool {
	st.chMu.Lock()
	key, ok := st.bound[ch]
	if ok {
		delete(st.bound, ch)
	}
	st.chMu.Unlock()
	if !ok {
		return false
	}

	removed := false
	st.doExisting(key.session, func(s *Session) { removed = s.unbind(key.client, ch) })
	if removed {
		log.Info().Str("module", "app.registry").Str("session", string(key.session)).
			Str("client", string(key.client)).Str("conn", ch.ID()).Msg("unbound channel")
	}
	return removed
}

func (st *Store) Touch(sid domain.SessionID, id domain.ClientID, now time.Time) {
	st.Do(sid, func(s *Session) { s.Touch(id, now) })
}

func (st *Store) Lookup(sid domain.SessionID, id domain.ClientID) (core.Channel, bool) {
	var (
		ch core.Channel
		ok bool
	)
	st.doExisting(sid, func(s *Session) { ch, ok = s.Lookup(id) })
	return ch, ok
}

func (st *Store) StoreOffer(sid domain.SessionID, from, to domain.ClientID, payload json.RawMessage, now time.Time) {
	st.Do(sid, func(s *Session) { s.StoreOffer(from, to, payload, now) })
}

func (st *Store) StoreCandidate(sid domain.SessionID, from domain.ClientID, payload json.RawMessage, now time.Time) {
	var evicted int
	st.Do(sid, func(s *Session) { evicted = s.StoreCandidate(from, payload, now) })
	st.metrics.Add(metrics.EventCandidatesEvicted, uint64(evicted))
}

func (st *Store) ReplayFor(sid domain.SessionID, requester domain.ClientID, now time.Time) []domain.Envelope {
	var out []domain.Envelope
	st.doExisting(sid, func(s *Session) { out = s.ReplayFor(requester, now) })
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Bound returns the number of channels holding a binding.
func (st *Store) Bound() int {
	st.chMu.Lock()
	defer st.chMu.Unlock()
	return len(st.bound)
}

type ClientSnapshot struct {
	ID           domain.ClientID
	Bound        bool
	HasOffer     bool
	Candidates   int
	LastActivity time.Time
}

type SessionSnapshot struct {
	ID      domain.SessionID
	Clients []ClientSnapshot
}

// Snapshot copies the state of an existing session without creating it.
func (st *Store) Snapshot(sid domain.SessionID) (SessionSnapshot, bool) {
	var snap SessionSnapshot
	ok := st.doExisting(sid, func(s *Session) {
		snap.ID = s.id
		for _, id := range s.order {
			c := s.clients[id]
			snap.Clients = append(snap.Clients, ClientSnapshot{
				ID:           id,
				Bound:        c.channel != nil,
				HasOffer:     c.offer != nil,
				Candidates:   len(c.candidates),
				LastActivity: c.lastActivity,
			})
		}
	})
	return snap, ok
}

func (st *Store) list() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// purgeIfStale removes s when every identity has been idle longer than the
// TTL. Identities with an open channel count as active at now.
func (st *Store) purgeIfStale(s *Session, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purged {
		return false
	}

	var latest time.Time
	for _, c := range s.clients {
		if c.channel != nil && !c.channel.IsClosed() {
			c.lastActivity = now
		}
		if c.lastActivity.After(latest) {
			latest = c.lastActivity
		}
	}
	if now.Sub(latest) <= st.cfg.TTL {
		return false
	}

	st.mu.Lock()
	if st.sessions[s.id] == s {
		delete(st.sessions, s.id)
	}
	st.mu.Unlock()

	st.chMu.Lock()
	for _, c := range s.clients {
		if c.channel == nil {
			continue
		}
		if k, ok := st.bound[c.channel]; ok && k.session == s.id {
			delete(st.bound, c.channel)
		}
	}
	st.chMu.Unlock()

	s.purged = true
	s.clients = nil
	s.order = nil
	return true
}

func newSession(id domain.SessionID, cfg StoreConfig) *Session {
	return &Session{
		id:      id,
		cfg:     cfg,
		clients: make(map[domain.ClientID]*clientState),
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) client(id domain.ClientID) *clientState {
	c, ok := s.clients[id]
	if !ok {
		c = &clientState{}
		s.clients[id] = c
		s.order = append(s.order, id)
	}
	return c
}

func (s *Session) bind(id domain.ClientID, ch core.Channel, now time.Time) core.Channel {
	c := s.client(id)
	prev := c.channel
	c.channel = ch
	c.lastActivity = now
	return prev
}

func (s *Session) unbind(id domain.ClientID, ch core.Channel) bool {
	c, ok := s.clients[id]
	if !ok || c.channel != ch {
		return false
	}
	c.channel = nil
	return true
}

func (s *Session) Touch(id domain.ClientID, now time.Time) {
	c := s.client(id)
	if now.After(c.lastActivity) {
		c.lastActivity = now
	}
}

// Lookup returns the channel bound to id, which may already be closed.
func (s *Session) Lookup(id domain.ClientID) (core.Channel, bool) {
	c, ok := s.clients[id]
	if !ok || c.channel == nil {
		return nil, false
	}
	return c.channel, true
}
