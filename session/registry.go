package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is how long a session may sit without a turn before the
// janitor evicts it.
const DefaultIdleTimeout = 30 * time.Minute

var ErrNotFound = errors.New("session not found")

// Session is a snapshot of a live conversation's in-process state. Durable
// state lives in the memory store keyed by ID.
type Session struct {
	ID             string    `json:"session_id"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	Session
	turn     chan struct{}
	inFlight bool
}

// Registry owns the live sessions. A session is created the first time its
// id is used and evicted after IdleTimeout without activity. Each session
// runs at most one turn at a time.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	idleTimeout time.Duration
	onExpire    func(Session)
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics reports session counts and lifecycle events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a Registry. A non-positive idleTimeout uses DefaultIdleTimeout.
func NewRegistry(idleTimeout time.Duration, logger zerolog.Logger, opts ...Option) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	r := &Registry{
		sessions:    make(map[string]*entry),
		idleTimeout: idleTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With().Str("component", "session_registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// SetExpireHook registers a callback run for each evicted session, outside the
// registry lock.
func (r *Registry) SetExpireHook(hook func(Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// GetOrCreate returns the session for id, creating it on first use. An empty
// id gets a new identifier. created reports whether the session is new.
func (r *Registry) GetOrCreate(id string) (s Session, created bool) {
	if id == "" {
		id = NewID()
	}

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		now := r.now()
		e = &entry{
			Session: Session{ID: id, StartedAt: now, LastActivityAt: now},
			turn:    make(chan struct{}, 1),
		}
		r.sessions[id] = e
	}
	snapshot := e.Session
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug().Str("session_id", id).Msg("session created")
		r.metrics.IncSessionEvent("created")
		r.metrics.SetActiveSessions(count)
	}
	return snapshot, !ok
}

// Get returns a snapshot of a live session.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return e.Session, nil
}

// Touch records activity on a session.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	e.LastActivityAt = r.now()
	return nil
}

// BeginTurn creates the session if needed and waits for its turn slot. The
// returned release function must be called when the turn is finished; it
// counts the turn and records activity. Waiting honors ctx.
func (r *Registry) BeginTurn(ctx context.Context, id string) (Session, func(), error) {
	for {
		s, _ := r.GetOrCreate(id)
		id = s.ID

		r.mu.RLock()
		e := r.sessions[id]
		r.mu.RUnlock()
		if e == nil {
			continue
		}

		select {
		case e.turn <- struct{}{}:
		case <-ctx.Done():
			return Session{}, nil, ctx.Err()
		}

		r.mu.Lock()
		if r.sessions[id] != e {
			// evicted while waiting
			r.mu.Unlock()
			<-e.turn
			continue
		}
		e.inFlight = true
		e.LastActivityAt = r.now()
		snapshot := e.Session
		r.mu.Unlock()

		var once sync.Once
		release := func() {
			once.Do(func() {
				r.mu.Lock()
				e.inFlight = false
				e.Turns++
				e.LastActivityAt = r.now()
				r.mu.Unlock()
				<-e.turn
			})
		}
		return snapshot, release, nil
	}
}

// End removes a session from the registry.
func (r *Registry) End(id string) (Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	r.metrics.IncSessionEvent("ended")
	r.metrics.SetActiveSessions(count)
	return e.Session, nil
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ExpireIdle()
			}
		}
	}()
}

// ExpireIdle evicts every session idle for longer than the timeout and
// returns them. Sessions with a turn in flight are never evicted.
func (r *Registry) ExpireIdle() []Session {
	now := r.now()
	var expired []Session

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.inFlight || now.Sub(e.LastActivityAt) < r.idleTimeout {
			continue
		}
		expired = append(expired, e.Session)
		delete(r.sessions, id)
	}
	hook := r.onExpire
	count := len(r.sessions)
	r.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}
	r.metrics.SetActiveSessions(count)
	for _, s := range expired {
		r.logger.Info().
			Str("session_id", s.ID).
			Int("turns", s.Turns).
			Dur("idle", now.Sub(s.LastActivityAt)).
			Msg("session expired")
		r.metrics.IncSessionEvent("expired")
		if hook != nil {
			hook(s)
		}
	}
	return expired
}
