// Package quota bounds how many new analyses one session may trigger.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/casewatch/models"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// DefaultLimit is the number of new computations a session may trigger.
const DefaultLimit = 10

var (
	metricsOnce     sync.Once
	rejectedCounter otelmetric.Int64Counter
	metricsInitErr  error
)

func initQuotaMetrics() {
	rejectedCounter, metricsInitErr = otel.Meter("casewatch/quota").Int64Counter("quota_rejections_total")
}

// Session is the per-client quota state. Count never decreases.
type Session struct {
	id    string
	limit int

	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

// NewSession returns a session with count 0.
func NewSession(id string, limit int) *Session {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Session{id: id, limit: limit}
}

func (s *Session) ID() string { return s.id }

// Limit is the fixed quota of the session.
func (s *Session) Limit() int { return s.limit }

// Count is the number of computations recorded so far.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Remaining is limit minus count, never negative.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count >= s.limit {
		return 0
	}
	return s.limit - s.count
}

// Admit reports whether another computation fits. It does not change the session.
func (s *Session) Admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count < s.limit
}

// Record counts one computation. Callers record only after an admitted miss.
func (s *Session) Record() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

// Reserve admits and records in one step so two concurrent misses cannot take the same slot.
func (s *Session) Reserve(ctx context.Context) bool {
	s.mu.Lock()
	ok := s.count < s.limit
	if ok {
		s.count++
	}
	s.mu.Unlock()
	if !ok {
		metricsOnce.Do(initQuotaMetrics)
		if metricsInitErr == nil {
			rejectedCounter.Add(ctx, 1)
		}
	}
	return ok
}

// ExpiresAt reports when the session lapses, zero when it never does.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

func (s *Session) touch(exp time.Time) {
	s.mu.Lock()
	s.expiresAt = exp
	s.mu.Unlock()
}

// Registry keeps live sessions in memory.
type Registry struct {
	limit int
	ttl   time.Duration
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. ttl 0 keeps sessions until they are ended.
func NewRegistry(limit int, ttl time.Duration) *Registry {
	return &Registry{limit: limit, ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Create starts a new session with a fresh id.
func (r *Registry) Create() *Session {
	sess := NewSession(uuid.NewString(), r.limit)
	if r.ttl > 0 {
		sess.touch(r.now().Add(r.ttl))
	}
	r.mu.Lock()
	r.sessions[sess.id] = sess
	r.mu.Unlock()
	return sess
}

// Get returns a live session. Expired sessions are dropped and reported as not found.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if sess.expired(r.now()) {
		r.End(id)
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

// End destroys a session. Ending an unknown session is not an error.
func (r *Registry) End(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
