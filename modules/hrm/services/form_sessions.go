package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/pkg/rolescope"
)

var (
	ErrSessionNotFound = errors.New("employee form session not found")
	// ErrSessionScopeMismatch is returned when a session is used under a role
	// or scope other than the one it was opened with.
	ErrSessionScopeMismatch = errors.New("employee form session belongs to another role scope")
)

type formSession struct {
	form    *EmployeeForm
	owner   rolescope.Context
	touched time.Time
}

type FormSessionsOption func(*FormSessions)

// WithIdleTTL evicts sessions that have not been opened or fetched for ttl.
// Zero disables eviction.
func WithIdleTTL(ttl time.Duration) FormSessionsOption {
	return func(s *FormSessions) {
		s.ttl = ttl
	}
}

// WithClock replaces time.Now for idle bookkeeping.
func WithClock(now func() time.Time) FormSessionsOption {
	return func(s *FormSessions) {
		s.now = now
	}
}

// FormSessions keeps the open employee form sessions of this process in
// memory. Each session owns its resolver exclusively and is bound to the
// role scope that opened it.
type FormSessions struct {
	base EmployeeFormOptions
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*formSession
}

// NewFormSessions uses base for every session; RoleScope is replaced per call.
func NewFormSessions(base EmployeeFormOptions, opts ...FormSessionsOption) *FormSessions {
	s := &FormSessions{
		base:     base,
		now:      time.Now,
		sessions: map[string]*formSession{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorizer returns the authorizer shared by every session, if any.
func (s *FormSessions) Authorizer() Authorizer {
	return s.base.Authz
}

// DefaultRoleScope is the process-wide acting role and scope.
func (s *FormSessions) DefaultRoleScope() rolescope.Context {
	return s.base.RoleScope
}

// Open starts an add session, or an edit session when employeeID is set.
func (s *FormSessions) Open(ctx context.Context, rc rolescope.Context, employeeID *int64) (string, *EmployeeForm, error) {
	opts := s.base
	opts.RoleScope = rc

	var (
		form *EmployeeForm
		err  error
	)
	if employeeID == nil {
		form, err = OpenCreate(ctx, opts)
	} else {
		form, err = OpenEdit(ctx, opts, *employeeID)
	}
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &formSession{form: form, owner: rc, touched: s.now()}
	s.mu.Unlock()
	return id, form, nil
}

// Get returns the session for rc and marks it as used.
func (s *FormSessions) Get(id string, rc rolescope.Context) (*EmployeeForm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !sess.owner.Equal(rc) {
		return nil, ErrSessionScopeMismatch
	}
	sess.touched = s.now()
	return sess.form, nil
}

// Close discards a session of rc and cancels its outstanding fetches.
func (s *FormSessions) Close(id string, rc rolescope.Context) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if !sess.owner.Equal(rc) {
		s.mu.Unlock()
		return ErrSessionScopeMismatch
	}
	delete(s.sessions, id)
	s.mu.Unlock()
	sess.form.Close()
	return nil
}

func (s *FormSessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle closes every session untouched for longer than the idle TTL and
// returns how many were evicted.
func (s *FormSessions) EvictIdle() int {
	if s.ttl <= 0 {
		return 0
	}
	deadline := s.now().Add(-s.ttl)
	var expired []*EmployeeForm
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.touched.Before(deadline) {
			expired = append(expired, sess.form)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, form := range expired {
		form.Close()
	}
	if len(expired) > 0 {
		s.logger().WithField("evicted", len(expired)).Info("evicted idle employee form sessions")
	}
	return len(expired)
}

// Run evicts idle sessions every interval until ctx is done, then closes
// all remaining sessions.
func (s *FormSessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// CloseAll discards every session. Used on shutdown.
func (s *FormSessions) CloseAll() {
	s.mu.Lock()
	forms := make([]*EmployeeForm, 0, len(s.sessions))
	for id, sess := range s.sessions {
		forms = append(forms, sess.form)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for _, form := range forms {
		form.Close()
	}
}

func (s *FormSessions) logger() *logrus.Logger {
	if s.base.Logger != nil {
		return s.base.Logger
	}
	return logrus.StandardLogger()
}
