package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pot-code/course-player/internal/course"
	"github.com/pot-code/course-player/internal/infrastructure/uuid"
	"github.com/pot-code/course-player/internal/resume"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound unknown or already closed session id
	ErrSessionNotFound = errors.New("session not found")
	// ErrProfileRequired sessions resume per viewer profile
	ErrProfileRequired = errors.New("viewer profile required")
)

// Manager registry of live sessions
type Manager struct {
	Courses course.CourseUseCase
	Store   resume.Profiles
	IDs     uuid.Generator
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager create an empty registry
func NewManager(
	Courses course.CourseUseCase,
	Store resume.Profiles,
	IDs uuid.Generator,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		Courses:  Courses,
		Store:    Store,
		IDs:      IDs,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open start a session of profileID for courseID on surface. An unavailable course yields no session.
func (m *Manager) Open(ctx context.Context, profileID, courseID string, caps Capabilities, surface Surface) (*Session, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Manager.Open", "service")
	defer apmSpan.End()

	if profileID == "" {
		return nil, ErrProfileRequired
	}
	c, err := m.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	id, err := m.IDs.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	logger := m.logger.With(zap.String("session.id", id), zap.String("profile.id", profileID))
	s := NewSession(id, c, caps, m.Store.ForProfile(profileID), surface, logger)
	s.now = m.now
	s.profile = profileID
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	logger.Debug("Session opened", zap.String("course.id", courseID))
	return s, nil
}

// Get live session by id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close end and unregister the session, saved reports whether a resume point was written
func (m *Manager) Close(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false, ErrSessionNotFound
	}
	return s.End(ctx), nil
}

// Reap close sessions idle for longer than idle, returns how many were closed
func (m *Manager) Reap(ctx context.Context, idle time.Duration) int {
	deadline := m.now().Add(-idle)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.IdleSince().Before(deadline) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if _, err := m.Close(ctx, id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("Reaped idle sessions", zap.Int("count", closed))
	}
	return closed
}

// RunReaper reap every interval until ctx is done
func (m *Manager) RunReaper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx, idle)
		}
	}
}

// Shutdown end every live session
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.End(ctx)
	}
	m.logger.Info("Ended live sessions", zap.Int("count", len(sessions)))
	return len(sessions)
}

// Len number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
