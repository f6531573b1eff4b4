package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pot-code/course-player/internal/course"
	"github.com/pot-code/course-player/internal/resume"
	"go.uber.org/zap"
)

// State session lifecycle
type State string

// session states
const (
	StateInitializing State = "initializing"
	StatePlaying      State = "playing"
	StateEmpty        State = "empty"
	StateTerminated   State = "terminated"
)

var (
	// ErrSessionTerminated operation on an ended session
	ErrSessionTerminated = errors.New("session terminated")
	// ErrLessonNotFound lesson id is not part of the course
	ErrLessonNotFound = errors.New("lesson not found")
)

// Snapshot point-in-time view of a session
type Snapshot struct {
	ID         string         `json:"id"`
	CourseID   string         `json:"course_id"`
	State      State          `json:"state"`
	Lesson     *course.Lesson `json:"lesson,omitempty"`
	Offset     float64        `json:"offset"`
	Generation uint64         `json:"generation"`
	Ready      bool           `json:"ready"`
	Source     *Source        `json:"source,omitempty"`
	MediaError string         `json:"media_error,omitempty"`
}

// Session one viewing of one course, from Start to End.
//
// The resume record is read once on Start and written at most once on End.
type Session struct {
	id      string
	profile string
	course  *course.Course
	caps    Capabilities
	store   resume.Store
	surface Surface
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      State
	current    *course.Lesson
	source     *Source
	generation uint64
	offset     float64 // start offset of a lesson whose media never loaded
	ready      bool
	mediaErr   error
	lastActive time.Time
}

// NewSession create a session in the initializing state, c is expected to carry sorted lessons
func NewSession(id string, c *course.Course, caps Capabilities, store resume.Store, surface Surface, logger *zap.Logger) *Session {
	s := &Session{
		id:      id,
		course:  c,
		caps:    caps,
		store:   store,
		surface: surface,
		logger:  logger,
		now:     time.Now,
		state:   StateInitializing,
	}
	s.lastActive = s.now()
	return s
}

// ID session id
func (s *Session) ID() string {
	return s.id
}

// ProfileID viewer profile that owns the session, empty for sessions built outside a Manager
func (s *Session) ProfileID() string {
	return s.profile
}

// Start pick the initial lesson, the stored resume point when it still resolves to a playable
// lesson, otherwise the lowest order unlocked one
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateTerminated:
		return ErrSessionTerminated
	case StateInitializing:
	default:
		return nil
	}

	lesson, offset, resumed := s.initialLesson(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return nil
	}
	s.touch()
	if lesson == nil {
		s.state = StateEmpty
		s.logger.Debug("Course has no playable lesson", zap.String("course.id", s.course.ID))
		return nil
	}
	s.state = StatePlaying
	s.activate(*lesson, offset)
	s.logger.Debug("Session started",
		zap.String("course.id", s.course.ID),
		zap.String("lesson.id", lesson.ID),
		zap.Bool("resumed", resumed),
		zap.Float64("offset", offset),
	)
	return nil
}

func (s *Session) initialLesson(ctx context.Context) (*course.Lesson, float64, bool) {
	if record, ok := s.store.Load(ctx, s.course.ID); ok {
		if l, found := s.course.FindLesson(record.LessonRef()); found && l.Playable() {
			return &l, record.OffsetSeconds, true
		}
		s.logger.Debug("Resume record no longer resolves",
			zap.String("course.id", s.course.ID),
			zap.String("lesson.id", record.LessonRef()),
		)
	}
	if l, ok := s.course.FirstPlayable(); ok {
		return &l, 0, false
	}
	return nil, 0, false
}

// Select switch to lessonID from the beginning. Locked lessons and the current lesson
// are no-ops reported as changed == false.
func (s *Session) Select(lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return false, ErrSessionTerminated
	}
	s.touch()
	lesson, ok := s.course.FindLesson(lessonID)
	if !ok {
		return false, ErrLessonNotFound
	}
	if !lesson.Playable() || s.state != StatePlaying {
		return false, nil
	}
	if s.current != nil && s.current.ID == lesson.ID {
		return false, nil
	}
	s.activate(lesson, 0)
	return true, nil
}

// activate must be called with mu held
func (s *Session) activate(lesson course.Lesson, offset float64) {
	s.generation++
	s.current = &lesson
	s.source = nil
	s.offset = offset
	s.ready = false
	s.mediaErr = nil

	src, err := NewSource(lesson, s.caps, offset, s.generation)
	if err == nil {
		err = s.surface.Load(src)
	}
	if err != nil {
		s.mediaErr = err
		s.logger.Warn("Failed to initialize lesson media",
			zap.String("course.id", s.course.ID),
			zap.String("lesson.id", lesson.ID),
			zap.Error(err),
		)
		return
	}
	s.source = &src
}

// Ready media-ready callback for generation, callbacks from superseded sources are ignored
func (s *Session) Ready(generation uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return false, ErrSessionTerminated
	}
	s.touch()
	if s.source == nil || generation != s.generation {
		return false, nil
	}
	s.ready = true
	return true, nil
}

// Report forward the client playback clock to the surface
func (s *Session) Report(generation uint64, offset float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return false, ErrSessionTerminated
	}
	s.touch()
	reporter, ok := s.surface.(ClockReporter)
	// the surface still runs the superseded source
	if !ok || s.state != StatePlaying || s.source == nil {
		return false, nil
	}
	return reporter.Report(generation, offset), nil
}

// End commit the resume point and terminate, saved reports whether a record was written.
// Only the first call has any effect.
func (s *Session) End(ctx context.Context) bool {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false
	}
	var record *resume.Record
	if s.state == StatePlaying && s.current != nil {
		lesson := *s.current
		record = &resume.Record{
			LessonID:      lesson.ID,
			Lesson:        &lesson,
			OffsetSeconds: s.currentOffset(),
			SavedAt:       s.now().UTC(),
		}
	}
	s.state = StateTerminated
	s.mu.Unlock()

	if record == nil {
		return false
	}
	s.store.Save(ctx, s.course.ID, *record)
	s.logger.Debug("Session ended",
		zap.String("course.id", s.course.ID),
		zap.String("lesson.id", record.LessonID),
		zap.Float64("offset", record.OffsetSeconds),
	)
	return true
}

// Snapshot current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		CourseID:   s.course.ID,
		State:      s.state,
		Generation: s.generation,
		Ready:      s.ready,
	}
	if s.current != nil {
		lesson := *s.current
		snap.Lesson = &lesson
		snap.Offset = s.currentOffset()
	}
	if s.source != nil {
		src := *s.source
		snap.Source = &src
	}
	if s.mediaErr != nil {
		snap.MediaError = s.mediaErr.Error()
	}
	return snap
}

// Course the course being viewed
func (s *Session) Course() *course.Course {
	return s.course
}

// Surface the injected media surface
func (s *Session) Surface() Surface {
	return s.surface
}

// IdleSince last time the client touched the session
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// currentOffset must be called with mu held
func (s *Session) currentOffset() float64 {
	if s.source == nil {
		return s.offset
	}
	return s.surface.CurrentTime()
}

func (s *Session) touch() {
	s.lastActive = s.now()
}
