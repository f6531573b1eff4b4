package playback

import (
	"context"
	"sync"
	"testing"

	"github.com/pot-code/course-player/internal/course"
	"github.com/pot-code/course-player/internal/resume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var mse = Capabilities{MediaSourceExtensions: true}

type spyStore struct {
	mu      sync.Mutex
	records map[string]resume.Record
	saves   []resume.Record
	loads   int
}

func newSpyStore() *spyStore {
	return &spyStore{records: make(map[string]resume.Record)}
}

func (ss *spyStore) Save(ctx context.Context, courseID string, record resume.Record) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.saves = append(ss.saves, record)
	ss.records[courseID] = record
}

func (ss *spyStore) Load(ctx context.Context, courseID string) (resume.Record, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.loads++
	r, ok := ss.records[courseID]
	return r, ok
}

func (ss *spyStore) ForProfile(profileID string) resume.Store {
	return &profileStore{ss, profileID}
}

// profileStore records under the profile scoped key
type profileStore struct {
	spy     *spyStore
	profile string
}

func (ps *profileStore) Save(ctx context.Context, courseID string, record resume.Record) {
	ps.spy.Save(ctx, resume.Key(ps.profile, courseID), record)
}

func (ps *profileStore) Load(ctx context.Context, courseID string) (resume.Record, bool) {
	return ps.spy.Load(ctx, resume.Key(ps.profile, courseID))
}

func lesson(id string, order int, status course.LessonStatus) course.Lesson {
	return course.Lesson{ID: id, Order: order, Status: status, Link: "https://wisey.app/videos/" + id + ".m3u8"}
}

func testCourse() *course.Course {
	c := &course.Course{
		ID: "c1",
		Lessons: []course.Lesson{
			lesson("two", 2, course.LessonLocked),
			lesson("one", 1, course.LessonUnlocked),
			lesson("three", 3, course.LessonUnlocked),
			lesson("four", 4, course.LessonUnlocked),
		},
	}
	c.Lessons = c.SortedLessons()
	return c
}

func startSession(t *testing.T, c *course.Course, caps Capabilities, store resume.Store) (*Session, *RemoteSurface) {
	t.Helper()
	surface := NewRemoteSurface()
	s := NewSession("s1", c, caps, store, surface, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	return s, surface
}

func TestSession_InitialSelectionFallback(t *testing.T) {
	store := newSpyStore()
	s, surface := startSession(t, testCourse(), mse, store)

	snap := s.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	require.NotNil(t, snap.Lesson)
	assert.Equal(t, 1, snap.Lesson.Order)
	assert.Equal(t, 1, store.loads)

	src, ok := surface.Current()
	require.True(t, ok)
	assert.Equal(t, StrategyAdaptive, src.Strategy)
	assert.Equal(t, "https://wisey.app/videos/one.m3u8", src.URL)
	assert.Zero(t, src.StartOffset)
}

func TestSession_ResumeSeeksToStoredOffset(t *testing.T) {
	store := newSpyStore()
	store.records["c1"] = resume.Record{LessonID: "three", OffsetSeconds: 42.5}

	s, surface := startSession(t, testCourse(), mse, store)

	snap := s.Snapshot()
	assert.Equal(t, "three", snap.Lesson.ID)
	assert.Equal(t, 42.5, snap.Offset)
	src, _ := surface.Current()
	assert.Equal(t, 42.5, src.StartOffset)
}

func TestSession_StaleReferenceFallback(t *testing.T) {
	store := newSpyStore()
	store.records["c1"] = resume.Record{LessonID: "removed", OffsetSeconds: 10}

	s, _ := startSession(t, testCourse(), mse, store)
	snap := s.Snapshot()
	assert.Equal(t, "one", snap.Lesson.ID)
	assert.Zero(t, snap.Offset)
}

func TestSession_LockedResumeFallback(t *testing.T) {
	store := newSpyStore()
	store.records["c1"] = resume.Record{LessonID: "two", OffsetSeconds: 10}

	s, _ := startSession(t, testCourse(), mse, store)
	assert.Equal(t, "one", s.Snapshot().Lesson.ID)
}

func TestSession_SelectLockedIsNoop(t *testing.T) {
	s, surface := startSession(t, testCourse(), mse, newSpyStore())
	before := s.Snapshot()

	changed, err := s.Select("two")
	require.NoError(t, err)
	assert.False(t, changed)

	after := s.Snapshot()
	assert.Equal(t, before.Lesson.ID, after.Lesson.ID)
	assert.Equal(t, before.Generation, after.Generation)
	src, _ := surface.Current()
	assert.Equal(t, "one", src.LessonID)
}

func TestSession_SelectResetsOffset(t *testing.T) {
	s, surface := startSession(t, testCourse(), mse, newSpyStore())
	require.True(t, surface.Report(1, 80))

	changed, err := s.Select("three")
	require.NoError(t, err)
	assert.True(t, changed)

	snap := s.Snapshot()
	assert.Equal(t, "three", snap.Lesson.ID)
	assert.Zero(t, snap.Offset)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.False(t, snap.Ready)

	changed, err = s.Select("three")
	require.NoError(t, err)
	assert.False(t, changed, "reselecting the current lesson")

	_, err = s.Select("missing")
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestSession_CommitOnce(t *testing.T) {
	store := newSpyStore()
	s, _ := startSession(t, testCourse(), mse, store)
	ctx := context.Background()

	for _, id := range []string{"three", "four", "three"} {
		changed, err := s.Select(id)
		require.NoError(t, err)
		require.True(t, changed)
	}
	gen := s.Snapshot().Generation
	ok, err := s.Report(gen, 37.25)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, store.saves, "no save before the session ends")

	assert.True(t, s.End(ctx))
	assert.False(t, s.End(ctx))

	require.Len(t, store.saves, 1)
	assert.Equal(t, "three", store.saves[0].LessonID)
	assert.Equal(t, 37.25, store.saves[0].OffsetSeconds)
	require.NotNil(t, store.saves[0].Lesson)
	assert.Equal(t, 3, store.saves[0].Lesson.Order)
}

func TestSession_EmptyCourseNeverSaves(t *testing.T) {
	for name, c := range map[string]*course.Course{
		"no lessons": {ID: "c1"},
		"all locked": {ID: "c1", Lessons: []course.Lesson{lesson("a", 1, course.LessonLocked)}},
	} {
		t.Run(name, func(t *testing.T) {
			store := newSpyStore()
			surface := NewRemoteSurface()
			s := NewSession("s1", c, mse, store, surface, zap.NewNop())
			require.NoError(t, s.Start(context.Background()))

			assert.Equal(t, StateEmpty, s.Snapshot().State)
			_, loaded := surface.Current()
			assert.False(t, loaded, "no media initialization")

			assert.False(t, s.End(context.Background()))
			assert.Empty(t, store.saves)
		})
	}
}

func TestSession_TerminatedRejectsOperations(t *testing.T) {
	s, _ := startSession(t, testCourse(), mse, newSpyStore())
	s.End(context.Background())

	_, err := s.Select("three")
	assert.ErrorIs(t, err, ErrSessionTerminated)
	_, err = s.Ready(1)
	assert.ErrorIs(t, err, ErrSessionTerminated)
	_, err = s.Report(1, 3)
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionTerminated)
	assert.Equal(t, StateTerminated, s.Snapshot().State)
}

func TestSession_MediaUnsupportedIsNonFatal(t *testing.T) {
	store := newSpyStore()
	s, surface := startSession(t, testCourse(), Capabilities{NativeTypes: []string{"video/webm"}}, store)

	snap := s.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, "one", snap.Lesson.ID)
	assert.Contains(t, snap.MediaError, ErrMediaUnsupported.Error())
	assert.Nil(t, snap.Source)
	_, loaded := surface.Current()
	assert.False(t, loaded)

	changed, err := s.Select("three")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.True(t, s.End(context.Background()))
	require.Len(t, store.saves, 1)
	assert.Equal(t, "three", store.saves[0].LessonID)
}

func TestSession_FailedSwitchResetsOffset(t *testing.T) {
	c := testCourse()
	for i := range c.Lessons {
		if c.Lessons[i].ID == "three" {
			c.Lessons[i].Link = ""
		}
	}
	store := newSpyStore()
	s, _ := startSession(t, c, mse, store)

	ok, err := s.Report(1, 300)
	require.NoError(t, err)
	require.True(t, ok)

	changed, err := s.Select("three")
	require.NoError(t, err)
	require.True(t, changed)

	snap := s.Snapshot()
	assert.Equal(t, "three", snap.Lesson.ID)
	assert.Zero(t, snap.Offset)
	assert.NotEmpty(t, snap.MediaError)

	ok, err = s.Report(1, 555)
	require.NoError(t, err)
	assert.False(t, ok, "clock of the superseded source")
	ok, err = s.Report(0, 555)
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, s.End(context.Background()))
	require.Len(t, store.saves, 1)
	assert.Equal(t, "three", store.saves[0].LessonID)
	assert.Zero(t, store.saves[0].OffsetSeconds)
}

func TestSession_NativeStrategy(t *testing.T) {
	_, surface := startSession(t, testCourse(), Capabilities{NativeTypes: []string{HLSMimeType}}, newSpyStore())
	src, ok := surface.Current()
	require.True(t, ok)
	assert.Equal(t, StrategyNative, src.Strategy)
}

func TestSession_StaleReadyIgnored(t *testing.T) {
	s, _ := startSession(t, testCourse(), mse, newSpyStore())
	_, err := s.Select("three")
	require.NoError(t, err)

	ok, err := s.Ready(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Snapshot().Ready)

	ok, err = s.Ready(2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.Snapshot().Ready)
}

func TestSession_StaleReportIgnored(t *testing.T) {
	store := newSpyStore()
	s, _ := startSession(t, testCourse(), mse, store)
	_, err := s.Select("three")
	require.NoError(t, err)

	ok, err := s.Report(1, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	s.End(context.Background())
	require.Len(t, store.saves, 1)
	assert.Zero(t, store.saves[0].OffsetSeconds)
}
