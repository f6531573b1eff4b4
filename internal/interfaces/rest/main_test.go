package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-player/internal/course"
	infra "github.com/pot-code/course-player/internal/infrastructure"
	"github.com/pot-code/course-player/internal/infrastructure/driver"
	"github.com/pot-code/course-player/internal/infrastructure/uuid"
	"github.com/pot-code/course-player/internal/interfaces/rest/handler"
	"github.com/pot-code/course-player/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-player/internal/playback"
	"github.com/pot-code/course-player/internal/resume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalogBody = `{
  "id": "c1",
  "title": "Lack of Motivation",
  "status": "launched",
  "duration": 521,
  "lessonsCount": 3,
  "previewImageLink": "https://wisey.app/assets/images/web/course-covers/lack-of-motivation",
  "meta": {"slug": "lack-of-motivation", "skills": ["Aligning your goals"]},
  "lessons": [
    {"id": "l2", "title": "Second", "duration": 255, "order": 2, "status": "locked", "link": "https://wisey.app/videos/l2.m3u8"},
    {"id": "l1", "title": "First", "duration": 266, "order": 1, "status": "unlocked", "link": "https://wisey.app/videos/l1.m3u8"},
    {"id": "l3", "title": "Third", "duration": 61, "order": 3, "status": "unlocked", "link": "https://wisey.app/videos/l3.m3u8"}
  ]
}`

const viewer = "viewer-a"

// contextKV fails writes on a done context like the network backed drivers do
type contextKV struct {
	*driver.MemoryKV
}

func (ck contextKV) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ck.MemoryKV.Set(ctx, key, value, expiration)
}

type fixture struct {
	app     *echo.Echo
	kv      *driver.MemoryKV
	store   *resume.KVStore
	manager *playback.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/preview-courses":
			_, _ = w.Write([]byte(`{"courses":[` + catalogBody + `]}`))
		case "/preview-courses/c1":
			_, _ = w.Write([]byte(catalogBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(catalog.Close)

	logger := zap.NewNop()
	kv := driver.NewMemoryKV()
	store := resume.NewKVStore(contextKV{kv}, logger)
	client := course.NewCatalogClient(&course.CatalogConfig{BaseURL: catalog.URL + "/preview-courses", Token: "t"}, logger)
	courses := course.NewCourseUseCase(client, 10, logger)
	manager := playback.NewManager(courses, store, uuid.NewNanoIDGenerator(21), logger)
	option := &infra.AppConfig{Env: infra.EnvProduction, RequestTimeout: 5 * time.Second}

	return &fixture{
		app:     NewServer(option, kv, courses, store, manager, logger),
		kv:      kv,
		store:   store,
		manager: manager,
	}
}

func newRequest(method, target, body, profile string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if profile != "" {
		req.Header.Set(middleware.HeaderProfileID, profile)
	}
	return req
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, viewer, method, target, body)
}

func (f *fixture) doAs(t *testing.T, profile, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.serve(newRequest(method, target, body, profile))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func (f *fixture) openSession(t *testing.T) playback.Snapshot {
	t.Helper()
	return f.openSessionAs(t, viewer)
}

func (f *fixture) openSessionAs(t *testing.T, profile string) playback.Snapshot {
	t.Helper()
	rec := f.doAs(t, profile, http.MethodPost, "/api/v1/courses/c1/sessions", `{"capabilities":{"mse":true}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap playback.Snapshot
	decode(t, rec, &snap)
	return snap
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)

	require.NoError(t, f.kv.Close())
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestListCourses(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/courses?page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page handler.CoursePage
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Courses, 1)
	assert.Equal(t, "aligning your goals", page.Courses[0].Skills)
	assert.Equal(t, "https://wisey.app/assets/images/web/course-covers/lack-of-motivation/cover.webp", page.Courses[0].CoverImage)

	rec = f.do(t, http.MethodGet, "/api/v1/courses?page=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var verr handler.RESTValidationError
	decode(t, rec, &verr)
	require.Len(t, verr.InvalidParams, 1)
	assert.Equal(t, "page", verr.InvalidParams[0].Domain)
	assert.NotEmpty(t, verr.TraceID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/courses?page=abc", "").Code)

	rec = f.do(t, http.MethodGet, "/api/v1/courses?page=9223372036854775807", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Empty(t, page.Courses)
	assert.Equal(t, 1, page.Pages)
}

func TestGetCourse(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/courses/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail handler.CourseDetail
	decode(t, rec, &detail)
	require.Len(t, detail.Lessons, 3)
	assert.Equal(t, "l1", detail.Lessons[0].ID)
	assert.Equal(t, "4m 26s", detail.Lessons[0].DurationText)
	assert.True(t, detail.Lessons[1].Locked)
	assert.Empty(t, detail.Lessons[1].Link)
	assert.Equal(t, "8m 41s", detail.DurationText)

	rec = f.do(t, http.MethodGet, "/api/v1/courses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var serr handler.RESTStandardError
	decode(t, rec, &serr)
	assert.Contains(t, serr.Detail, course.ErrCourseUnavailable.Error())
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/courses/c1/resume", "").Code)

	snap := f.openSession(t)
	assert.Equal(t, playback.StatePlaying, snap.State)
	require.NotNil(t, snap.Lesson)
	assert.Equal(t, "l1", snap.Lesson.ID)
	require.NotNil(t, snap.Source)
	assert.Equal(t, playback.StrategyAdaptive, snap.Source.Strategy)
	base := "/api/v1/sessions/" + snap.ID

	rec := f.do(t, http.MethodPut, base+"/lesson", `{"lesson_id":"l2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":false`)

	rec = f.do(t, http.MethodPut, base+"/lesson", `{"lesson_id":"l3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":true`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, base+"/lesson", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, base+"/lesson", `{"lesson_id":"nope"}`).Code)

	rec = f.do(t, http.MethodPost, base+"/ready", `{"generation":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &snap)
	assert.True(t, snap.Ready)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, base+"/position", `{"generation":2,"offset":17.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, base+"/position", `{"generation":2,"offset":-1}`).Code)

	rec = f.do(t, http.MethodPost, base+"/end", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, base, "").Code)

	record, ok := f.store.ForProfile(viewer).Load(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "l3", record.LessonID)
	assert.Equal(t, 17.5, record.OffsetSeconds)

	rec = f.do(t, http.MethodGet, "/api/v1/courses/c1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resumed := f.openSession(t)
	assert.Equal(t, "l3", resumed.Lesson.ID)
	assert.Equal(t, 17.5, resumed.Source.StartOffset)
}

func TestOpenSessionCourseUnavailable(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/courses/missing/sessions", `{"capabilities":{"mse":true}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.manager.Len())
}

func TestOpenSessionMediaUnsupported(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/courses/c1/sessions", `{"capabilities":{"native_types":["video/mp4"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap playback.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, playback.StatePlaying, snap.State)
	assert.NotEmpty(t, snap.MediaError)
	assert.Nil(t, snap.Source)
}

func TestSessionSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	snap := f.openSession(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/sessions/" + snap.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{middleware.HeaderProfileID: {viewer}})
	require.NoError(t, err)

	var msg handler.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handler.MessageState, msg.Type)
	require.NotNil(t, msg.Session)
	assert.Equal(t, "l1", msg.Session.Lesson.ID)

	require.NoError(t, conn.WriteJSON(handler.ClientMessage{Type: handler.MessageSelect, LessonID: "l3"}))
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = true
		if msg.Type == handler.MessageSource {
			assert.Equal(t, "l3", msg.Source.LessonID)
			assert.Equal(t, uint64(2), msg.Source.Generation)
		}
	}
	assert.True(t, seen[handler.MessageSource])
	assert.True(t, seen[handler.MessageState])

	require.NoError(t, conn.WriteJSON(handler.ClientMessage{Type: handler.MessageProgress, Generation: 2, Offset: 9}))
	require.NoError(t, conn.WriteJSON(handler.ClientMessage{Type: "bogus"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handler.MessageError, msg.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.manager.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	record, ok := f.store.ForProfile(viewer).Load(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "l3", record.LessonID)
	assert.Equal(t, 9.0, record.OffsetSeconds)
}

func TestSessionSocketUnknownSession(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/sessions/unknown"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{middleware.HeaderProfileID: {viewer}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	snap := f.openSession(t)
	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/sessions/" + snap.ID
	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{middleware.HeaderProfileID: {"viewer-b"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, f.manager.Len())
}

func TestProfilesResumeIndependently(t *testing.T) {
	f := newFixture(t)

	snap := f.openSessionAs(t, "viewer-a")
	rec := f.doAs(t, "viewer-a", http.MethodPut, "/api/v1/sessions/"+snap.ID+"/lesson", `{"lesson_id":"l3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, f.doAs(t, "viewer-a", http.MethodDelete, "/api/v1/sessions/"+snap.ID, "").Code)

	assert.Equal(t, http.StatusNotFound, f.doAs(t, "viewer-b", http.MethodGet, "/api/v1/courses/c1/resume", "").Code)
	other := f.openSessionAs(t, "viewer-b")
	assert.Equal(t, "l1", other.Lesson.ID)
	require.Equal(t, http.StatusOK, f.doAs(t, "viewer-b", http.MethodDelete, "/api/v1/sessions/"+other.ID, "").Code)

	rec = f.doAs(t, "viewer-a", http.MethodGet, "/api/v1/courses/c1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record resume.Record
	decode(t, rec, &record)
	assert.Equal(t, "l3", record.LessonID)

	again := f.openSessionAs(t, "viewer-a")
	assert.Equal(t, "l3", again.Lesson.ID)
}

func TestSessionOwnedByProfile(t *testing.T) {
	f := newFixture(t)

	snap := f.openSessionAs(t, "viewer-a")
	base := "/api/v1/sessions/" + snap.ID
	assert.Equal(t, http.StatusNotFound, f.doAs(t, "viewer-b", http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusNotFound, f.doAs(t, "viewer-b", http.MethodPut, base+"/lesson", `{"lesson_id":"l3"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.doAs(t, "viewer-b", http.MethodPost, base+"/end", "").Code)
	assert.Equal(t, 1, f.manager.Len())

	assert.Equal(t, http.StatusOK, f.doAs(t, "viewer-a", http.MethodGet, base, "").Code)
}

func TestViewerProfileCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.doAs(t, "", http.MethodPost, "/api/v1/courses/c1/sessions", `{"capabilities":{"mse":true}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap playback.Snapshot
	decode(t, rec, &snap)

	var issued *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.ProfileCookieName {
			issued = cookie
		}
	}
	require.NotNil(t, issued)
	assert.Len(t, issued.Value, 21)
	assert.True(t, issued.HttpOnly)

	req := newRequest(http.MethodGet, "/api/v1/sessions/"+snap.ID, "", "")
	req.AddCookie(&http.Cookie{Name: middleware.ProfileCookieName, Value: issued.Value})
	rec = f.serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	// a fresh browser gets a different profile
	assert.Equal(t, http.StatusNotFound, f.doAs(t, "", http.MethodGet, "/api/v1/sessions/"+snap.ID, "").Code)
	// malformed header values fall back to a fresh profile
	assert.Equal(t, http.StatusNotFound, f.doAs(t, "bad profile!", http.MethodGet, "/api/v1/sessions/"+snap.ID, "").Code)
}

func TestEndSessionOutlivesRequest(t *testing.T) {
	f := newFixture(t)

	snap := f.openSession(t)
	base := "/api/v1/sessions/" + snap.ID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, base+"/lesson", `{"lesson_id":"l3"}`).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, base+"/position", `{"generation":2,"offset":42}`).Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := f.serve(newRequest(http.MethodPost, base+"/end", "", viewer).WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true}`, rec.Body.String())

	record, ok := f.store.ForProfile(viewer).Load(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "l3", record.LessonID)
	assert.Equal(t, 42.0, record.OffsetSeconds)
}
