package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-player/internal/infrastructure/logging"
	"github.com/pot-code/course-player/internal/infrastructure/validate"
	"github.com/pot-code/course-player/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-player/internal/playback"
)

const sessionContextKey = "session"

// SessionHandler viewing session endpoints for polling clients
type SessionHandler struct {
	manager   *playback.Manager
	validator validate.Validator
}

// NewSessionHandler ...
func NewSessionHandler(Manager *playback.Manager, Validator validate.Validator) *SessionHandler {
	return &SessionHandler{Manager, Validator}
}

type openSessionRequest struct {
	Capabilities playback.Capabilities `json:"capabilities"`
}

type selectLessonRequest struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

type reportPositionRequest struct {
	Generation uint64  `json:"generation"`
	Offset     float64 `json:"offset" validate:"min=0"`
}

type readyRequest struct {
	Generation uint64 `json:"generation" validate:"required"`
}

type selectLessonResponse struct {
	Changed bool              `json:"changed"`
	Session playback.Snapshot `json:"session"`
}

type endSessionResponse struct {
	Saved bool `json:"saved"`
}

// LoadSession resolve :sid into the request context, unknown ids and sessions of
// other viewer profiles are rejected with 404
func (sh *SessionHandler) LoadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := sh.manager.Get(c.Param("sid"))
		if err != nil {
			return err
		}
		if s.ProfileID() != middleware.ProfileFromContext(c) {
			return playback.ErrSessionNotFound
		}
		c.Set(sessionContextKey, s)
		return next(c)
	}
}

func sessionFromContext(c echo.Context) *playback.Session {
	return c.Get(sessionContextKey).(*playback.Session)
}

// HandleOpenSession POST /courses/:id/sessions
func (sh *SessionHandler) HandleOpenSession(c echo.Context) error {
	body := new(openSessionRequest)
	if err := c.Bind(body); err != nil {
		return validationFailed(c, []*validate.FieldError{validate.NewFieldError("body", err.Error())})
	}

	s, err := sh.manager.Open(c.Request().Context(), middleware.ProfileFromContext(c), c.Param("id"), body.Capabilities, playback.NewRemoteSurface())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.Snapshot())
}

// HandleGetSession GET /sessions/:sid
func (sh *SessionHandler) HandleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionFromContext(c).Snapshot())
}

// HandleSelectLesson PUT /sessions/:sid/lesson
func (sh *SessionHandler) HandleSelectLesson(c echo.Context) error {
	body := new(selectLessonRequest)
	if err := c.Bind(body); err != nil {
		return validationFailed(c, []*validate.FieldError{validate.NewFieldError("body", err.Error())})
	}
	if errs := sh.validator.Struct(body); errs != nil {
		return validationFailed(c, errs)
	}

	s := sessionFromContext(c)
	changed, err := s.Select(body.LessonID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selectLessonResponse{changed, s.Snapshot()})
}

// HandleReportPosition PUT /sessions/:sid/position
func (sh *SessionHandler) HandleReportPosition(c echo.Context) error {
	body := new(reportPositionRequest)
	if err := c.Bind(body); err != nil {
		return validationFailed(c, []*validate.FieldError{validate.NewFieldError("body", err.Error())})
	}
	if errs := sh.validator.Struct(body); errs != nil {
		return validationFailed(c, errs)
	}

	if _, err := sessionFromContext(c).Report(body.Generation, body.Offset); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleReady POST /sessions/:sid/ready
func (sh *SessionHandler) HandleReady(c echo.Context) error {
	body := new(readyRequest)
	if err := c.Bind(body); err != nil {
		return validationFailed(c, []*validate.FieldError{validate.NewFieldError("body", err.Error())})
	}
	if errs := sh.validator.Struct(body); errs != nil {
		return validationFailed(c, errs)
	}

	s := sessionFromContext(c)
	if _, err := s.Ready(body.Generation); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

// HandleEndSession DELETE /sessions/:sid, also mounted as POST for unload beacons.
// The commit outlives the request, beacons are routinely cancelled by the unloading page.
func (sh *SessionHandler) HandleEndSession(c echo.Context) error {
	logger := logging.ExtractLoggerFromContext(c.Request().Context())
	ctx, cancel := context.WithTimeout(logging.SetLoggerInContext(context.Background(), logger), endTimeout)
	defer cancel()

	saved, err := sh.manager.Close(ctx, sessionFromContext(c).ID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, endSessionResponse{saved})
}
