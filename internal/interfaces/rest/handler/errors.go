package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-player/internal/course"
	"github.com/pot-code/course-player/internal/infrastructure/validate"
	"github.com/pot-code/course-player/internal/playback"
)

// RESTStandardError response error
type RESTStandardError struct {
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewRESTStandardError create an error response titled after code
func NewRESTStandardError(code int, detail string) *RESTStandardError {
	return &RESTStandardError{
		Code:   code,
		Title:  http.StatusText(code),
		Detail: detail,
	}
}

func (re RESTStandardError) Error() string {
	return re.Detail
}

// SetTraceID copy with trace id
func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams []*validate.FieldError `json:"invalid_params"`
}

// NewRESTValidationError create a validation error response
func NewRESTValidationError(code int, detail string, internal []*validate.FieldError) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: RESTStandardError{
			Code:   code,
			Title:  http.StatusText(code),
			Detail: detail,
		},
		InvalidParams: internal,
	}
}

func (rve RESTValidationError) Error() string {
	return rve.Detail
}

// SetTraceID copy with trace id
func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}

// StatusOf http status for domain errors, 500 for anything else
func StatusOf(err error) int {
	switch {
	case errors.Is(err, course.ErrCourseUnavailable),
		errors.Is(err, playback.ErrSessionNotFound),
		errors.Is(err, playback.ErrLessonNotFound):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrSessionTerminated):
		return http.StatusGone
	case errors.Is(err, playback.ErrProfileRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// TraceID request id assigned by the RequestID middleware
func TraceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func validationFailed(c echo.Context, errs []*validate.FieldError) error {
	return c.JSON(http.StatusBadRequest,
		NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", errs).SetTraceID(TraceID(c)),
	)
}
