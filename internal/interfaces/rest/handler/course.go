package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-player/internal/course"
	"github.com/pot-code/course-player/internal/infrastructure/validate"
	"github.com/pot-code/course-player/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-player/internal/playback"
	"github.com/pot-code/course-player/internal/resume"
)

// CourseHandler catalog endpoints
type CourseHandler struct {
	courseUseCase course.CourseUseCase
	resumeStore   resume.Profiles
	validator     validate.Validator
}

// NewCourseHandler ...
func NewCourseHandler(
	CourseUseCase course.CourseUseCase,
	ResumeStore resume.Profiles,
	Validator validate.Validator,
) *CourseHandler {
	return &CourseHandler{CourseUseCase, ResumeStore, Validator}
}

// HandleListCourses GET /courses?page=N
func (ch *CourseHandler) HandleListCourses(c echo.Context) error {
	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		if errs := ch.validator.Var("page", raw, "numeric"); errs != nil {
			return validationFailed(c, errs)
		}
		page, _ = strconv.Atoi(raw)
		if errs := ch.validator.Var("page", page, "min=1"); errs != nil {
			return validationFailed(c, errs)
		}
	}

	result, err := ch.courseUseCase.ListCourses(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCoursePage(result))
}

// HandleGetCourse GET /courses/:id
func (ch *CourseHandler) HandleGetCourse(c echo.Context) error {
	result, err := ch.courseUseCase.GetCourse(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCourseDetail(result))
}

// HandleGetResume GET /courses/:id/resume
func (ch *CourseHandler) HandleGetResume(c echo.Context) error {
	profileID := middleware.ProfileFromContext(c)
	if profileID == "" {
		return playback.ErrProfileRequired
	}
	record, ok := ch.resumeStore.ForProfile(profileID).Load(c.Request().Context(), c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound,
			NewRESTStandardError(http.StatusNotFound, "no resume point").SetTraceID(TraceID(c)),
		)
	}
	return c.JSON(http.StatusOK, record)
}
