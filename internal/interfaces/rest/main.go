package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/course-player/internal/course"
	infra "github.com/pot-code/course-player/internal/infrastructure"
	"github.com/pot-code/course-player/internal/infrastructure/driver"
	"github.com/pot-code/course-player/internal/infrastructure/validate"
	"github.com/pot-code/course-player/internal/interfaces/rest/handler"
	"github.com/pot-code/course-player/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-player/internal/playback"
	"github.com/pot-code/course-player/internal/resume"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// NewServer create http transport server
func NewServer(
	option *infra.AppConfig,
	kv driver.KeyValueDB,
	CourseUseCase course.CourseUseCase,
	ResumeStore resume.Profiles,
	SessionManager *playback.Manager,
	logger *zap.Logger,
) *echo.Echo {
	var (
		app       = echo.New()
		validator = validate.NewValidator()
		websocket = infra.NewWebsocket()
	)
	app.HideBanner = true
	app.HidePort = true

	registerLivenessProbe(app, kv)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}

	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: respondError(logger),
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
		Skipper: func(e echo.Context) bool {
			return strings.Contains(e.Request().URL.Path, "/ws/")
		},
	}))

	var (
		CourseHandler        = handler.NewCourseHandler(CourseUseCase, ResumeStore, validator)
		SessionHandler       = handler.NewSessionHandler(SessionManager, validator)
		SessionSocketHandler = handler.NewSessionSocketHandler(SessionManager)
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{
				echo_middleware.RequestID(),
				middleware.SetTraceLogger(logger),
				middleware.ViewerProfile(SessionManager.IDs),
			},
			groups: []*apiGroup{
				{
					prefix: "/courses",
					routes: []*route{
						{"GET", "", CourseHandler.HandleListCourses, nil},
						{"GET", "/:id", CourseHandler.HandleGetCourse, nil},
						{"GET", "/:id/resume", CourseHandler.HandleGetResume, nil},
						{"POST", "/:id/sessions", SessionHandler.HandleOpenSession, nil},
					},
				},
				{
					prefix: "/sessions",
					routes: []*route{
						{"GET", "/:sid", SessionHandler.HandleGetSession, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
						{"PUT", "/:sid/lesson", SessionHandler.HandleSelectLesson, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
						{"PUT", "/:sid/position", SessionHandler.HandleReportPosition, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
						{"POST", "/:sid/ready", SessionHandler.HandleReady, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
						{"DELETE", "/:sid", SessionHandler.HandleEndSession, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
						{"POST", "/:sid/end", SessionHandler.HandleEndSession, []echo.MiddlewareFunc{SessionHandler.LoadSession}},
					},
				},
				{
					prefix: "/ws",
					routes: []*route{
						{"GET", "/sessions/:sid", websocket.WithHeartbeat(SessionSocketHandler.HandleSession), []echo.MiddlewareFunc{SessionHandler.LoadSession}},
					},
				},
			},
		})

	printRoutes(app, logger)
	return app
}

// Serve start listening, returns nil once the server is shut down
func Serve(app *echo.Echo, option *infra.AppConfig) error {
	if err := app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func respondError(logger *zap.Logger) func(c echo.Context, err error) {
	return func(c echo.Context, err error) {
		traceID := handler.TraceID(c)
		code, detail := handler.StatusOf(err), err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code, detail = he.Code, fmt.Sprint(he.Message)
		}

		if code >= http.StatusInternalServerError {
			logger.Error(err.Error(), zap.String("trace.id", traceID), zap.String("url.path", c.Request().URL.Path))
		}
		if c.Response().Committed {
			return
		}
		c.JSON(code, handler.NewRESTStandardError(code, detail).SetTraceID(traceID))
	}
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, kv driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()
		if kv.Ping(ctx) == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
