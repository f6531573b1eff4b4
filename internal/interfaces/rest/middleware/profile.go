package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-player/internal/infrastructure/uuid"
)

// viewer profile transport
const (
	HeaderProfileID   = "X-Profile-ID"
	ProfileCookieName = "player_profile"
	profileContextKey = "profile"
	maxProfileIDLen   = 64
)

// ViewerProfileOption ...
type ViewerProfileOption struct {
	MaxAge time.Duration
}

// ViewerProfile resolve the viewer profile from the X-Profile-ID header or the profile cookie,
// browsers without either get a fresh id as cookie
func ViewerProfile(ids uuid.Generator, options ...*ViewerProfileOption) echo.MiddlewareFunc {
	maxAge := 365 * 24 * time.Hour
	if len(options) > 0 {
		if option := options[0]; option.MaxAge > 0 {
			maxAge = option.MaxAge
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			profileID := c.Request().Header.Get(HeaderProfileID)
			if !validProfileID(profileID) {
				profileID = ""
				if cookie, err := c.Cookie(ProfileCookieName); err == nil && validProfileID(cookie.Value) {
					profileID = cookie.Value
				}
			}
			if profileID == "" {
				id, err := ids.Generate()
				if err != nil {
					return err
				}
				profileID = id
				c.SetCookie(&http.Cookie{
					Name:     ProfileCookieName,
					Value:    profileID,
					Path:     "/",
					MaxAge:   int(maxAge / time.Second),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(profileContextKey, profileID)
			return next(c)
		}
	}
}

// ProfileFromContext profile resolved by ViewerProfile, empty when the middleware did not run
func ProfileFromContext(c echo.Context) string {
	profileID, _ := c.Get(profileContextKey).(string)
	return profileID
}

func validProfileID(id string) bool {
	if id == "" || len(id) > maxProfileIDLen {
		return false
	}
	return strings.Trim(id, uuid.URLAlphabet) == ""
}
