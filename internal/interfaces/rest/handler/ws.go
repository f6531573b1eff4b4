package handler

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/course-player/internal/infrastructure"
	"github.com/pot-code/course-player/internal/infrastructure/logging"
	"github.com/pot-code/course-player/internal/playback"
	"go.uber.org/zap"
)

// client message types
const (
	MessageSelect   = "select"
	MessageProgress = "progress"
	MessageReady    = "ready"
)

// server message types
const (
	MessageSource = "source"
	MessageState  = "state"
	MessageError  = "error"
)

const endTimeout = 5 * time.Second

// ClientMessage viewing surface event
type ClientMessage struct {
	Type       string  `json:"type"`
	LessonID   string  `json:"lesson_id,omitempty"`
	Generation uint64  `json:"generation,omitempty"`
	Offset     float64 `json:"offset,omitempty"`
}

// ServerMessage instruction or state pushed to the surface
type ServerMessage struct {
	Type    string             `json:"type"`
	Source  *playback.Source   `json:"source,omitempty"`
	Session *playback.Snapshot `json:"session,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// SessionSocketHandler live channel of a viewing session, closing it ends the session
type SessionSocketHandler struct {
	manager *playback.Manager
}

// NewSessionSocketHandler ...
func NewSessionSocketHandler(Manager *playback.Manager) *SessionSocketHandler {
	return &SessionSocketHandler{Manager}
}

// HandleSession must be mounted behind SessionHandler.LoadSession
func (ssh *SessionSocketHandler) HandleSession(c echo.Context, conn *infra.WSConn) error {
	s := sessionFromContext(c)
	logger := logging.ExtractLoggerFromContext(c.Request().Context()).With(zap.String("session.id", s.ID()))
	done := make(chan struct{})
	defer func() {
		close(done)
		ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
		defer cancel()
		if saved, err := ssh.manager.Close(ctx, s.ID()); err == nil {
			logger.Debug("Session ended by surface disconnect", zap.Bool("saved", saved))
		}
	}()

	if surface, ok := s.Surface().(*playback.RemoteSurface); ok {
		// the snapshot below already carries the pending source
		select {
		case <-surface.Updates():
		default:
		}
		go forwardSources(conn, surface, done, logger)
	}
	if err := pushState(conn, s); err != nil {
		return nil
	}

	for {
		msg := new(ClientMessage)
		if err := conn.ReadJSON(msg); err != nil {
			return nil
		}
		if err := ssh.dispatch(conn, s, msg); err != nil {
			_ = conn.WriteJSON(ServerMessage{Type: MessageError, Error: err.Error()})
			if errors.Is(err, playback.ErrSessionTerminated) {
				return nil
			}
		}
	}
}

func (ssh *SessionSocketHandler) dispatch(conn *infra.WSConn, s *playback.Session, msg *ClientMessage) error {
	switch msg.Type {
	case MessageSelect:
		if _, err := s.Select(msg.LessonID); err != nil {
			return err
		}
		return pushState(conn, s)
	case MessageProgress:
		_, err := s.Report(msg.Generation, msg.Offset)
		return err
	case MessageReady:
		if _, err := s.Ready(msg.Generation); err != nil {
			return err
		}
		return pushState(conn, s)
	default:
		return errUnknownMessage(msg.Type)
	}
}

type errUnknownMessage string

func (e errUnknownMessage) Error() string {
	return "unknown message type: " + string(e)
}

func pushState(conn *infra.WSConn, s *playback.Session) error {
	snap := s.Snapshot()
	return conn.WriteJSON(ServerMessage{Type: MessageState, Session: &snap})
}

func forwardSources(conn *infra.WSConn, surface *playback.RemoteSurface, done <-chan struct{}, logger *zap.Logger) {
	for {
		select {
		case <-done:
			return
		case src := <-surface.Updates():
			if err := conn.WriteJSON(ServerMessage{Type: MessageSource, Source: &src}); err != nil {
				logger.Debug("Failed to push source", zap.Error(err))
				return
			}
		}
	}
}
