// Package session implements the per-connection state machine: admit,
// register, replay, stream, clean up.
package session

import (
	"context"
	"sync"

	"github.com/ymliu/convo/internal/audit"
	"github.com/ymliu/convo/internal/auth"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/hub"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/pkg/log"
)

// State is the lifecycle stage of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateStreaming
	StateClosed
)

// Conn is the connection as seen by the session. *hub.Client is the
// production implementation; tests substitute fakes.
type Conn interface {
	hub.Sender
	SendJSON(v interface{}) error
	ReadText() (string, error)
	ClosePolicy(reason string) error
	Close() error
}

// Registrar is the subset of the room registry the session uses.
type Registrar interface {
	Register(roomID, userID uint, s hub.Sender)
	Deregister(roomID, userID uint, s hub.Sender)
}

// Broadcaster fans an envelope out to a room.
type Broadcaster interface {
	Broadcast(roomID uint, env *domain.Envelope)
}

// Deps are the capabilities a session consumes.
type Deps struct {
	Gate        auth.Authenticator
	Messages    repository.MessageRepository
	Registry    Registrar
	Broadcaster Broadcaster
	ReplayDepth int
}

// Session drives one connection from admission to cleanup. The identity is
// bound only after authentication succeeds, and cleanup branches on how far
// the session got rather than on what ended it.
type Session struct {
	roomID uint
	conn   Conn
	deps   Deps

	state    State
	identity *domain.Identity
	cleanup  sync.Once
}

// New creates a session for a freshly upgraded connection to a room.
func New(roomID uint, conn Conn, deps Deps) *Session {
	return &Session{
		roomID: roomID,
		conn:   conn,
		deps:   deps,
		state:  StateConnecting,
	}
}

// State returns the current lifecycle stage. Only meaningful from the
// goroutine running the session (and after Run returns).
func (s *Session) State() State {
	return s.state
}

// Run executes the session to completion: authenticate, register, replay,
// then stream until the connection drops or a message fails to persist.
// Cleanup runs on every exit path.
func (s *Session) Run(ctx context.Context, credential string) {
	defer s.close(ctx)

	identity, err := s.deps.Gate.Authenticate(ctx, credential)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Uint(log.FieldRoomID, s.roomID).Msg("connection rejected")
		s.conn.ClosePolicy("authentication failed")
		return
	}
	s.identity = identity
	s.state = StateAuthenticated

	s.deps.Registry.Register(s.roomID, identity.UserID, s.conn)
	s.state = StateJoined
	audit.Log(ctx, audit.ActionJoinRoom, identity.UserID, "joined room")

	if err := s.replay(ctx); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Uint(log.FieldRoomID, s.roomID).Msg("history replay failed")
		return
	}

	s.state = StateStreaming
	for {
		content, err := s.conn.ReadText()
		if err != nil {
			// Normal termination: the client went away.
			return
		}
		if err := s.handleInbound(ctx, content); err != nil {
			return
		}
	}
}

// replay sends the most recent messages of the room to the new
// participant in chronological order.
func (s *Session) replay(ctx context.Context) error {
	recent, err := s.deps.Messages.FetchRecent(ctx, s.roomID, s.deps.ReplayDepth)
	if err != nil {
		return err
	}

	// FetchRecent is newest-first; replay oldest-first.
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		env := domain.NewEnvelope(m.Content, m.Username, m.Timestamp)
		if err := s.conn.SendJSON(env); err != nil {
			return err
		}
	}
	return nil
}

// handleInbound persists one inbound payload and fans it out. Persistence
// must succeed before any delivery; a failed write aborts the session with
// nothing broadcast.
func (s *Session) handleInbound(ctx context.Context, content string) error {
	msg := &domain.Message{
		Content: content,
		UserID:  s.identity.UserID,
		RoomID:  s.roomID,
	}
	if err := s.deps.Messages.Create(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Uint(log.FieldRoomID, s.roomID).Msg("message persistence failed, closing session")
		return err
	}

	// The envelope carries the persisted timestamp, not the arrival time.
	env := domain.NewEnvelope(msg.Content, s.identity.Username, msg.Timestamp)
	s.deps.Broadcaster.Broadcast(s.roomID, env)
	return nil
}

// close is the single idempotent cleanup routine all exit paths converge
// on. It must be safe even when authentication never completed: the
// registry is only touched in states where the identity is bound.
func (s *Session) close(ctx context.Context) {
	s.cleanup.Do(func() {
		if s.state >= StateJoined {
			s.deps.Registry.Deregister(s.roomID, s.identity.UserID, s.conn)
			audit.Log(ctx, audit.ActionLeaveRoom, s.identity.UserID, "left room")
		}
		s.state = StateClosed
		s.conn.Close()
	})
}
