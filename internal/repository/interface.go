package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/ymliu/convo/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomExists     = errors.New("room name already exists")
)

// isUniqueViolation reports whether err is a unique-constraint violation,
// matching the driver messages of postgres, sqlite and mysql.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "Duplicate entry")
}

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// RoomRepository defines the interface for room persistence.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uint) (*domain.Room, error)
	List(ctx context.Context) ([]domain.Room, error)
}

// MessageRepository is the persistence adapter for chat messages. Create
// must complete before the message is handed to the broadcaster.
type MessageRepository interface {
	// Create stores a message, assigning its id and timestamp.
	Create(ctx context.Context, msg *domain.Message) error
	// FetchRecent returns up to limit messages for a room, newest first,
	// with the author username populated.
	FetchRecent(ctx context.Context, roomID uint, limit int) ([]domain.Message, error)
	// FetchPage returns a page of messages for a room, newest first, with
	// the author username populated.
	FetchPage(ctx context.Context, roomID uint, skip, limit int) ([]domain.Message, error)
}
