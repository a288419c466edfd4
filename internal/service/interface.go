package service

import (
	"context"

	"github.com/ymliu/convo/internal/domain"
)

// UserService covers signup and login.
type UserService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.UserResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.TokenResponse, error)
}

// RoomService covers room administration and listing.
type RoomService interface {
	CreateRoom(ctx context.Context, actor domain.Identity, req *domain.CreateRoomRequest) (*domain.RoomResponse, error)
	GetRoom(ctx context.Context, id uint) (*domain.RoomResponse, error)
	ListRooms(ctx context.Context) ([]domain.RoomResponse, error)
}

// HistoryService serves paginated message history.
type HistoryService interface {
	FetchPage(ctx context.Context, roomID uint, skip, limit int) ([]domain.MessageResponse, error)
}
