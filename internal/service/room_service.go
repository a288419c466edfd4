package service

import (
	"context"
	"errors"

	"github.com/ymliu/convo/internal/audit"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/pkg/log"
)

// ErrAdminOnly is returned when a non-admin tries an admin operation.
var ErrAdminOnly = errors.New("admins only")

type roomServiceImpl struct {
	repo repository.RoomRepository
}

// NewRoomService creates a new room service.
func NewRoomService(repo repository.RoomRepository) RoomService {
	return &roomServiceImpl{repo: repo}
}

// CreateRoom creates a room. Admin role required.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, actor domain.Identity, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	room := &domain.Room{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionCreateRoom, actor.UserID, room.Name, "room created")

	resp := room.ToResponse()
	return &resp, nil
}

// GetRoom retrieves a room by ID.
func (s *roomServiceImpl) GetRoom(ctx context.Context, id uint) (*domain.RoomResponse, error) {
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := room.ToResponse()
	return &resp, nil
}

// ListRooms retrieves all rooms.
func (s *roomServiceImpl) ListRooms(ctx context.Context) ([]domain.RoomResponse, error) {
	l := log.Ctx(ctx)

	rooms, err := s.repo.List(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list rooms")
		return nil, err
	}

	out := make([]domain.RoomResponse, len(rooms))
	for i := range rooms {
		out[i] = rooms[i].ToResponse()
	}
	return out, nil
}
