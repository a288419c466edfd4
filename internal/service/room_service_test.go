package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
)

// memRoomRepo is an in-memory RoomRepository.
type memRoomRepo struct {
	nextID uint
	rooms  []domain.Room
}

func (r *memRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	for _, existing := range r.rooms {
		if existing.Name == room.Name {
			return repository.ErrRoomExists
		}
	}
	r.nextID++
	room.ID = r.nextID
	r.rooms = append(r.rooms, *room)
	return nil
}

func (r *memRoomRepo) GetByID(ctx context.Context, id uint) (*domain.Room, error) {
	for _, room := range r.rooms {
		if room.ID == id {
			copied := room
			return &copied, nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *memRoomRepo) List(ctx context.Context) ([]domain.Room, error) {
	out := make([]domain.Room, len(r.rooms))
	copy(out, r.rooms)
	return out, nil
}

var (
	adminActor = domain.Identity{UserID: 1, Username: "root", Role: domain.RoleAdmin}
	plainActor = domain.Identity{UserID: 2, Username: "alice", Role: domain.RoleUser}
)

func TestRoomService_CreateRoomAsAdmin(t *testing.T) {
	svc := NewRoomService(&memRoomRepo{})

	room, err := svc.CreateRoom(context.Background(), adminActor, &domain.CreateRoomRequest{
		Name: "general", Description: "the lobby",
	})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if room.ID == 0 || room.Name != "general" {
		t.Errorf("CreateRoom() = %+v", room)
	}
}

func TestRoomService_CreateRoomRejectsNonAdmin(t *testing.T) {
	repo := &memRoomRepo{}
	svc := NewRoomService(repo)

	_, err := svc.CreateRoom(context.Background(), plainActor, &domain.CreateRoomRequest{Name: "general"})
	if !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("CreateRoom() error = %v, want ErrAdminOnly", err)
	}
	if len(repo.rooms) != 0 {
		t.Error("rejected create must not touch the repository")
	}
}

func TestRoomService_CreateRoomDuplicateName(t *testing.T) {
	svc := NewRoomService(&memRoomRepo{})
	ctx := context.Background()

	if _, err := svc.CreateRoom(ctx, adminActor, &domain.CreateRoomRequest{Name: "general"}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	_, err := svc.CreateRoom(ctx, adminActor, &domain.CreateRoomRequest{Name: "general"})
	if !errors.Is(err, repository.ErrRoomExists) {
		t.Errorf("CreateRoom() error = %v, want ErrRoomExists", err)
	}
}

func TestRoomService_GetAndList(t *testing.T) {
	svc := NewRoomService(&memRoomRepo{})
	ctx := context.Background()

	created, err := svc.CreateRoom(ctx, adminActor, &domain.CreateRoomRequest{Name: "general"})
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := svc.CreateRoom(ctx, adminActor, &domain.CreateRoomRequest{Name: "random"}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	got, err := svc.GetRoom(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	if got.Name != "general" {
		t.Errorf("GetRoom() name = %q", got.Name)
	}

	if _, err := svc.GetRoom(ctx, 999); !errors.Is(err, repository.ErrRoomNotFound) {
		t.Errorf("GetRoom(999) error = %v, want ErrRoomNotFound", err)
	}

	rooms, err := svc.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("ListRooms() returned %d rooms, want 2", len(rooms))
	}
}
