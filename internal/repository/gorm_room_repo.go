package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrRoomExists
		}
		l.Error().Err(err).Msg("failed to create room in db")
		return err
	}

	room.ID = model.ID
	l.Debug().Uint(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id uint) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List retrieves all rooms.
func (r *GormRoomRepository) List(ctx context.Context) ([]domain.Room, error) {
	var models []domain.RoomModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}

	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms, nil
}
