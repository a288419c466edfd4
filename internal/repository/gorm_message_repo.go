package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ymliu/convo/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create stores a message and assigns its id and timestamp. Callers must
// not deliver a message whose Create returned an error.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := &domain.MessageModel{
		Content:   msg.Content,
		Timestamp: time.Now().UTC(),
		UserID:    msg.UserID,
		RoomID:    msg.RoomID,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	msg.ID = model.ID
	msg.Timestamp = model.Timestamp
	return nil
}

// FetchRecent returns up to limit messages for a room, newest first, with
// the author's username joined in for replay envelopes.
func (r *GormMessageRepository) FetchRecent(ctx context.Context, roomID uint, limit int) ([]domain.Message, error) {
	return r.fetchEnriched(ctx, roomID, 0, limit)
}

// messageRow is the join projection for author-enriched reads.
type messageRow struct {
	ID        uint
	Content   string
	Timestamp time.Time
	UserID    uint
	RoomID    uint
	Username  string
}

// FetchPage returns a page of messages for a room, newest first, each with
// the author's username joined in.
func (r *GormMessageRepository) FetchPage(ctx context.Context, roomID uint, skip, limit int) ([]domain.Message, error) {
	return r.fetchEnriched(ctx, roomID, skip, limit)
}

func (r *GormMessageRepository) fetchEnriched(ctx context.Context, roomID uint, skip, limit int) ([]domain.Message, error) {
	var rows []messageRow
	err := r.db.WithContext(ctx).
		Model(&domain.MessageModel{}).
		Select("messages.id, messages.content, messages.timestamp, messages.user_id, messages.room_id, users.username").
		Joins("JOIN users ON users.id = messages.user_id").
		Where("messages.room_id = ?", roomID).
		Order("messages.timestamp DESC, messages.id DESC").
		Offset(skip).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(rows))
	for i, row := range rows {
		messages[i] = domain.Message{
			ID:        row.ID,
			Content:   row.Content,
			Timestamp: row.Timestamp,
			UserID:    row.UserID,
			RoomID:    row.RoomID,
			Username:  row.Username,
		}
	}
	return messages, nil
}
