package domain

import "time"

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(20);not null;default:'user'"`
	IsActive     bool   `gorm:"not null;default:true"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		IsActive:     m.IsActive,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsActive:     u.IsActive,
	}
}

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"type:varchar(200);uniqueIndex;not null"`
	Description string `gorm:"type:text"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"index;not null"`
	UserID    uint      `gorm:"index;not null"`
	RoomID    uint      `gorm:"index;not null"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
	}
}
