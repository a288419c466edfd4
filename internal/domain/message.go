package domain

import "time"

// Message is a stored chat message. Username is joined in from the author
// record on reads; it is not a column of the messages table.
type Message struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint      `json:"user_id"`
	RoomID    uint      `json:"room_id"`
	Username  string    `json:"username,omitempty"`
}

// Envelope is the outbound wire representation of a message on the
// streaming channel.
type Envelope struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// NewEnvelope builds the outbound envelope for a message authored by sender.
func NewEnvelope(content, sender string, ts time.Time) *Envelope {
	return &Envelope{
		Content:   content,
		Sender:    sender,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

// MessageResponse represents a message in history API responses.
type MessageResponse struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint      `json:"user_id"`
	RoomID    uint      `json:"room_id"`
	Username  string    `json:"username"`
}

// ToResponse converts Message to MessageResponse.
func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
		Username:  m.Username,
	}
}
