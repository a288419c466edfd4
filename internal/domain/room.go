package domain

// Room groups participants and message history under a name.
type Room struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=200"`
	Description string `json:"description"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToResponse converts Room to RoomResponse.
func (r *Room) ToResponse() RoomResponse {
	return RoomResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
}
