package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/peercall/peercall/internal/domain/models"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Occupancy int       `json:"occupancy"`
	CreatedAt time.Time `json:"created_at"`
}

type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

func NewRoomResponse(room *models.Room, occupancy int) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Occupancy: occupancy,
		CreatedAt: room.CreatedAt,
	}
}
