package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a named entry in the persistent room directory. Live membership
// is tracked separately by the in-memory registry; joining over the
// signaling channel does not require a directory entry.
type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func NewRoom(name string) *Room {
	return &Room{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
