package memory

import (
	"sync"

	"github.com/peercall/peercall/internal/application/metric"
	"github.com/peercall/peercall/internal/domain/runtime"
)

// RoomRegistry owns the mapping from room id to live room state. Rooms are
// created lazily on first connect and reaped when the last participant
// leaves.
type RoomRegistry interface {
	GetOrCreate(roomID string) *runtime.Room
	Get(roomID string) (*runtime.Room, bool)
	Remove(roomID string)

	Count() int
	Occupancy(roomID string) int
}

type roomRegistry struct {
	rooms map[string]*runtime.Room
	mu    sync.RWMutex
}

func NewRoomRegistry() RoomRegistry {
	return &roomRegistry{
		rooms: make(map[string]*runtime.Room),
	}
}

func (r *roomRegistry) GetOrCreate(roomID string) *runtime.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, exists := r.rooms[roomID]; exists {
		return room
	}

	room := runtime.NewRoom(roomID)
	r.rooms[roomID] = room

	metric.SetActiveRooms(len(r.rooms))

	return room
}

func (r *roomRegistry) Get(roomID string) (*runtime.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]

	return room, ok
}

func (r *roomRegistry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)

	metric.SetActiveRooms(len(r.rooms))
}

func (r *roomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *roomRegistry) Occupancy(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return 0
	}

	return room.Size()
}
