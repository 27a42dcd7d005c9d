package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peercall/peercall/internal/domain/models"
	"github.com/peercall/peercall/internal/infra/adapters/memory"
	"github.com/peercall/peercall/internal/infra/adapters/postgres/repository"
)

// RoomInfo is a directory entry enriched with live occupancy.
type RoomInfo struct {
	Room      *models.Room `json:"room"`
	Occupancy int          `json:"occupancy"`
}

type RoomUsecase interface {
	CreateRoom(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]RoomInfo, error)
	DeleteRoom(ctx context.Context, id uuid.UUID) error
}

type roomUsecase struct {
	roomRepo repository.RoomRepository
	registry memory.RoomRegistry
}

func NewRoomUsecase(roomRepo repository.RoomRepository, registry memory.RoomRegistry) RoomUsecase {
	return &roomUsecase{roomRepo: roomRepo, registry: registry}
}

func (uc *roomUsecase) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	room := models.NewRoom(name)

	if err := uc.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	return room, nil
}

func (uc *roomUsecase) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	rooms, err := uc.roomRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, RoomInfo{
			Room:      room,
			Occupancy: uc.registry.Occupancy(room.ID.String()),
		})
	}

	return infos, nil
}

func (uc *roomUsecase) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return uc.roomRepo.Delete(ctx, id)
}
