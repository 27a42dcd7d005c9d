package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/peercall/peercall/internal/application/constant"
	"github.com/peercall/peercall/internal/application/metric"
	"github.com/peercall/peercall/internal/domain/runtime"
	"github.com/peercall/peercall/internal/domain/signal"
	"github.com/peercall/peercall/internal/infra/adapters/memory"
)

// ErrRoomIDInvalid rejects a connection before the channel is established.
var ErrRoomIDInvalid = errors.New("invalid room id")

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RelayUsecase routes signaling messages between the members of a room and
// publishes membership changes. It never inspects SDP or candidate
// contents; everything except join is forwarded byte-verbatim.
type RelayUsecase interface {
	ValidateRoomID(roomID string) error
	Connect(ctx context.Context, roomID string) (*runtime.Participant, error)
	HandleMessage(ctx context.Context, p *runtime.Participant, raw []byte)
	Disconnect(ctx context.Context, p *runtime.Participant)
}

type relayUsecase struct {
	registry memory.RoomRegistry
}

func NewRelayUsecase(registry memory.RoomRegistry) RelayUsecase {
	return &relayUsecase{registry: registry}
}

func (u *relayUsecase) ValidateRoomID(roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return fmt.Errorf("%w: %q", ErrRoomIDInvalid, roomID)
	}

	return nil
}

// Connect registers a new participant connection under the room. Unknown
// room ids are created lazily; no message is sent until the join arrives.
func (u *relayUsecase) Connect(ctx context.Context, roomID string) (*runtime.Participant, error) {
	if err := u.ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	room := u.registry.GetOrCreate(roomID)

	p := runtime.NewParticipant(roomID)
	room.Add(p)

	metric.IncrementWSActiveConnections()

	slog.Info(
		"participant connected",
		slog.String(constant.RoomID, roomID),
		slog.Any(constant.ParticipantID, p.ID),
	)

	return p, nil
}

// HandleMessage consumes one inbound frame. A join registers the display
// name and triggers a userList broadcast to everyone in the room, the
// sender included. Any other recognizable shape, candidate quirk included,
// is relayed unchanged to every other member. Malformed frames are dropped
// with a warning; the connection stays up.
func (u *relayUsecase) HandleMessage(ctx context.Context, p *runtime.Participant, raw []byte) {
	env, err := signal.Decode(raw)
	if err != nil {
		slog.Warn(
			"dropping malformed signaling message",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, p.RoomID),
			slog.Any(constant.ParticipantID, p.ID),
		)
		metric.IncrementDropped("malformed")

		return
	}

	room, ok := u.registry.Get(p.RoomID)
	if !ok {
		slog.Warn(
			"message for unknown room",
			slog.String(constant.RoomID, p.RoomID),
		)

		return
	}

	if env.Kind == signal.KindJoin {
		p.SetName(env.Join.User)

		slog.Info(
			"participant joined",
			slog.String(constant.RoomID, room.ID),
			slog.String(constant.User, env.Join.User),
		)

		u.broadcastUserList(room)

		return
	}

	u.relayToOthers(room, p, env)
}

// Disconnect removes the participant, notifies the remaining members and
// reaps the room when it becomes empty.
func (u *relayUsecase) Disconnect(ctx context.Context, p *runtime.Participant) {
	p.CloseOutbound()

	room, ok := u.registry.Get(p.RoomID)
	if !ok {
		return
	}

	empty := room.Remove(p.ID)

	metric.DecrementWSActiveConnections()

	slog.Info(
		"participant disconnected",
		slog.String(constant.RoomID, room.ID),
		slog.Any(constant.ParticipantID, p.ID),
	)

	if empty {
		u.registry.Remove(room.ID)

		return
	}

	u.broadcastUserList(room)
}

func (u *relayUsecase) broadcastUserList(room *runtime.Room) {
	userList := signal.NewUserList(room.Names())

	raw, err := json.Marshal(userList)
	if err != nil {
		slog.Error("marshal userList", slog.Any(constant.Error, err))

		return
	}

	for _, member := range room.Snapshot() {
		if !member.Enqueue(raw) {
			slog.Warn(
				"userList dropped for slow participant",
				slog.String(constant.RoomID, room.ID),
				slog.Any(constant.ParticipantID, member.ID),
			)
			metric.IncrementDropped("slow_consumer")
		}
	}
}

// relayToOthers forwards the raw frame to every member except the sender.
// Delivery is best-effort and independent per recipient.
func (u *relayUsecase) relayToOthers(room *runtime.Room, sender *runtime.Participant, env *signal.Envelope) {
	for _, member := range room.Snapshot() {
		if member.ID == sender.ID {
			continue
		}

		if !member.Enqueue(env.Raw) {
			slog.Warn(
				"relay dropped for slow participant",
				slog.String(constant.RoomID, room.ID),
				slog.Any(constant.ParticipantID, member.ID),
			)
			metric.IncrementDropped("slow_consumer")

			continue
		}

		metric.IncrementRelayed(env.Kind.String())
	}
}
