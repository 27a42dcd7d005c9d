package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// outboundQueueSize bounds the per-connection send queue. A participant
// whose queue is full has frames dropped rather than stalling the room.
const outboundQueueSize = 32

// Participant is one live signaling connection. The relay owns the
// connection handle; negotiation state lives entirely on the clients.
type Participant struct {
	ID     uuid.UUID
	RoomID string

	mu     sync.Mutex
	name   string
	out    chan []byte
	closed bool
}

func NewParticipant(roomID string) *Participant {
	return &Participant{
		ID:     uuid.New(),
		RoomID: roomID,
		out:    make(chan []byte, outboundQueueSize),
	}
}

// SetName records the display name announced by the participant's join
// message. Joined returns true once a name is set.
func (p *Participant) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.name = name
}

func (p *Participant) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.name
}

func (p *Participant) Joined() bool {
	return p.Name() != ""
}

// Enqueue places raw bytes on the outbound queue without blocking. It
// reports false when the frame was dropped, either because the queue is
// full or the participant is already closed.
func (p *Participant) Enqueue(raw []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	select {
	case p.out <- raw:
		return true
	default:
		return false
	}
}

// Out is drained by the connection's write pump.
func (p *Participant) Out() <-chan []byte {
	return p.out
}

// CloseOutbound closes the outbound queue, terminating the write pump.
// Safe to call more than once.
func (p *Participant) CloseOutbound() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.out)
}
