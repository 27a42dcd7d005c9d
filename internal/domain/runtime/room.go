package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// Room is the live broadcast group for one room id. Membership is an
// ordered slice so that userList broadcasts reproduce join order exactly.
// All mutation and snapshotting happens under the room mutex.
type Room struct {
	ID string

	mu           sync.Mutex
	participants []*Participant
}

func NewRoom(id string) *Room {
	return &Room{ID: id}
}

func (r *Room) Add(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = append(r.participants, p)
}

// Remove takes the participant out of the room and reports whether the
// room is now empty.
func (r *Room) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.participants {
		if p.ID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}

	return len(r.participants) == 0
}

// Snapshot returns the current members in join order.
func (r *Room) Snapshot() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Participant, len(r.participants))
	copy(out, r.participants)

	return out
}

// Names returns the display names of joined members in join order.
// Participants that connected but have not sent their join yet are not
// listed.
func (r *Room) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		if p.Joined() {
			names = append(names, p.Name())
		}
	}

	return names
}

func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.participants)
}
