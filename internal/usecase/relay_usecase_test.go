package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/peercall/peercall/internal/domain/runtime"
	"github.com/peercall/peercall/internal/domain/signal"
	"github.com/peercall/peercall/internal/infra/adapters/memory"
)

func newRelay() (RelayUsecase, memory.RoomRegistry) {
	registry := memory.NewRoomRegistry()

	return NewRelayUsecase(registry), registry
}

func connectAndJoin(t *testing.T, u RelayUsecase, roomID, name string) *runtime.Participant {
	t.Helper()

	p, err := u.Connect(context.Background(), roomID)
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}

	u.HandleMessage(context.Background(), p, fmt.Appendf(nil, `{"type":"join","user":%q}`, name))

	return p
}

// drain empties the participant's outbound queue without blocking.
func drain(p *runtime.Participant) [][]byte {
	var out [][]byte

	for {
		select {
		case raw := <-p.Out():
			out = append(out, raw)
		default:
			return out
		}
	}
}

func lastUserList(t *testing.T, frames [][]byte) signal.UserList {
	t.Helper()

	if len(frames) == 0 {
		t.Fatal("no frames delivered")
	}

	var list signal.UserList
	if err := json.Unmarshal(frames[len(frames)-1], &list); err != nil {
		t.Fatalf("unmarshal userList: %v", err)
	}
	if list.Type != signal.TypeUserList {
		t.Fatalf("type = %q, want %q", list.Type, signal.TypeUserList)
	}

	return list
}

func TestValidateRoomID(t *testing.T) {
	u, _ := newRelay()

	tests := []struct {
		roomID string
		valid  bool
	}{
		{"room-1", true},
		{"a", true},
		{"under_score", true},
		{strings.Repeat("x", 64), true},
		{"", false},
		{"has space", false},
		{"slash/room", false},
		{strings.Repeat("x", 65), false},
		{"кімната", false},
	}

	for _, tt := range tests {
		err := u.ValidateRoomID(tt.roomID)
		if tt.valid && err != nil {
			t.Errorf("ValidateRoomID(%q) = %v, want nil", tt.roomID, err)
		}
		if !tt.valid && !errors.Is(err, ErrRoomIDInvalid) {
			t.Errorf("ValidateRoomID(%q) = %v, want ErrRoomIDInvalid", tt.roomID, err)
		}
	}
}

func TestJoinBroadcastsUserListToEveryoneIncludingSender(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")

	list := lastUserList(t, drain(alice))
	if fmt.Sprint(list.Users) != fmt.Sprint([]string{"alice"}) {
		t.Fatalf("users = %v, want [alice]", list.Users)
	}

	bob := connectAndJoin(t, u, "room-1", "bob")

	// Both members, the joining sender included, see the same
	// join-ordered list.
	for name, p := range map[string]*runtime.Participant{"alice": alice, "bob": bob} {
		list := lastUserList(t, drain(p))
		if fmt.Sprint(list.Users) != fmt.Sprint([]string{"alice", "bob"}) {
			t.Fatalf("%s sees users = %v, want [alice bob]", name, list.Users)
		}
	}
}

func TestRelayExcludesSenderAndPreservesBytes(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	bob := connectAndJoin(t, u, "room-1", "bob")
	drain(alice)
	drain(bob)

	// Key order and whitespace must survive the relay untouched.
	raw := []byte(`{"sdp":"v=0 mangled sdp",  "type":"offer"}`)
	u.HandleMessage(context.Background(), alice, raw)

	if got := drain(alice); len(got) != 0 {
		t.Fatalf("sender received its own message: %s", got[0])
	}

	got := drain(bob)
	if len(got) != 1 {
		t.Fatalf("receiver got %d frames, want 1", len(got))
	}
	if string(got[0]) != string(raw) {
		t.Fatalf("relayed frame mutated:\n got %s\nwant %s", got[0], raw)
	}
}

func TestCandidateWithoutTypeFieldRelayed(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	bob := connectAndJoin(t, u, "room-1", "bob")
	drain(alice)
	drain(bob)

	raw := []byte(`{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	u.HandleMessage(context.Background(), bob, raw)

	got := drain(alice)
	if len(got) != 1 || string(got[0]) != string(raw) {
		t.Fatalf("candidate not relayed verbatim, got %v", got)
	}
	if rest := drain(bob); len(rest) != 0 {
		t.Fatalf("candidate echoed to sender: %s", rest[0])
	}
}

func TestMalformedMessageDroppedWithoutDisconnect(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	bob := connectAndJoin(t, u, "room-1", "bob")
	drain(alice)
	drain(bob)

	u.HandleMessage(context.Background(), alice, []byte(`not json at all`))
	u.HandleMessage(context.Background(), alice, []byte(`{"type":"shrug"}`))

	if got := drain(bob); len(got) != 0 {
		t.Fatalf("malformed frame relayed: %s", got[0])
	}

	// The sender's connection keeps working afterwards.
	raw := []byte(`{"type":"offer","sdp":"still alive"}`)
	u.HandleMessage(context.Background(), alice, raw)

	got := drain(bob)
	if len(got) != 1 || string(got[0]) != string(raw) {
		t.Fatalf("relay broken after malformed frame, got %v", got)
	}
}

func TestConnectRejectsInvalidRoomID(t *testing.T) {
	u, registry := newRelay()

	if _, err := u.Connect(context.Background(), "no/slashes"); !errors.Is(err, ErrRoomIDInvalid) {
		t.Fatalf("Connect = %v, want ErrRoomIDInvalid", err)
	}
	if registry.Count() != 0 {
		t.Fatalf("room created for invalid id, count = %d", registry.Count())
	}
}

func TestDisconnectBroadcastsAndReapsEmptyRoom(t *testing.T) {
	u, registry := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	bob := connectAndJoin(t, u, "room-1", "bob")
	drain(alice)
	drain(bob)

	u.Disconnect(context.Background(), bob)

	list := lastUserList(t, drain(alice))
	if fmt.Sprint(list.Users) != fmt.Sprint([]string{"alice"}) {
		t.Fatalf("users after leave = %v, want [alice]", list.Users)
	}
	if registry.Count() != 1 {
		t.Fatalf("room reaped while occupied, count = %d", registry.Count())
	}

	u.Disconnect(context.Background(), alice)

	if registry.Count() != 0 {
		t.Fatalf("empty room not reaped, count = %d", registry.Count())
	}
	if _, ok := registry.Get("room-1"); ok {
		t.Fatal("room still resolvable after reap")
	}
}

func TestSlowConsumerDoesNotBlockRelay(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	bob := connectAndJoin(t, u, "room-1", "bob")
	drain(alice)
	drain(bob)

	// Saturate bob's outbound queue.
	for bob.Enqueue([]byte(`{"type":"offer","sdp":"filler"}`)) {
	}

	// Must return immediately and drop for bob only.
	done := make(chan struct{})
	go func() {
		u.HandleMessage(context.Background(), alice, []byte(`{"type":"offer","sdp":"fresh"}`))
		close(done)
	}()
	<-done
}

func TestJoinerDoesNotReceiveEarlierSignaling(t *testing.T) {
	u, _ := newRelay()

	alice := connectAndJoin(t, u, "room-1", "alice")
	drain(alice)

	// Signaling sent while alone leaves no history for late joiners.
	u.HandleMessage(context.Background(), alice, []byte(`{"type":"offer","sdp":"early"}`))

	bob := connectAndJoin(t, u, "room-1", "bob")

	for _, raw := range drain(bob) {
		var list signal.UserList
		if err := json.Unmarshal(raw, &list); err != nil || list.Type != signal.TypeUserList {
			t.Fatalf("late joiner received stale frame: %s", raw)
		}
	}
}
