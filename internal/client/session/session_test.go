package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/domain/signal"
)

type fakeTransport struct {
	calls     []string
	remoteSet bool
	added     []string
	failOn    map[string]error
	offerErr  error
}

func (f *fakeTransport) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	f.calls = append(f.calls, "createOffer")
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeTransport) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	f.calls = append(f.calls, "createAnswer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeTransport) SetLocalDescription(_ context.Context, desc webrtc.SessionDescription) error {
	f.calls = append(f.calls, "setLocal:"+desc.Type.String())
	return nil
}

func (f *fakeTransport) SetRemoteDescription(_ context.Context, desc webrtc.SessionDescription) error {
	f.calls = append(f.calls, "setRemote:"+desc.Type.String())
	f.remoteSet = true
	return nil
}

func (f *fakeTransport) AddCandidate(_ context.Context, c webrtc.ICECandidateInit) error {
	f.calls = append(f.calls, "addCandidate:"+c.Candidate)
	if err, ok := f.failOn[c.Candidate]; ok {
		return err
	}
	f.added = append(f.added, c.Candidate)
	return nil
}

func (f *fakeTransport) HasRemoteDescription() bool { return f.remoteSet }

func (f *fakeTransport) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

type fakeChannel struct {
	incoming chan *signal.Envelope
	sent     []any
	closed   bool
	sendErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{incoming: make(chan *signal.Envelope, 16)}
}

func (c *fakeChannel) Send(v any) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeChannel) Incoming() <-chan *signal.Envelope { return c.incoming }

func (c *fakeChannel) Close() { c.closed = true }

func (c *fakeChannel) push(t *testing.T, raw string) {
	t.Helper()

	env, err := signal.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	c.incoming <- env
}

// runSession feeds the raw relay messages through a full Run loop and
// returns once the session observed the channel closing.
func runSession(t *testing.T, name string, transport *fakeTransport, raws ...string) (*Session, *fakeChannel) {
	t.Helper()

	ch := newFakeChannel()
	s := New(Config{LocalName: name, Transport: transport, Channel: ch})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	for _, raw := range raws {
		ch.push(t, raw)
	}
	close(ch.incoming)

	if err := <-errCh; !errors.Is(err, ErrChannelLost) {
		t.Fatalf("Run returned %v, want ErrChannelLost", err)
	}

	return s, ch
}

func candidateJSON(c string) string {
	return fmt.Sprintf(`{"candidate":%q,"sdpMid":"0","sdpMLineIndex":0}`, c)
}

func TestRun_AnnouncesJoinFirst(t *testing.T) {
	_, ch := runSession(t, "alice", &fakeTransport{})

	if len(ch.sent) == 0 {
		t.Fatal("nothing sent")
	}
	join, ok := ch.sent[0].(signal.Join)
	if !ok {
		t.Fatalf("first message is %T, want signal.Join", ch.sent[0])
	}
	if join.Type != signal.TypeJoin || join.User != "alice" {
		t.Fatalf("unexpected join message: %+v", join)
	}
}

func TestSecondJoinerBecomesOfferer(t *testing.T) {
	transport := &fakeTransport{}
	s, ch := runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
	)

	if s.Role() != RoleOfferer {
		t.Fatalf("role = %v, want offerer", s.Role())
	}

	want := []string{"createOffer", "setLocal:offer"}
	if fmt.Sprint(transport.calls) != fmt.Sprint(want) {
		t.Fatalf("transport calls = %v, want %v", transport.calls, want)
	}

	// join plus exactly one offer on the wire.
	if len(ch.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(ch.sent))
	}
	desc, ok := ch.sent[1].(webrtc.SessionDescription)
	if !ok || desc.Type != webrtc.SDPTypeOffer {
		t.Fatalf("second message = %#v, want an offer", ch.sent[1])
	}
}

func TestFirstJoinerAnswersWithoutOffering(t *testing.T) {
	transport := &fakeTransport{}
	s, ch := runSession(t, "alice", transport,
		`{"type":"userList","users":["alice"]}`,
		`{"type":"userList","users":["alice","bob"]}`,
		`{"type":"offer","sdp":"offer-sdp"}`,
	)

	if s.Role() != RoleAnswerer {
		t.Fatalf("role = %v, want answerer", s.Role())
	}

	want := []string{"setRemote:offer", "createAnswer", "setLocal:answer"}
	if fmt.Sprint(transport.calls) != fmt.Sprint(want) {
		t.Fatalf("transport calls = %v, want %v", transport.calls, want)
	}

	for _, sent := range ch.sent {
		if desc, ok := sent.(webrtc.SessionDescription); ok && desc.Type == webrtc.SDPTypeOffer {
			t.Fatal("first joiner sent an offer")
		}
	}
}

func TestCandidatesBufferedUntilAnswer_AppliedInOrder(t *testing.T) {
	transport := &fakeTransport{}
	_, _ = runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
		candidateJSON("cand-1"),
		candidateJSON("cand-2"),
		candidateJSON("cand-3"),
		`{"type":"answer","sdp":"answer-sdp"}`,
	)

	want := []string{"cand-1", "cand-2", "cand-3"}
	if fmt.Sprint(transport.added) != fmt.Sprint(want) {
		t.Fatalf("candidates applied = %v, want %v", transport.added, want)
	}

	// None of them may land before the remote description.
	for i, call := range transport.calls {
		if call == "setRemote:answer" {
			break
		}
		if i == len(transport.calls)-1 {
			t.Fatal("remote description never set")
		}
		if call[:3] == "add" {
			t.Fatalf("candidate applied before remote description: %v", transport.calls)
		}
	}
}

func TestCandidatesBufferedUntilOffer_AnswererSide(t *testing.T) {
	transport := &fakeTransport{}
	_, _ = runSession(t, "alice", transport,
		candidateJSON("early"),
		`{"type":"offer","sdp":"offer-sdp"}`,
	)

	if fmt.Sprint(transport.added) != fmt.Sprint([]string{"early"}) {
		t.Fatalf("candidates applied = %v, want [early]", transport.added)
	}

	want := []string{"setRemote:offer", "addCandidate:early", "createAnswer", "setLocal:answer"}
	if fmt.Sprint(transport.calls) != fmt.Sprint(want) {
		t.Fatalf("transport calls = %v, want %v", transport.calls, want)
	}
}

func TestCandidateAfterRemoteDescriptionAppliedImmediately(t *testing.T) {
	transport := &fakeTransport{}
	_, _ = runSession(t, "alice", transport,
		`{"type":"offer","sdp":"offer-sdp"}`,
		candidateJSON("late"),
	)

	if fmt.Sprint(transport.added) != fmt.Sprint([]string{"late"}) {
		t.Fatalf("candidates applied = %v, want [late]", transport.added)
	}
}

func TestRejectedBufferedCandidateDoesNotAbortDrain(t *testing.T) {
	transport := &fakeTransport{
		failOn: map[string]error{"cand-2": errors.New("unparsable")},
	}
	_, _ = runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
		candidateJSON("cand-1"),
		candidateJSON("cand-2"),
		candidateJSON("cand-3"),
		`{"type":"answer","sdp":"answer-sdp"}`,
	)

	want := []string{"cand-1", "cand-3"}
	if fmt.Sprint(transport.added) != fmt.Sprint(want) {
		t.Fatalf("candidates applied = %v, want %v", transport.added, want)
	}
}

func TestOfferWhileOffererIsIgnored(t *testing.T) {
	transport := &fakeTransport{}
	s, ch := runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
		`{"type":"offer","sdp":"glare-offer"}`,
	)

	if s.Role() != RoleOfferer {
		t.Fatalf("role = %v, want offerer", s.Role())
	}
	for _, call := range transport.calls {
		if call == "setRemote:offer" || call == "createAnswer" {
			t.Fatalf("glare offer was processed: %v", transport.calls)
		}
	}
	for _, sent := range ch.sent {
		if desc, ok := sent.(webrtc.SessionDescription); ok && desc.Type == webrtc.SDPTypeAnswer {
			t.Fatal("answer sent for a glare offer")
		}
	}
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	transport := &fakeTransport{}
	_, _ = runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
		`{"type":"answer","sdp":"answer-sdp"}`,
		`{"type":"answer","sdp":"stale-answer"}`,
	)

	var remotes int
	for _, call := range transport.calls {
		if call == "setRemote:answer" {
			remotes++
		}
	}
	if remotes != 1 {
		t.Fatalf("remote description set %d times, want 1", remotes)
	}
}

func TestAnswerWhileRolelessIgnored(t *testing.T) {
	transport := &fakeTransport{}
	s, _ := runSession(t, "alice", transport,
		`{"type":"answer","sdp":"stray"}`,
	)

	if s.Role() != RoleUndecided {
		t.Fatalf("role = %v, want undecided", s.Role())
	}
	if len(transport.calls) != 0 {
		t.Fatalf("unexpected transport calls: %v", transport.calls)
	}
}

func TestRoleDecidedAtMostOnce(t *testing.T) {
	transport := &fakeTransport{}
	s, _ := runSession(t, "bob", transport,
		`{"type":"userList","users":["alice","bob"]}`,
		`{"type":"userList","users":["alice","bob"]}`,
	)

	if s.Role() != RoleOfferer {
		t.Fatalf("role = %v, want offerer", s.Role())
	}

	var offers int
	for _, call := range transport.calls {
		if call == "createOffer" {
			offers++
		}
	}
	if offers != 1 {
		t.Fatalf("created %d offers, want 1", offers)
	}
}

// Role assignment must not depend on display names: two participants who
// picked the same name still end up with exactly one offerer, because only
// the second joiner sees two members in its very first userList.
func TestIdenticalDisplayNamesStillYieldOneOfferer(t *testing.T) {
	firstJoiner := &fakeTransport{}
	s1, _ := runSession(t, "x", firstJoiner,
		`{"type":"userList","users":["x"]}`,
		`{"type":"userList","users":["x","x"]}`,
	)

	secondJoiner := &fakeTransport{}
	s2, _ := runSession(t, "x", secondJoiner,
		`{"type":"userList","users":["x","x"]}`,
	)

	if s1.Role() != RoleUndecided {
		t.Fatalf("first joiner role = %v, want undecided until the offer arrives", s1.Role())
	}
	if s2.Role() != RoleOfferer {
		t.Fatalf("second joiner role = %v, want offerer", s2.Role())
	}

	var offers int
	for _, call := range append(firstJoiner.calls, secondJoiner.calls...) {
		if call == "createOffer" {
			offers++
		}
	}
	if offers != 1 {
		t.Fatalf("created %d offers across both participants, want 1", offers)
	}
}

func TestLateTwoMemberListDoesNotPromoteFirstJoiner(t *testing.T) {
	transport := &fakeTransport{}
	s, _ := runSession(t, "alice", transport,
		`{"type":"userList","users":["alice"]}`,
		`{"type":"userList","users":["alice","bob"]}`,
	)

	if s.Role() != RoleUndecided {
		t.Fatalf("role = %v, want undecided", s.Role())
	}
	if len(transport.calls) != 0 {
		t.Fatalf("unexpected transport calls: %v", transport.calls)
	}
}

func TestRoleAndStateReadableWhileRunning(t *testing.T) {
	transport := &fakeTransport{}
	ch := newFakeChannel()
	s := New(Config{LocalName: "bob", Transport: transport, Channel: ch})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	readsDone := make(chan struct{})
	go func() {
		defer close(readsDone)
		for i := 0; i < 100; i++ {
			_ = s.Role()
			_ = s.State()
		}
	}()

	ch.push(t, `{"type":"userList","users":["alice","bob"]}`)
	<-readsDone
	close(ch.incoming)

	if err := <-errCh; !errors.Is(err, ErrChannelLost) {
		t.Fatalf("Run returned %v, want ErrChannelLost", err)
	}
	if s.Role() != RoleOfferer {
		t.Fatalf("role = %v, want offerer", s.Role())
	}
}

func TestSoloUserListDecidesNothing(t *testing.T) {
	transport := &fakeTransport{}
	s, _ := runSession(t, "alice", transport,
		`{"type":"userList","users":["alice"]}`,
	)

	if s.Role() != RoleUndecided {
		t.Fatalf("role = %v, want undecided", s.Role())
	}
}

func TestChannelLossNotifies(t *testing.T) {
	var reason string
	ch := newFakeChannel()
	s := New(Config{
		LocalName: "alice",
		Transport: &fakeTransport{},
		Channel:   ch,
		Notify:    func(r string) { reason = r },
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	close(ch.incoming)

	if err := <-errCh; !errors.Is(err, ErrChannelLost) {
		t.Fatalf("Run returned %v, want ErrChannelLost", err)
	}
	if reason == "" {
		t.Fatal("notify callback not invoked")
	}
}

func TestCloseReleasesTransportAndChannel(t *testing.T) {
	transport := &fakeTransport{}
	ch := newFakeChannel()
	s := New(Config{LocalName: "alice", Transport: transport, Channel: ch})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	s.Close()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned %v, want nil after Close", err)
	}

	if !ch.closed {
		t.Fatal("signaling channel not closed")
	}
	if len(transport.calls) == 0 || transport.calls[len(transport.calls)-1] != "close" {
		t.Fatalf("transport not closed: %v", transport.calls)
	}

	// Candidates surfacing after shutdown are discarded, not sent.
	sentBefore := len(ch.sent)
	s.SubmitLocalCandidate(webrtc.ICECandidateInit{Candidate: "stale"})
	if len(ch.sent) != sentBefore {
		t.Fatal("candidate sent after Close")
	}
}

func TestLocalCandidateForwardedVerbatim(t *testing.T) {
	transport := &fakeTransport{}
	ch := newFakeChannel()
	s := New(Config{LocalName: "alice", Transport: transport, Channel: ch})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	s.SubmitLocalCandidate(webrtc.ICECandidateInit{Candidate: "cand-local"})
	close(ch.incoming)
	<-errCh

	var found bool
	for _, sent := range ch.sent {
		if c, ok := sent.(webrtc.ICECandidateInit); ok && c.Candidate == "cand-local" {
			found = true
		}
	}
	if !found {
		t.Fatalf("local candidate not sent, got %#v", ch.sent)
	}
}
