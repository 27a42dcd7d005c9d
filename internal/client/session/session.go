package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/application/constant"
	"github.com/peercall/peercall/internal/domain/signal"
)

// ErrChannelLost reports that the signaling channel closed or errored while
// the session was still running. There is no automatic reconnection.
var ErrChannelLost = errors.New("signaling channel lost")

// Role is decided at most once per session and never changes afterwards.
type Role int

const (
	RoleUndecided Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "undecided"
	}
}

type State int

const (
	StateIdle State = iota
	StateAwaitingRole
	StateOffering
	StateAnswering
	StateConnected
)

// Transport is the peer-to-peer capability object the session drives. Its
// operations may suspend and may fail; the session never touches SDP or
// candidate internals itself.
type Transport interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error
	AddCandidate(ctx context.Context, candidate webrtc.ICECandidateInit) error
	HasRemoteDescription() bool
	Close() error
}

// Channel is the session's view of the signaling connection.
type Channel interface {
	Send(v any) error
	Incoming() <-chan *signal.Envelope
	Close()
}

type Config struct {
	// LocalName is the display name announced in the join message. The
	// role decision compares it against the broadcast member list.
	LocalName string

	Transport Transport
	Channel   Channel

	// Notify surfaces session-fatal conditions to the user-facing layer.
	// Optional.
	Notify func(reason string)
}

// Session drives the offer/answer/candidate exchange for one call.
//
// Every stimulus - relay message, locally discovered candidate, inbound
// stream, close request - is funneled into a single event queue consumed
// by one goroutine, so events are processed strictly in arrival order with
// no concurrent re-entry.
type Session struct {
	name      string
	transport Transport
	channel   Channel
	notify    func(string)

	events chan event
	done   chan struct{}
	once   sync.Once

	// Loop-owned state; written only by Run's goroutine. Role and state
	// are additionally readable from other goroutines through the
	// mutex-guarded accessors.
	ctx         context.Context
	stateMu     sync.Mutex
	state       State
	role        Role
	sawUserList bool
	pending     []webrtc.ICECandidateInit
}

type event interface{ isEvent() }

type (
	envelopeEvent       struct{ env *signal.Envelope }
	localCandidateEvent struct {
		candidate webrtc.ICECandidateInit
	}
	inboundStreamEvent struct{}
	channelLostEvent   struct{}
)

func (envelopeEvent) isEvent()       {}
func (localCandidateEvent) isEvent() {}
func (inboundStreamEvent) isEvent()  {}
func (channelLostEvent) isEvent()    {}

func New(cfg Config) *Session {
	notify := cfg.Notify
	if notify == nil {
		notify = func(string) {}
	}

	return &Session{
		name:      cfg.LocalName,
		transport: cfg.Transport,
		channel:   cfg.Channel,
		notify:    notify,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		state:     StateIdle,
		role:      RoleUndecided,
	}
}

// Run announces the join and processes events until the session is closed,
// the context is cancelled, or the signaling channel is lost.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx

	if err := s.channel.Send(signal.NewJoin(s.name)); err != nil {
		return ErrChannelLost
	}
	s.setState(StateAwaitingRole)

	go s.forwardIncoming()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			return nil

		case ev := <-s.events:
			if lost := s.handleEvent(ev); lost {
				s.notify("signaling channel lost")
				return ErrChannelLost
			}
		}
	}
}

// Close releases the transport and the signaling channel. In-flight
// operations may still complete; their results are discarded.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.channel.Close()

		if err := s.transport.Close(); err != nil {
			slog.Warn("close transport", slog.Any(constant.Error, err))
		}
	})
}

// SubmitLocalCandidate feeds a locally discovered candidate into the event
// queue. Called by the transport's callback.
func (s *Session) SubmitLocalCandidate(candidate webrtc.ICECandidateInit) {
	select {
	case s.events <- localCandidateEvent{candidate: candidate}:
	case <-s.done:
	}
}

// SubmitInboundStream signals that remote media started flowing.
func (s *Session) SubmitInboundStream() {
	select {
	case s.events <- inboundStreamEvent{}:
	case <-s.done:
	}
}

// Role and State are safe to call from any goroutine.
func (s *Session) Role() Role {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.role
}

func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.state
}

func (s *Session) setRole(r Role) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.role = r
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.state = st
}

func (s *Session) forwardIncoming() {
	for env := range s.channel.Incoming() {
		select {
		case s.events <- envelopeEvent{env: env}:
		case <-s.done:
			return
		}
	}

	select {
	case s.events <- channelLostEvent{}:
	case <-s.done:
	}
}

func (s *Session) handleEvent(ev event) (channelLost bool) {
	switch e := ev.(type) {
	case envelopeEvent:
		s.handleEnvelope(e.env)

	case localCandidateEvent:
		s.handleLocalCandidate(e.candidate)

	case inboundStreamEvent:
		slog.Info("inbound media stream available")
		s.setState(StateConnected)

	case channelLostEvent:
		return true
	}

	return false
}

func (s *Session) handleEnvelope(env *signal.Envelope) {
	switch env.Kind {
	case signal.KindUserList:
		s.handleUserList(env.UserList.Users)

	case signal.KindOffer:
		s.handleOffer(*env.Description)

	case signal.KindAnswer:
		s.handleAnswer(*env.Description)

	case signal.KindCandidate:
		s.handleRemoteCandidate(*env.Candidate)

	default:
		slog.Warn("unexpected relay message", slog.String("kind", env.Kind.String()))
	}
}

// handleUserList applies the role decision rule: the relay sends every
// participant its own join broadcast first, so only the second joiner sees
// two members in the very first userList it receives. That participant
// becomes the offerer. Display names take no part in the decision, so
// colliding names cannot produce two offerers. The first joiner stays
// roleless until the offer arrives.
func (s *Session) handleUserList(users []string) {
	slog.Info("room membership update", slog.Any("users", users))

	first := !s.sawUserList
	s.sawUserList = true

	if s.role != RoleUndecided || !first || len(users) != 2 {
		return
	}

	s.setRole(RoleOfferer)
	s.setState(StateOffering)

	offer, err := s.transport.CreateOffer(s.ctx)
	if err != nil {
		slog.Error("create offer", slog.Any(constant.Error, err))
		s.notify("failed to start the call")
		return
	}

	if err := s.transport.SetLocalDescription(s.ctx, offer); err != nil {
		slog.Error("set local description", slog.Any(constant.Error, err))
		s.notify("failed to start the call")
		return
	}

	if err := s.channel.Send(offer); err != nil {
		slog.Warn("offer not sent, channel closed", slog.Any(constant.Error, err))
	}
}

func (s *Session) handleOffer(desc webrtc.SessionDescription) {
	// A received offer while we hold the offerer role is glare; the rule
	// is to ignore it and let our own offer win. Repeat offers after the
	// answerer role is decided are ignored the same way.
	if s.role != RoleUndecided {
		slog.Info("ignoring offer, role already decided", slog.String("role", s.role.String()))
		return
	}

	s.setRole(RoleAnswerer)
	s.setState(StateAnswering)

	if err := s.transport.SetRemoteDescription(s.ctx, desc); err != nil {
		slog.Error("set remote description", slog.Any(constant.Error, err))
		s.notify("failed to accept the call")
		return
	}

	s.drainPending()

	answer, err := s.transport.CreateAnswer(s.ctx)
	if err != nil {
		slog.Error("create answer", slog.Any(constant.Error, err))
		s.notify("failed to accept the call")
		return
	}

	if err := s.transport.SetLocalDescription(s.ctx, answer); err != nil {
		slog.Error("set local description", slog.Any(constant.Error, err))
		s.notify("failed to accept the call")
		return
	}

	if err := s.channel.Send(answer); err != nil {
		slog.Warn("answer not sent, channel closed", slog.Any(constant.Error, err))
	}
}

func (s *Session) handleAnswer(desc webrtc.SessionDescription) {
	if s.role != RoleOfferer {
		slog.Info("ignoring answer, not the offerer")
		return
	}

	if s.transport.HasRemoteDescription() {
		slog.Info("ignoring duplicate answer")
		return
	}

	if err := s.transport.SetRemoteDescription(s.ctx, desc); err != nil {
		slog.Error("set remote description", slog.Any(constant.Error, err))
		s.notify("failed to complete the call")
		return
	}

	s.drainPending()
}

// handleRemoteCandidate applies the standing buffering rule: a candidate is
// handed to the transport only once a remote description exists, otherwise
// it waits in the FIFO buffer. The check runs per message.
func (s *Session) handleRemoteCandidate(candidate webrtc.ICECandidateInit) {
	if !s.transport.HasRemoteDescription() {
		s.pending = append(s.pending, candidate)
		return
	}

	if err := s.transport.AddCandidate(s.ctx, candidate); err != nil {
		slog.Warn("add remote candidate", slog.Any(constant.Error, err))
	}
}

// handleLocalCandidate ships a locally discovered candidate through the
// relay. Candidates surfacing after the channel closed are dropped.
func (s *Session) handleLocalCandidate(candidate webrtc.ICECandidateInit) {
	if err := s.channel.Send(candidate); err != nil {
		slog.Debug("local candidate dropped, channel closed")
	}
}

// drainPending applies the buffered candidates in arrival order. A
// candidate the transport rejects is logged and skipped; the rest still
// apply.
func (s *Session) drainPending() {
	for _, candidate := range s.pending {
		if err := s.transport.AddCandidate(s.ctx, candidate); err != nil {
			slog.Warn("add buffered candidate", slog.Any(constant.Error, err))
		}
	}

	s.pending = nil
}
