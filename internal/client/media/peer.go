package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/application/constant"
)

// InboundStats is reported periodically while remote audio flows.
type InboundStats struct {
	Packets    uint64
	Bytes      uint64
	LastSeq    uint16
	PayloadTyp uint8
}

type Config struct {
	ICEServers []webrtc.ICEServer

	// OnLocalCandidate fires for every candidate ICE gathering discovers.
	OnLocalCandidate func(webrtc.ICECandidateInit)

	// OnInboundTrack fires once when the first remote track arrives.
	OnInboundTrack func(kind string)

	// OnInboundStats fires every statsInterval packets of remote audio.
	// Optional.
	OnInboundStats func(InboundStats)
}

const statsInterval = 500

// Peer wraps a pion peer connection carrying a single opus audio track in
// each direction.
type Peer struct {
	conn  *webrtc.PeerConnection
	audio *webrtc.TrackLocalStaticRTP
	cfg   Config
}

// NewPeer acquires the peer connection and attaches the outbound audio
// track. A failure here means the call cannot start and must surface
// before any signaling happens.
func NewPeer(cfg Config) (*Peer, error) {
	conn, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"peercall",
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	if _, err := conn.AddTrack(audio); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	p := &Peer{conn: conn, audio: audio, cfg: cfg}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if p.cfg.OnLocalCandidate != nil {
			p.cfg.OnLocalCandidate(c.ToJSON())
		}
	})

	conn.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Info("ice connection state changed", slog.String("state", state.String()))
	})

	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Info("remote track started",
			slog.String("kind", track.Kind().String()),
			slog.String("codec", track.Codec().MimeType),
		)

		if p.cfg.OnInboundTrack != nil {
			p.cfg.OnInboundTrack(track.Kind().String())
		}

		go p.readInbound(track)
	})

	return p, nil
}

func (p *Peer) readInbound(track *webrtc.TrackRemote) {
	var stats InboundStats
	pkt := &rtp.Packet{}

	for {
		raw := make([]byte, 1500)
		n, _, err := track.Read(raw)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("read remote track", slog.Any(constant.Error, err))
			}
			return
		}

		if err := pkt.Unmarshal(raw[:n]); err != nil {
			slog.Warn("unmarshal rtp packet", slog.Any(constant.Error, err))
			continue
		}

		stats.Packets++
		stats.Bytes += uint64(len(pkt.Payload))
		stats.LastSeq = pkt.SequenceNumber
		stats.PayloadTyp = pkt.PayloadType

		if p.cfg.OnInboundStats != nil && stats.Packets%statsInterval == 0 {
			p.cfg.OnInboundStats(stats)
		}
	}
}

func (p *Peer) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return offer, nil
}

func (p *Peer) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

func (p *Peer) SetLocalDescription(_ context.Context, desc webrtc.SessionDescription) error {
	if err := p.conn.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

func (p *Peer) SetRemoteDescription(_ context.Context, desc webrtc.SessionDescription) error {
	if err := p.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) AddCandidate(_ context.Context, candidate webrtc.ICECandidateInit) error {
	if err := p.conn.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *Peer) HasRemoteDescription() bool {
	return p.conn.RemoteDescription() != nil
}

// AudioTrack exposes the outbound track so a capture source can write
// opus RTP into it.
func (p *Peer) AudioTrack() *webrtc.TrackLocalStaticRTP {
	return p.audio
}

func (p *Peer) Close() error {
	return p.conn.Close()
}
