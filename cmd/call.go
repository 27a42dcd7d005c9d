package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/peercall/peercall/internal/application/constant"
	"github.com/peercall/peercall/internal/client/media"
	"github.com/peercall/peercall/internal/client/session"
	"github.com/peercall/peercall/internal/client/signaling"
)

var (
	callServer string
	callRoom   string
	callName   string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Join a room as a headless calling client",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCall(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	callCmd.Flags().StringVar(&callServer, "server", "http://localhost:3000", "signaling server base URL")
	callCmd.Flags().StringVar(&callRoom, "room", "", "room id to join")
	callCmd.Flags().StringVar(&callName, "name", "", "display name announced to the room")

	_ = callCmd.MarkFlagRequired("room")
	_ = callCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(callCmd)
}

func runCall() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	iceServers, err := fetchICEServers(ctx, callServer)
	if err != nil {
		slog.Warn("fetch ice servers, falling back to default STUN", slog.Any(constant.Error, err))
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	// The transport's callbacks only fire once the session loop runs, so
	// wiring them to a not-yet-assigned session is safe.
	var sess *session.Session

	// Media acquisition failures must surface before any signaling
	// happens, so the transport comes up before the relay is dialed.
	peer, err := media.NewPeer(media.Config{
		ICEServers: iceServers,
		OnLocalCandidate: func(c webrtc.ICECandidateInit) {
			sess.SubmitLocalCandidate(c)
		},
		OnInboundTrack: func(kind string) {
			sess.SubmitInboundStream()
		},
		OnInboundStats: func(s media.InboundStats) {
			slog.Info("inbound audio",
				slog.Uint64("packets", s.Packets),
				slog.Uint64("bytes", s.Bytes),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("acquire media transport: %w", err)
	}

	channel, err := signaling.Dial(ctx, callServer, callRoom)
	if err != nil {
		_ = peer.Close()
		return fmt.Errorf("dial signaling server: %w", err)
	}

	sess = session.New(session.Config{
		LocalName: callName,
		Transport: peer,
		Channel:   channel,
		Notify: func(reason string) {
			fmt.Fprintln(os.Stderr, reason)
		},
	})
	defer sess.Close()

	slog.Info("joining room",
		slog.String(constant.RoomID, callRoom),
		slog.String(constant.User, callName),
	)

	if err := sess.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return nil
}

func fetchICEServers(ctx context.Context, serverURL string) ([]webrtc.ICEServer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimSuffix(serverURL, "/") + "/api/v1/ice"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var servers []webrtc.ICEServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}

	return servers, nil
}
