package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/peercall/peercall/internal/application/config"
	"github.com/peercall/peercall/internal/application/constant"
	"github.com/peercall/peercall/internal/domain/runtime"
	"github.com/peercall/peercall/internal/usecase"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // enough for SDP payloads
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	relayUsecase usecase.RelayUsecase
}

func NewWebSocketHandler(cfg *config.Config, relayUsecase usecase.RelayUsecase) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		relayUsecase: relayUsecase,
	}
}

// Handle serves one participant connection on /ws/:roomId. The target room
// is fixed by the path for the lifetime of the connection.
func (h *WebSocketHandler) Handle(c echo.Context) error {
	roomID := c.Param("roomId")

	if err := h.relayUsecase.ValidateRoomID(roomID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid room id"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}

	p, err := h.relayUsecase.Connect(c.Request().Context(), roomID)
	if err != nil {
		ws.Close()
		return err
	}

	go h.writePump(ws, p)

	defer h.relayUsecase.Disconnect(c.Request().Context(), p)

	ws.SetReadLimit(maxMessageSize)
	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(p, err)
			return nil
		}

		h.relayUsecase.HandleMessage(c.Request().Context(), p, msg)
	}
}

// writePump is the single writer for the connection. It drains the
// participant's outbound queue and keeps the connection alive with pings;
// closing the queue terminates the pump and the connection.
func (h *WebSocketHandler) writePump(ws *websocket.Conn, p *runtime.Participant) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case raw, ok := <-p.Out():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				slog.Error(
					"write to websocket",
					slog.Any(constant.Error, err),
					slog.Any(constant.ParticipantID, p.ID),
				)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleWebsocketError(p *runtime.Participant, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("participant closed websocket", slog.Any(constant.ParticipantID, p.ID))
		default:
			slog.Error("websocket close error", slog.Int("code", closeErr.Code))
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.Error, err),
			slog.Any(constant.ParticipantID, p.ID),
		)
	}
}
