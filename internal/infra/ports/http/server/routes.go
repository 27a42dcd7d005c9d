package server

import (
	"github.com/labstack/echo/v4"

	"github.com/peercall/peercall/internal/infra/ports/http/handlers"
	"github.com/peercall/peercall/internal/infra/ports/http/middleware"
)

func New(
	roomHandler *handlers.RoomHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	// The signaling channel; the room id is fixed by the path for the
	// lifetime of the connection.
	e.GET("/ws/:roomId", wsHandler.Handle)

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/rooms", roomHandler.ListRoomsHandler)
			v1.POST("/rooms", roomHandler.CreateRoomHandler)
			v1.DELETE("/rooms/:id", roomHandler.DeleteRoomHandler)
		}
	}

	e.Static("/", "web")

	return e
}
