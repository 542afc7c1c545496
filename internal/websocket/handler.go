package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection with the hub and blocks until it closes.
func ServeWs(hub *Hub, conn *websocket.Conn, tenant, deviceID string) {
	client := NewClient(hub, conn, tenant, deviceID)
	hub.Connect(client)

	go client.writePump()
	client.readPump()
}
