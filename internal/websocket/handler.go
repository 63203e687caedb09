package websocket

import (
	"encoding/json"

	"docchat-be/pkg/rag/ingestion"

	"github.com/gofiber/websocket/v2"
)

// ServeWs follows one session's ingestion until the peer goes away. current,
// when known, is written first so late subscribers see where the job stands.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string, current *ingestion.Status) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, Send: make(chan []byte, 32)}
	if current != nil {
		data, _ := json.Marshal(Frame{Type: FrameIngestion, Data: *current})
		client.Send <- data
	}
	if !hub.join(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
