package server

import (
	"net/http"

	"kline-cache/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// Re-publishes upstream push notifications to every local WebSocket
// consumer, using the same frame shape the upstream service uses. Local
// consumers reconnecting after a gap catch up through the REST endpoints.
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.connMutex.Lock()
			s.clients[client] = struct{}{}
			s.connMutex.Unlock()

		case client := <-s.unregister:
			s.connMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.connMutex.Unlock()

		case message, ok := <-s.broadcast:
			if !ok {
				return
			}

			s.connMutex.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
					// Message sent successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.connMutex.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------

// Broadcast queues one notification for fan-out. Never blocks the caller:
// when the queue is saturated the frame is dropped, consumers recover
// through the REST endpoints.
func (s *APIServer) Broadcast(notification *models.MNotification) {
	select {
	case s.broadcast <- notification:
	default:
		s.Logger.Warning("Broadcast queue full, dropping %s notification", notification.Notification)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MNotification, 256),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
