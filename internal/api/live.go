package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/integration"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// CORS already allows any origin, the upgrade check follows suit.
var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveHub maintains the set of live clients and broadcasts events to them.
type liveHub struct {
	clients    map[*liveClient]bool
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient

	// done unblocks register and unregister senders once run returns
	done chan struct{}
}

func newLiveHub() *liveHub {
	return &liveHub{
		clients:    make(map[*liveClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		done:       make(chan struct{}),
	}
}

func (h *liveHub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			log.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("Live client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("Live client disconnected")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it
					close(client.send)
					delete(h.clients, client)
					log.Warn().Str("remote", client.conn.RemoteAddr().String()).Msg("Live client send buffer full, removing")
				}
			}
		}
	}
}

// broadcastJSON queues a typed event frame for all clients. Frames are
// dropped when the hub is saturated, the stream carries no history.
func (h *liveHub) broadcastJSON(kind string, payload interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"type":    kind,
		"payload": payload,
	})
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("Failed to marshal live event")
		return
	}

	select {
	case h.broadcast <- message:
	default:
	}
}

// liveClient is a middleman between a websocket connection and the hub.
type liveClient struct {
	hub  *liveHub
	conn *websocket.Conn
	send chan []byte
}

// readPump drains the connection. The stream is one way, reading only
// services pong and close frames.
func (c *liveClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("Live client read error")
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// RunLive runs the live event hub until the context is cancelled
func (s *RESTServer) RunLive(ctx context.Context) error {
	s.hub.run(ctx)
	return nil
}

// NotifyReport pushes a report event to live clients
func (s *RESTServer) NotifyReport(ev integration.ReportEvent) {
	s.hub.broadcastJSON("report", ev)
}

// NotifyProblem pushes a problem transition to live clients
func (s *RESTServer) NotifyProblem(ev integration.ProblemEvent) {
	s.hub.broadcastJSON("problem", ev)
}

// HandleLive upgrades the connection and streams printer events
func (s *RESTServer) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Live upgrade failed")
		return
	}

	client := &liveClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Greet with the current state so clients render immediately.
	if message, err := json.Marshal(map[string]interface{}{
		"type":    "status",
		"payload": s.statusPayload(),
	}); err == nil {
		client.send <- message
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		// The hub already shut down; there is nobody to stream from.
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
