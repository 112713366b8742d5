package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the hello message after connecting.
	helloWait = 10 * time.Second

	// Maximum message size allowed from peer; frames are the large ones.
	maxMessageSize = 8 << 20
)

// Feed connections authenticate with a ticket in the URL, so any origin may
// connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeFeed upgrades the request to a camera feed. The client must open with
// a hello message; after that it sends binary frames and permission replies,
// and receives control messages for its camera.
func (h *Hub) ServeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", "error", err)
		return
	}

	cam, err := readHello(conn)
	if err != nil {
		h.log.Warn("feed handshake failed", "remote", r.RemoteAddr, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	h.Register(cam)
	go writePump(conn, cam)
	h.readPump(conn, cam)
}

func readHello(conn *websocket.Conn) (*Camera, error) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(helloWait))

	mt, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if mt != websocket.TextMessage {
		return nil, errors.New("expected hello message")
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parsing hello: %w", err)
	}
	if msg.Type != TypeHello {
		return nil, fmt.Errorf("expected hello, got %q", msg.Type)
	}

	var p Profile
	if msg.Profile != nil {
		p = *msg.Profile
	}
	switch p.Sizing {
	case "", SizingAny, SizingRanges, SizingExact:
	default:
		return nil, fmt.Errorf("unknown sizing mode %q", p.Sizing)
	}
	return NewCamera(msg.CameraID, p, msg.Permission), nil
}

// readPump feeds client messages to the camera until the connection drops.
func (h *Hub) readPump(conn *websocket.Conn, cam *Camera) {
	defer func() {
		h.Unregister(cam)
		conn.Close()
	}()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("feed read failed", "camera", cam.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if mt == websocket.BinaryMessage {
			if err := cam.PushFrame(data); err != nil {
				h.log.Debug("dropping frame", "camera", cam.ID, "error", err)
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("ignoring malformed feed message", "camera", cam.ID, "error", err)
			continue
		}
		switch msg.Type {
		case TypePermission:
			cam.Answer(msg.Granted, msg.Error)
		case TypeError:
			cam.ReportError(msg.Error)
		default:
			h.log.Debug("ignoring feed message", "camera", cam.ID, "type", msg.Type)
		}
	}
}

// writePump delivers the camera's control messages and keeps the
// connection alive with pings.
func writePump(conn *websocket.Conn, cam *Camera) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	out := cam.Outbox()
	for {
		select {
		case msg, ok := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
