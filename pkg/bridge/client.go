package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string

	once sync.Once
	done chan struct{}
}

func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		}
	}
}

// inbound is a message sent by the UI.
type inbound struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
	MimeType string `json:"mime_type"`
}

// ServeHTTP upgrades /ws and reads UI messages until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan []byte, h.opts.SendBuffer),
		remote: r.RemoteAddr,
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("ui_client_connected", "remote", c.remote)
	go c.writeLoop()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
		h.logger.Info("ui_client_disconnected", "remote", c.remote)
	}()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			h.reply(c, "malformed message")
			continue
		}
		switch in.Type {
		case "text_command":
			if _, err := h.SubmitText(in.Text); err != nil {
				h.reply(c, err.Error())
			}
		case "upload":
			if _, err := h.ReceiveUpload(in.Filename, in.FileData, in.MimeType); err != nil {
				h.reply(c, "upload failed: "+err.Error())
			}
		default:
			h.reply(c, "unknown message type")
		}
	}
}

func (h *Hub) reply(c *client, text string) {
	b, err := json.Marshal(Event{Type: EventError, Text: text, Time: h.opts.Now()})
	if err != nil {
		return
	}
	c.enqueue(b)
}
