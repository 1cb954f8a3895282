// Package bridge connects the runtime to the browser UI: a websocket hub
// that pushes display, speech and state events, and a small HTTP surface for
// typed commands and uploads.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/jarvis/pkg/conversation"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/metrics"
	"github.com/harunnryd/jarvis/pkg/redact"
	"github.com/harunnryd/jarvis/pkg/router"
	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/speech"
	"github.com/harunnryd/jarvis/pkg/upload"
)

var (
	ErrBusy      = errors.New("command queue full")
	ErrEmpty     = errors.New("empty command")
	ErrNoStorage = errors.New("uploads not configured")
)

const (
	DefaultAddr          = "127.0.0.1:8765"
	DefaultCommandBuffer = 8
	defaultSendBuffer    = 32
	writeWait            = 5 * time.Second
)

type EventType string

const (
	EventDisplay     EventType = "display"
	EventSpeechStart EventType = "speech_start"
	EventSpeechEnd   EventType = "speech_end"
	EventState       EventType = "state"
	EventSleep       EventType = "sleep"
	EventError       EventType = "error"
)

// Event is what UI clients receive.
type Event struct {
	Type  EventType `json:"type"`
	Text  string    `json:"text,omitempty"`
	State string    `json:"state,omitempty"`
	Time  time.Time `json:"time"`
}

// Speaker is used to acknowledge uploads aloud.
type Speaker interface {
	Speak(text string)
}

type Options struct {
	Addr           string
	CommandBuffer  int
	SendBuffer     int
	AllowedOrigins []string
	Store          *upload.Store
	Speaker        Speaker
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

// Hub fans events out to websocket clients and turns inbound messages into
// pending commands.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	commands chan router.PendingCommand
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	server  *http.Server

	draining atomic.Bool
}

func New(opts Options) *Hub {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = DefaultCommandBuffer
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Hub{
		opts:     opts,
		commands: make(chan router.PendingCommand, opts.CommandBuffer),
		logger:   logging.NewComponentLogger(opts.Logger, "ui_bridge"),
		clients:  make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetSpeaker wires the upload acknowledgement after construction, since the
// speech engine itself notifies the hub.
func (h *Hub) SetSpeaker(s Speaker) {
	h.mu.Lock()
	h.opts.Speaker = s
	h.mu.Unlock()
}

// Commands delivers typed commands in arrival order.
func (h *Hub) Commands() <-chan router.PendingCommand { return h.commands }

// Handler exposes the UI routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/command", h.handleCommand)
	mux.HandleFunc("/api/upload", h.handleUpload)
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if h.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", h.opts.Metrics.Handler())
	return mux
}

// Start binds the listener and serves until ctx ends or Close is called.
func (h *Hub) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.mu.Lock()
	h.server = srv
	h.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = h.Close()
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("ui_bridge_server_error", "error", err)
		}
	}()
	h.logger.Info("ui_bridge_listening", "addr", ln.Addr().String())
	return nil
}

// Close stops the server and disconnects every client.
func (h *Hub) Close() error {
	if !h.draining.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.Lock()
	srv := h.server
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}

// Clients returns the number of connected UI clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends ev to every client. A client whose buffer is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) Broadcast(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.opts.Now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(b) {
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.logger.Warn("ui_client_dropped", "remote", c.remote)
		c.close()
	}
}

func (h *Hub) Display(text string) { h.Broadcast(Event{Type: EventDisplay, Text: text}) }

func (h *Hub) SpeechStarted(text string) { h.Broadcast(Event{Type: EventSpeechStart, Text: text}) }

func (h *Hub) SpeechEnded(text string) { h.Broadcast(Event{Type: EventSpeechEnd, Text: text}) }

func (h *Hub) OnStateChange(change conversation.StateChange) {
	h.Broadcast(Event{Type: EventState, State: change.To.String(), Time: change.At})
	if change.To == conversation.StateAsleep && change.From != conversation.StateAsleep {
		h.Broadcast(Event{Type: EventSleep, State: change.To.String(), Time: change.At})
	}
}

// SubmitText queues a typed command without blocking.
func (h *Hub) SubmitText(text string) (router.PendingCommand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return router.PendingCommand{}, ErrEmpty
	}
	if h.draining.Load() {
		return router.PendingCommand{}, ErrBusy
	}
	cmd := router.NewPendingCommand(text, skill.SourceText)
	select {
	case h.commands <- cmd:
		h.logger.Info("text_command_received", "id", cmd.ID, "text", redact.Text(text))
		return cmd, nil
	default:
		h.logger.Warn("text_command_rejected", "reason", "queue_full")
		return router.PendingCommand{}, ErrBusy
	}
}

// ReceiveUpload stores a UI upload and asks the user what to do with it.
func (h *Hub) ReceiveUpload(filename, fileData, mimeType string) (upload.File, error) {
	if h.opts.Store == nil {
		return upload.File{}, ErrNoStorage
	}
	f, err := h.opts.Store.Save(filename, fileData, mimeType)
	if err != nil {
		h.logger.Warn("upload_rejected", "filename", redact.Text(filename), "error", err)
		return upload.File{}, err
	}
	h.logger.Info("upload_received", "filename", f.Filename, "path", f.Path)
	h.mu.Lock()
	sp := h.opts.Speaker
	h.mu.Unlock()
	if sp != nil {
		sp.Speak(fmt.Sprintf("Received %s. What should I do with it? You can tell me by voice, or type your command in the chatbox.", f.Filename))
	}
	return f, nil
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

var (
	_ speech.Notifier            = (*Hub)(nil)
	_ conversation.StateListener = (*Hub)(nil)
)
