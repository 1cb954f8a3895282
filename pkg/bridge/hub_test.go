package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/jarvis/pkg/conversation"
	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSpeaker) Speak(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *recordingSpeaker) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func newTestHub(t *testing.T, buffer int) (*Hub, *httptest.Server, *upload.Slot, *recordingSpeaker) {
	t.Helper()
	slot := &upload.Slot{}
	sp := &recordingSpeaker{}
	h := New(Options{
		CommandBuffer: buffer,
		Store:         &upload.Store{Dir: t.TempDir(), Slot: slot},
		Speaker:       sp,
	})
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		_ = h.Close()
		srv.Close()
	})
	return h, srv, slot, sp
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestBroadcastReachesClientsInOrder(t *testing.T) {
	h, srv, _, _ := newTestHub(t, 4)
	conn := dial(t, srv)
	waitClients(t, h, 1)

	h.Display("Yes?")
	h.SpeechStarted("Yes?")
	h.SpeechEnded("Yes?")
	h.OnStateChange(conversation.StateChange{From: conversation.StateAwakeIdle, To: conversation.StateAsleep, At: time.Now()})

	var types []EventType
	for i := 0; i < 5; i++ {
		types = append(types, readEvent(t, conn).Type)
	}
	assert.Equal(t, []EventType{EventDisplay, EventSpeechStart, EventSpeechEnd, EventState, EventSleep}, types)
}

func TestWebsocketTextCommandBecomesPendingCommand(t *testing.T) {
	h, srv, _, _ := newTestHub(t, 4)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "text_command", "text": "  open youtube "}))

	select {
	case cmd := <-h.Commands():
		assert.Equal(t, "open youtube", cmd.RawText)
		assert.Equal(t, skill.SourceText, cmd.Source)
		assert.NotEmpty(t, cmd.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
	}
}

func TestWebsocketUploadFillsSlotAndPrompts(t *testing.T) {
	_, srv, slot, sp := newTestHub(t, 4)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "upload", "filename": "../notes.txt", "file_data": "aGVsbG8", "mime_type": "text/plain",
	}))

	require.Eventually(t, func() bool { _, ok := slot.Peek(); return ok }, 2*time.Second, 5*time.Millisecond)
	f, _ := slot.Peek()
	assert.Equal(t, "notes.txt", f.Filename)
	require.Eventually(t, func() bool { return len(sp.said()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Received notes.txt. What should I do with it? You can tell me by voice, or type your command in the chatbox.", sp.said()[0])
}

func TestCommandEndpointAnswers503WhenFull(t *testing.T) {
	_, srv, _, _ := newTestHub(t, 1)

	post := func(body string) int {
		resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusAccepted, post(`{"text":"what time is it"}`))
	assert.Equal(t, http.StatusServiceUnavailable, post(`{"text":"and now"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"text":"   "}`))
	assert.Equal(t, http.StatusBadRequest, post(`not json`))
}

func TestCommandEndpointAcceptsPeerAgentShape(t *testing.T) {
	h, srv, _, _ := newTestHub(t, 2)
	resp, err := http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(`{"command":"schedule meeting"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	cmd := <-h.Commands()
	assert.Equal(t, "schedule meeting", cmd.RawText)
}

func TestUploadEndpoint(t *testing.T) {
	_, srv, slot, _ := newTestHub(t, 2)
	body, _ := json.Marshal(map[string]string{"filename": "marks.xlsx", "file_data": "eA==", "mime_type": "application/vnd.ms-excel"})

	resp, err := http.Post(srv.URL+"/api/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f, ok := slot.Peek()
	require.True(t, ok)
	assert.Equal(t, ".xlsx", f.Ext())

	resp, err = http.Post(srv.URL+"/api/upload", "application/json", strings.NewReader(`{"filename":"x.txt","file_data":"%%%"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := New(Options{})
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	h.clients[c] = struct{}{}

	h.Display("one")
	h.Display("two")

	assert.Equal(t, 0, h.Clients())
	select {
	case <-c.done:
	default:
		t.Fatal("slow client not closed")
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h, srv, _, _ := newTestHub(t, 1)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nil metrics serve 404")

	require.NoError(t, h.Close())
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
