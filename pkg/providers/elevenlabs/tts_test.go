package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeCollectsChunksUntilFinal(t *testing.T) {
	textsCh := make(chan []string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/voice-1/stream-input"))
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		var texts []string
		for i := 0; i < 3; i++ {
			var msg map[string]any
			require.NoError(t, conn.ReadJSON(&msg))
			texts = append(texts, msg["text"].(string))
		}
		textsCh <- texts
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("ID3a"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("bc")), "isFinal": false})
		_ = conn.WriteJSON(map[string]any{"audio": nil, "isFinal": true})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "secret", VoiceID: "voice-1", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	clip, err := s.Synthesize(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, audio.FormatMP3, clip.Format)
	assert.Equal(t, "ID3abc", string(clip.Data))
	assert.Equal(t, []string{" ", "Hello there ", ""}, <-textsCh)
}

func TestSynthesizeMissingConfig(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), "hi")
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonTTSConnect))
}

func TestSynthesizeServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		var msg map[string]any
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"error": "quota_exceeded", "message": "out of credits"})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "k", VoiceID: "v", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	_, err := s.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonSynthesis))
	assert.Contains(t, err.Error(), "out of credits")
}
