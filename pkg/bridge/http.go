package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const maxBody = 64 << 20

type commandBody struct {
	Text string `json:"text"`
	// Command is accepted for peer agents that post {"command": ...}.
	Command string `json:"command"`
}

type uploadBody struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
	MimeType string `json:"mime_type"`
}

func (h *Hub) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var body commandBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	text := body.Text
	if strings.TrimSpace(text) == "" {
		text = body.Command
	}
	cmd, err := h.SubmitText(text)
	switch {
	case errors.Is(err, ErrEmpty):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": cmd.ID, "status": "queued"})
	}
}

func (h *Hub) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var body uploadBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	f, err := h.ReceiveUpload(body.Filename, body.FileData, body.MimeType)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNoStorage) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": f.Filename, "status": "stored"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
