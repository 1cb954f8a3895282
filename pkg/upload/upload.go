package upload

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/jarvis/pkg/errorsx"
)

// File is the most recent upload.
type File struct {
	Path       string
	Filename   string
	Base64     string
	MimeType   string
	UploadedAt time.Time
}

// Ext returns the lowercased extension of the original filename.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Filename))
}

// Slot holds at most one live upload. A new upload replaces the old one.
type Slot struct {
	mu   sync.Mutex
	file *File
}

func (s *Slot) Set(f File) {
	s.mu.Lock()
	s.file = &f
	s.mu.Unlock()
}

// Peek returns the live upload without consuming it.
func (s *Slot) Peek() (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return File{}, false
	}
	return *s.file, true
}

// Take returns and clears the live upload.
func (s *Slot) Take() (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return File{}, false
	}
	f := *s.file
	s.file = nil
	return f, true
}

// TakeIf consumes the live upload only when accept approves it. The check
// and the clear happen under one lock, so an upload is handed to at most one
// caller.
func (s *Slot) TakeIf(accept func(File) bool) (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || (accept != nil && !accept(*s.file)) {
		return File{}, false
	}
	f := *s.file
	s.file = nil
	return f, true
}

func (s *Slot) Clear() {
	s.mu.Lock()
	s.file = nil
	s.mu.Unlock()
}

// Store writes uploads to Dir and publishes them to Slot.
type Store struct {
	Dir  string
	Slot *Slot
	Now  func() time.Time
}

// Save decodes a base64 payload, writes it under a unique name and makes it
// the live upload.
func (s *Store) Save(filename, b64, mime string) (File, error) {
	name, err := SanitizeName(filename)
	if err != nil {
		return File{}, err
	}
	data, err := DecodeBase64(b64)
	if err != nil {
		return File{}, errorsx.Wrap(fmt.Errorf("decode %s: %w", name, err), errorsx.ReasonUploadDecode)
	}
	dir := s.Dir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return File{}, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return File{}, fmt.Errorf("write upload: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	f := File{
		Path:       path,
		Filename:   name,
		Base64:     base64.StdEncoding.EncodeToString(data),
		MimeType:   mime,
		UploadedAt: now(),
	}
	if s.Slot != nil {
		s.Slot.Set(f)
	}
	return f, nil
}

// SanitizeName keeps only the final path element of a client filename.
func SanitizeName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", errorsx.New(errorsx.ReasonUploadDecode, fmt.Sprintf("invalid filename %q", filename))
	}
	return name, nil
}

// DecodeBase64 accepts standard base64 with or without padding, and data
// URLs.
func DecodeBase64(b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if i := strings.Index(b64, ";base64,"); i >= 0 {
		b64 = b64[i+len(";base64,"):]
	}
	if m := len(b64) % 4; m != 0 {
		b64 += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(b64)
}
