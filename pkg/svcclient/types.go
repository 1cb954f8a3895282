package svcclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/jarvis/pkg/resilience"
	"github.com/harunnryd/jarvis/pkg/upload"
)

var (
	ErrUnknownFeature = errors.New("unknown service feature")
	ErrCircuitOpen    = errors.New("service circuit open")
)

// Request is the uniform body every file service accepts.
type Request struct {
	Filename string
	FileData string
	MimeType string
	// Fields carries feature-specific values such as topic or level.
	Fields map[string]any
}

func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		body[k] = v
	}
	if r.Filename != "" {
		body["filename"] = r.Filename
	}
	if r.FileData != "" {
		body["file_data"] = r.FileData
	}
	if r.MimeType != "" {
		body["mime_type"] = r.MimeType
	}
	return json.Marshal(body)
}

// Response is the uniform success shape. Only the fields relevant to the
// feature are set.
type Response struct {
	CompletedFilename string     `json:"completed_filename"`
	CompletedFileData string     `json:"completed_file_data"`
	Questions         []Question `json:"questions"`
	Information       string     `json:"information"`
	Solution          string     `json:"solution"`
	Message           string     `json:"message"`
	FormURL           string     `json:"form_url"`
	Error             string     `json:"error"`
}

// HasFile reports whether the response carries a generated file.
func (r Response) HasFile() bool {
	return r.CompletedFileData != ""
}

// SaveCompleted writes the generated file into dir and returns its path.
func (r Response) SaveCompleted(dir string) (string, error) {
	if !r.HasFile() {
		return "", errors.New("response has no generated file")
	}
	name, err := upload.SanitizeName(r.CompletedFilename)
	if err != nil {
		name = "completed_file"
	}
	data, err := upload.DecodeBase64(r.CompletedFileData)
	if err != nil {
		return "", fmt.Errorf("decode generated file: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write generated file: %w", err)
	}
	return path, nil
}

// Question accepts either a bare string or an object with a question field.
type Question string

func (q *Question) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*q = Question(s)
		return nil
	}
	var obj struct {
		Question string `json:"question"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Question != "" {
		*q = Question(obj.Question)
	} else {
		*q = Question(obj.Text)
	}
	return nil
}

// ServiceError is a failure reported by a service.
type ServiceError struct {
	Feature string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service %s: status %d", e.Feature, e.Status)
	}
	return fmt.Sprintf("service %s: status %d: %s", e.Feature, e.Status, e.Message)
}

// Kind classifies the failure for retries: 429 and 5xx are worth retrying.
func (e *ServiceError) Kind() resilience.ErrorKind {
	switch {
	case e.Status == 429:
		return resilience.KindRateLimit
	case e.Status >= 500:
		return resilience.KindServer
	default:
		return resilience.KindClient
	}
}
