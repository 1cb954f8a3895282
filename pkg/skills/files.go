// Package skills holds the command handlers the router dispatches to. Each
// one is a thin adapter over a collaborator: the file micro-services, the
// completion model, Twilio, the browser or the clock.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/svcclient"
	"github.com/harunnryd/jarvis/pkg/upload"
)

// Caller is the part of svcclient.Client the file skills need.
type Caller interface {
	Call(ctx context.Context, feature string, req svcclient.Request) (svcclient.Response, error)
}

// FileSkill sends the uploaded file to one micro-service feature and reports
// whatever the service produced.
type FileSkill struct {
	Feature string
	// Action names the operation in spoken replies, e.g. "summarization".
	Action        string
	RequireUpload bool
	// Extensions restricts accepted uploads, e.g. ".xlsx".
	Extensions       []string
	ExtensionMessage string
	// NoFileFeature is used when there is no upload; the skill then asks for
	// a topic instead.
	NoFileFeature string
	Service       Caller
	OutputDir     string
	Logger        *slog.Logger
}

func (s *FileSkill) Name() string { return s.Feature }

func (s *FileSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	logger := logging.NewComponentLogger(s.Logger, "file_skill")
	slot := env.Uploads()
	file, ok := slot.TakeIf(s.acceptsExt)
	rejected := false
	if !ok && len(s.Extensions) > 0 {
		_, rejected = slot.Peek()
	}

	var body svcclient.Request
	feature := s.Feature
	action := s.Action
	switch {
	case ok:
		body = svcclient.Request{Filename: file.Filename, FileData: file.Base64, MimeType: file.MimeType}
	case rejected:
		return skill.UserError(s.extensionMessage(), "Upload a supported file and try again.")
	case s.NoFileFeature != "":
		topic, err := topicFrom(ctx, env, req, "What topic would you like questions about?")
		if err != nil {
			return skill.Failed("", err)
		}
		if topic == "" {
			return skill.UserError("No topic provided. Cannot generate questions.", "")
		}
		feature = s.NoFileFeature
		action = action + " without file"
		body = svcclient.Request{Fields: map[string]any{"topic": topic}}
	case s.RequireUpload:
		return skill.UserError(fmt.Sprintf("I don't have a file to process for '%s' right now. Please upload one.", action), "Upload a file first.")
	default:
		body = svcclient.Request{Fields: map[string]any{"text_input": req.SourceText}}
	}

	if level := req.Arg("level"); level != "" {
		body = withField(body, "level", level)
		action = "level " + level + " " + action
	}
	if lang := req.Arg("language"); lang != "" {
		lang = titleWord(lang)
		body = withField(body, "language", lang)
		env.Speak(fmt.Sprintf("Getting information in %s.", lang))
	}

	env.Speak(fmt.Sprintf("Okay, I will perform %s.", action))
	resp, err := s.Service.Call(ctx, feature, body)
	if err != nil {
		logger.Warn("file_service_failed", "feature", feature, "error", err)
		return skill.Failed(serviceFailure(action, err), err)
	}
	return s.report(env, action, resp)
}

func (s *FileSkill) report(env skill.Env, action string, resp svcclient.Response) skill.Result {
	switch {
	case resp.HasFile():
		path, err := resp.SaveCompleted(s.OutputDir)
		if err != nil {
			return skill.Failed(fmt.Sprintf("An issue occurred while preparing your %s download.", action), err)
		}
		env.Display("Saved " + path)
		return skill.Success(fmt.Sprintf("File '%s' %s completed and ready for download.", resp.CompletedFilename, action))
	case len(resp.Questions) > 0:
		for i, q := range resp.Questions {
			env.Display(fmt.Sprintf("Question %d: %s", i+1, q))
		}
		return skill.Success(fmt.Sprintf("Successfully generated %d questions.", len(resp.Questions)))
	case resp.Solution != "":
		env.Display(resp.Solution)
		return skill.Success("I have a solution for the problem. Displaying it now.")
	case resp.Information != "":
		env.Display(resp.Information)
		env.Speak("I have retrieved the information. Displaying it now.")
		return skill.Success(spokenText(resp.Information))
	case resp.Message != "":
		return skill.Success(resp.Message)
	default:
		return skill.Failed(fmt.Sprintf("File %s failed. No result received.", action), errors.New("empty service response"))
	}
}

func (s *FileSkill) acceptsExt(f upload.File) bool {
	if len(s.Extensions) == 0 {
		return true
	}
	ext := f.Ext()
	for _, e := range s.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (s *FileSkill) extensionMessage() string {
	if s.ExtensionMessage != "" {
		return s.ExtensionMessage
	}
	return "Please upload a file of type " + strings.Join(s.Extensions, ", ") + " first."
}

func serviceFailure(action string, err error) string {
	var se *svcclient.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return fmt.Sprintf("The %s service reported a problem: %s", action, se.Message)
	}
	return fmt.Sprintf("Failed to reach the %s service. Please try again later.", action)
}

func withField(r svcclient.Request, key string, value any) svcclient.Request {
	fields := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[key] = value
	r.Fields = fields
	return r
}

// topicFrom uses the captured topic, then the typed text, then asks.
func topicFrom(ctx context.Context, env skill.Env, req skill.Request, prompt string) (string, error) {
	if t := strings.TrimSpace(req.Arg("topic")); t != "" {
		return t, nil
	}
	return env.Ask(ctx, prompt)
}

var (
	parenRe = regexp.MustCompile(`\s*\([^)]*\)`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// spokenText drops bracketed asides and markdown emphasis before speaking.
func spokenText(s string) string {
	s = parenRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func titleWord(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
