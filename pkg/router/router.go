package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/redact"
	"github.com/harunnryd/jarvis/pkg/skill"
)

// ErrSkillPanic marks a Result produced from a recovered Skill panic.
var ErrSkillPanic = errors.New("skill panicked")

const (
	MsgUploadFirst = "Please upload a file first, then tell me what to do with it."
	MsgSkillFailed = "Sorry, something went wrong while doing that. Please try again."
	MsgUnknown     = "Sorry, I don't know how to do that yet."
)

// PendingCommand is a recognized utterance or typed text waiting to be routed.
type PendingCommand struct {
	ID      string
	RawText string
	Source  skill.Source
}

func NewPendingCommand(text string, src skill.Source) PendingCommand {
	return PendingCommand{ID: uuid.NewString(), RawText: text, Source: src}
}

// Route pairs a predicate with the Skill it selects.
type Route struct {
	Name  string
	Match Predicate
	Skill skill.Skill
	// RequiresUpload answers with MsgUploadFirst when no upload is live.
	RequiresUpload bool
}

// Resolved is the outcome of matching one command.
type Resolved struct {
	Route Route
	Args  map[string]string
}

// Router evaluates routes top to bottom. The first match wins and no later
// predicate runs.
type Router struct {
	routes   []Route
	fallback Route
	logger   *slog.Logger
}

func New(routes []Route, fallback Route, logger *slog.Logger) *Router {
	return &Router{
		routes:   routes,
		fallback: fallback,
		logger:   logging.NewComponentLogger(logger, "router"),
	}
}

// Normalize lowercases and trims a command.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Resolve returns the first matching route. When nothing matches it returns
// the fallback route and false.
func (r *Router) Resolve(text string) (Resolved, bool) {
	text = Normalize(text)
	if text != "" {
		for _, route := range r.routes {
			if route.Match == nil {
				continue
			}
			if args, ok := route.Match.Match(text); ok {
				return Resolved{Route: route, Args: args}, true
			}
		}
	}
	return Resolved{Route: r.fallback}, false
}

// Dispatch resolves cmd and runs the selected Skill.
func (r *Router) Dispatch(ctx context.Context, env skill.Env, cmd PendingCommand) skill.Result {
	res, _ := r.Resolve(cmd.RawText)
	return r.Run(ctx, env, res, Request(cmd, res))
}

// Request builds the skill request for a resolved command.
func Request(cmd PendingCommand, res Resolved) skill.Request {
	req := skill.Request{
		ID:      cmd.ID,
		Command: Normalize(cmd.RawText),
		Source:  cmd.Source,
		Args:    res.Args,
	}
	if cmd.Source == skill.SourceText {
		req.SourceText = cmd.RawText
	}
	if lang := res.Args["language"]; lang != "" {
		req.Language = lang
	}
	return req
}

// Run invokes the Skill of a resolved route. A panicking Skill is turned into
// a failed Result.
func (r *Router) Run(ctx context.Context, env skill.Env, res Resolved, req skill.Request) (out skill.Result) {
	route := res.Route
	if route.Skill == nil {
		return skill.UserError(MsgUnknown, "")
	}
	if route.RequiresUpload {
		if env == nil || env.Uploads() == nil {
			return skill.UserError(MsgUploadFirst, "upload a file")
		}
		if _, ok := env.Uploads().Peek(); !ok {
			return skill.UserError(MsgUploadFirst, "upload a file")
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("skill_panic",
				"skill", route.Skill.Name(),
				"command_id", req.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
			out = skill.Failed(MsgSkillFailed,
				errorsx.Wrap(fmt.Errorf("%w: %v", ErrSkillPanic, rec), errorsx.ReasonSkillPanic))
		}
	}()

	r.logger.Debug("command_routed",
		"route", route.Name,
		"skill", route.Skill.Name(),
		"command_id", req.ID,
		"text", redact.Text(req.Command))
	return route.Skill.Invoke(ctx, env, req)
}
