// Package skill defines the contract between the command router and the
// handlers that carry out commands.
package skill

import (
	"context"

	"github.com/harunnryd/jarvis/pkg/upload"
)

// Source says where a command came from.
type Source int

const (
	SourceVoice Source = iota
	SourceText
)

func (s Source) String() string {
	if s == SourceText {
		return "text"
	}
	return "voice"
}

// Request is one routed command.
type Request struct {
	ID         string
	Command    string
	SourceText string
	Language   string
	Source     Source
	// Args holds values captured by the route predicate.
	Args map[string]string
}

// Arg returns a captured argument or "".
func (r Request) Arg(name string) string {
	if r.Args == nil {
		return ""
	}
	return r.Args[name]
}

// Outcome classifies a Result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUserError
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUserError:
		return "user_error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a Skill reports back. Message is user-facing text; Spoken
// records whether the Skill already said it.
type Result struct {
	Outcome   Outcome
	Message   string
	RetryHint string
	Err       error
	Spoken    bool
}

func Success(msg string) Result {
	return Result{Outcome: OutcomeSuccess, Message: msg}
}

func UserError(msg, hint string) Result {
	return Result{Outcome: OutcomeUserError, Message: msg, RetryHint: hint}
}

func Failed(msg string, err error) Result {
	return Result{Outcome: OutcomeFailed, Message: msg, Err: err}
}

// AlreadySpoken marks the message as said by the Skill itself.
func (r Result) AlreadySpoken() Result {
	r.Spoken = true
	return r
}

// Env is everything a Skill may call back into.
type Env interface {
	Speak(text string)
	SpeakAndWait(ctx context.Context, text string) error
	Display(text string)
	// Ask speaks prompt and returns the user's reply.
	Ask(ctx context.Context, prompt string) (string, error)
	Uploads() *upload.Slot
}

// Skill handles one command domain. Invoke must not panic.
type Skill interface {
	Name() string
	Invoke(ctx context.Context, env Env, req Request) Result
}

// Func adapts a function to Skill.
type Func struct {
	SkillName string
	Fn        func(ctx context.Context, env Env, req Request) Result
}

func (f Func) Name() string { return f.SkillName }

func (f Func) Invoke(ctx context.Context, env Env, req Request) Result {
	return f.Fn(ctx, env, req)
}
