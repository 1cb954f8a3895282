package skills

import (
	"context"
	"strings"

	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/skill"
)

const (
	assistantPrompt  = "You are a virtual assistant named Jarvis skilled in general tasks like Alexa and Google Assistant. Answer briefly in plain sentences suitable for speech."
	defaultSpokenMax = 400
)

// AISkill answers anything no other route claimed.
type AISkill struct {
	Model llm.Completer
	// SpokenMax caps the spoken part of the answer; the full text is displayed.
	SpokenMax int
}

func (s *AISkill) Name() string { return "ai" }

func (s *AISkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if s.Model == nil {
		return skill.UserError("Sorry, I can't answer questions right now.", "")
	}
	answer, err := s.Model.Complete(ctx, assistantPrompt, req.Command)
	if err != nil {
		return skill.Failed("Sorry, I couldn't get an answer right now. Please try again.", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return skill.Failed("Sorry, I don't have an answer for that.", nil)
	}
	env.Display(answer)
	limit := s.SpokenMax
	if limit <= 0 {
		limit = defaultSpokenMax
	}
	return skill.Success(truncateSpoken(spokenText(answer), limit))
}

// truncateSpoken cuts at the last sentence end that fits, or at a word.
func truncateSpoken(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > limit/3 {
		return cut[:i+1]
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
