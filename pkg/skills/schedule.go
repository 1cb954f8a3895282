package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/svcclient"
)

// ScheduleSkill collects a meeting title and time and hands them to the
// scheduling service.
type ScheduleSkill struct {
	Service Caller
}

func (s *ScheduleSkill) Name() string { return "schedule" }

func (s *ScheduleSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	title, err := env.Ask(ctx, "What is the title of the meeting?")
	if err != nil {
		return skill.Failed("", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return skill.UserError("No meeting title provided. Cannot schedule the meeting.", "")
	}
	when, err := env.Ask(ctx, "When should the meeting be?")
	if err != nil {
		return skill.Failed("", err)
	}
	when = strings.TrimSpace(when)
	if when == "" {
		return skill.UserError("No meeting time provided. Cannot schedule the meeting.", "")
	}
	resp, err := s.Service.Call(ctx, "schedule", svcclient.Request{Fields: map[string]any{"title": title, "when": when}})
	if err != nil {
		return skill.Failed(serviceFailure("scheduling", err), err)
	}
	if resp.Message != "" {
		return skill.Success(resp.Message)
	}
	return skill.Success(fmt.Sprintf("Meeting '%s' scheduled for %s.", title, when))
}
