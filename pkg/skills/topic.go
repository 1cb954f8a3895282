package skills

import (
	"context"
	"fmt"

	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/svcclient"
)

// TopicSkill asks a generation service for something about a topic, such as
// a presentation or an image.
type TopicSkill struct {
	Feature string
	// Noun is what gets generated, e.g. "presentation".
	Noun      string
	Prompt    string
	Service   Caller
	OutputDir string
}

func (s *TopicSkill) Name() string { return s.Feature }

func (s *TopicSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	prompt := s.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("What should the %s be about?", s.Noun)
	}
	topic, err := topicFrom(ctx, env, req, prompt)
	if err != nil {
		return skill.Failed("", err)
	}
	if topic == "" {
		return skill.UserError(fmt.Sprintf("I didn't catch that. Please provide a clear topic for the %s.", s.Noun), "")
	}
	env.Speak(fmt.Sprintf("Generating a %s for '%s'. This might take a moment.", s.Noun, topic))
	resp, err := s.Service.Call(ctx, s.Feature, svcclient.Request{Fields: map[string]any{"topic": topic}})
	if err != nil {
		return skill.Failed(serviceFailure(s.Noun+" generation", err), err)
	}
	if resp.HasFile() {
		path, err := resp.SaveCompleted(s.OutputDir)
		if err != nil {
			return skill.Failed(fmt.Sprintf("Something went wrong while saving the %s.", s.Noun), err)
		}
		env.Display("Saved " + path)
	}
	if resp.Message != "" {
		env.Display(resp.Message)
	}
	return skill.Success(fmt.Sprintf("The %s has been generated successfully.", s.Noun))
}
