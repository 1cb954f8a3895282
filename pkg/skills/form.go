package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/svcclient"
)

const formPrompt = `Generate 5 to 7 questions for a form on the given topic.
Reply with a JSON array only. Each item has "question_text", "type" and, for choice questions, "options".
"type" is one of "short_answer", "paragraph", "multiple_choice" or "checkbox".`

// FormQuestion is one generated form item.
type FormQuestion struct {
	QuestionText string   `json:"question_text"`
	Type         string   `json:"type"`
	Options      []string `json:"options,omitempty"`
}

var formQuestionTypes = map[string]bool{
	"short_answer":    true,
	"paragraph":       true,
	"multiple_choice": true,
	"checkbox":        true,
}

// FormSkill has the model write the questions and the form service create
// the form, then opens the returned link.
type FormSkill struct {
	Model   llm.Completer
	Service Caller
	Opener  Opener
}

func (s *FormSkill) Name() string { return "form" }

func (s *FormSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if s.Model == nil {
		return skill.UserError("Sorry, I can't create forms right now.", "")
	}
	topic := strings.TrimSpace(req.Arg("topic"))
	title, description := "", ""
	if topic == "" {
		answers := make([]string, 0, 3)
		for _, prompt := range []string{
			"What is the topic of the form?",
			"What should the form be titled?",
			"Give a short description for the form.",
		} {
			a, err := env.Ask(ctx, prompt)
			if err != nil {
				return skill.Failed("", err)
			}
			answers = append(answers, strings.TrimSpace(a))
			if len(answers) == 1 && answers[0] == "" {
				return skill.UserError("No topic provided. Cannot create the form.", "generate a form about class feedback")
			}
		}
		topic, title, description = answers[0], answers[1], answers[2]
	}
	if title == "" {
		title = titleWords(topic)
	}
	if description == "" {
		description = "A form about " + topic + "."
	}
	env.Speak(fmt.Sprintf("Creating a form about %s.", topic))

	raw, err := s.Model.Complete(ctx, formPrompt, "Topic: "+topic)
	if err != nil {
		return skill.Failed("Sorry, I couldn't write the form questions.", err)
	}
	questions, err := ParseFormQuestions(raw)
	if err != nil {
		return skill.Failed("Sorry, I couldn't write the form questions.", err)
	}

	resp, err := s.Service.Call(ctx, "form", svcclient.Request{Fields: map[string]any{
		"title":       title,
		"description": description,
		"topic":       topic,
		"questions":   questions,
	}})
	if err != nil {
		return skill.Failed("Failed to create the form.", err)
	}
	if resp.FormURL == "" {
		return skill.Failed("Failed to create the form.", errors.New("form service returned no link"))
	}
	env.Display(fmt.Sprintf("%s\n%s", title, resp.FormURL))
	if err := s.Opener.Open(resp.FormURL); err != nil {
		return skill.Failed("The form is ready, but I couldn't open it.", err)
	}
	return skill.Success(fmt.Sprintf("Your form %s is ready with %d questions. Opening it now.", title, len(questions)))
}

// ParseFormQuestions reads the model's JSON reply, tolerating a fenced code
// block around it. Items without text or with an unknown type are dropped.
func ParseFormQuestions(raw string) ([]FormQuestion, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	var items []FormQuestion
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("parse form questions: %w", err)
	}
	out := items[:0]
	for _, q := range items {
		q.QuestionText = strings.TrimSpace(q.QuestionText)
		if q.QuestionText == "" || !formQuestionTypes[q.Type] {
			continue
		}
		choice := q.Type == "multiple_choice" || q.Type == "checkbox"
		if choice && len(q.Options) < 2 {
			continue
		}
		if !choice {
			q.Options = nil
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, errors.New("no usable form questions")
	}
	return out, nil
}
