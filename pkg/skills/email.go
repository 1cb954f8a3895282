package skills

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/skill"
)

const emailPrompt = "Write a polite, clear email body on the given topic. Avoid addressing the recipient directly. Return the email body only, without a subject line."

// EmailSkill drafts an email with the model and opens it in the default mail
// client, leaving the recipient and sending to the user.
type EmailSkill struct {
	Model  llm.Completer
	Opener Opener
}

func (s *EmailSkill) Name() string { return "email" }

func (s *EmailSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if s.Model == nil {
		return skill.UserError("Sorry, I can't draft emails right now.", "")
	}
	topic := strings.TrimSpace(req.Arg("topic"))
	if topic == "" {
		var err error
		topic, err = env.Ask(ctx, "What is the topic of the email?")
		if err != nil {
			return skill.Failed("", err)
		}
		topic = strings.TrimSpace(topic)
	}
	if topic == "" {
		return skill.UserError("No topic provided. Cannot generate the email.", "send an email about the parent meeting")
	}
	env.Speak(fmt.Sprintf("Drafting an email about %s.", topic))

	body, err := s.Model.Complete(ctx, emailPrompt, "Topic: "+topic)
	if err != nil {
		return skill.Failed("Sorry, I couldn't draft the email.", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return skill.Failed("Sorry, I couldn't draft the email.", nil)
	}
	subject := "Regarding " + topic
	env.Display(subject + "\n\n" + body)
	if err := s.Opener.Open(MailtoURL(subject, body)); err != nil {
		return skill.Failed("The draft is on screen, but I couldn't open your mail app.", err)
	}
	return skill.Success(fmt.Sprintf("I have drafted the email about %s. Add a recipient and send it when ready.", topic))
}

// MailtoURL builds a recipient-less mailto link. Spaces are encoded as %20
// since mail clients do not treat "+" as a space.
func MailtoURL(subject, body string) string {
	q := url.Values{"subject": {subject}, "body": {body}}
	return "mailto:?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}
