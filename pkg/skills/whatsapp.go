package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
)

// Messenger is the part of the Twilio messenger the WhatsApp skill needs.
type Messenger interface {
	Lookup(name string) (string, bool)
	SendMessage(ctx context.Context, to, body string) (string, error)
	Call(ctx context.Context, to string) (string, error)
}

const (
	WhatsAppMessage   = "message"
	WhatsAppCall      = "call"
	WhatsAppVideoCall = "video"
)

// WhatsAppSkill messages or calls a configured contact. The route decides
// the mode through the "mode" argument.
type WhatsAppSkill struct {
	Messenger Messenger
}

func (s *WhatsAppSkill) Name() string { return "whatsapp" }

func (s *WhatsAppSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	mode := req.Arg("mode")
	contact := strings.TrimSpace(req.Arg("contact"))
	if contact == "" {
		var err error
		contact, err = env.Ask(ctx, askContact(mode))
		if err != nil {
			return skill.Failed("", err)
		}
		contact = strings.TrimSpace(contact)
	}
	if contact == "" {
		return skill.UserError("Sorry, I didn't get the contact name.", "")
	}
	if mode == WhatsAppVideoCall {
		return skill.UserError(
			fmt.Sprintf("Video calls aren't supported here. Say 'whatsapp call %s' for a voice call instead.", contact),
			"whatsapp call "+contact)
	}
	if s.Messenger == nil {
		return skill.UserError("WhatsApp is not configured.", "")
	}
	number, ok := s.resolve(contact)
	if !ok {
		return skill.UserError(fmt.Sprintf("Sorry, I could not find a number for %s.", contact), "Add the contact to the whatsapp section of the config.")
	}

	switch mode {
	case WhatsAppCall:
		if _, err := s.Messenger.Call(ctx, number); err != nil {
			return skill.Failed(fmt.Sprintf("Sorry, I couldn't call %s.", contact), err)
		}
		return skill.Success(fmt.Sprintf("Calling %s.", contact))
	default:
		body := strings.TrimSpace(req.Arg("message"))
		if body == "" {
			var err error
			body, err = env.Ask(ctx, "What message would you like to send?")
			if err != nil {
				return skill.Failed("", err)
			}
			body = strings.TrimSpace(body)
		}
		if body == "" {
			return skill.UserError("Sorry, I need both a contact and a message to proceed.", "")
		}
		if _, err := s.Messenger.SendMessage(ctx, number, body); err != nil {
			return skill.Failed(fmt.Sprintf("Sorry, I couldn't send the message to %s.", contact), err)
		}
		return skill.Success(fmt.Sprintf("Message sent to %s.", contact))
	}
}

func (s *WhatsAppSkill) resolve(contact string) (string, bool) {
	if number, ok := s.Messenger.Lookup(contact); ok {
		return number, true
	}
	return NormalizeNumber(contact)
}

// NormalizeNumber accepts a spoken number. Ten digits are taken as an
// Indian number, twelve digits starting with 91 get a plus.
func NormalizeNumber(s string) (string, bool) {
	plus := strings.HasPrefix(strings.TrimSpace(s), "+")
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	d := digits.String()
	switch {
	case plus && len(d) >= 10:
		return "+" + d, true
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return "+" + d, true
	case len(d) == 10:
		return "+91" + d, true
	default:
		return "", false
	}
}

func askContact(mode string) string {
	switch mode {
	case WhatsAppCall:
		return "Who would you like to WhatsApp call?"
	case WhatsAppVideoCall:
		return "Who would you like to WhatsApp video call?"
	default:
		return "To whom would you like to send the WhatsApp message?"
	}
}
