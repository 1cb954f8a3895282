package skills

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/skill"
)

const (
	MsgMCQThinking  = "I've received the question and options. Thinking about the answer..."
	MsgMCQUnclear   = "I couldn't properly understand the question and options from what you said. Please try again with the suggested format."
	MsgMCQNoAnswer  = "I had trouble determining the answer. Please try again."
	mcqSystemPrompt = "You answer multiple-choice questions. Reply with a single uppercase letter and nothing else."
)

// MCQSkill answers one spoken or typed multiple-choice question.
type MCQSkill struct {
	Model llm.Completer
}

func (s *MCQSkill) Name() string { return "mcq" }

func (s *MCQSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	text := req.SourceText
	if text == "" {
		text = req.Command
	}
	question, options := ParseMCQ(text)
	if question == "" || len(options) < 2 {
		return skill.UserError(MsgMCQUnclear, "Say the question, then 'options are' and the choices.")
	}
	if s.Model == nil {
		return skill.Failed(MsgMCQNoAnswer, nil)
	}
	env.Speak(MsgMCQThinking)
	reply, err := s.Model.Complete(ctx, mcqSystemPrompt, mcqPrompt(question, options))
	if err != nil {
		return skill.Failed(MsgMCQNoAnswer, err)
	}
	idx := pickOption(reply, len(options))
	if idx < 0 {
		return skill.Failed(MsgMCQNoAnswer, nil)
	}
	env.Display(fmt.Sprintf("%s\nAnswer: %c. %s", question, 'A'+idx, options[idx]))
	return skill.Success("The answer is: " + options[idx])
}

var (
	endingRe       = regexp.MustCompile(`(?i)\b(?:what(?:'s| is) your (?:answer|choice|option)|which is the answer|(?:the\s+)?(?:options|choices)\s+are)[:\s]*`)
	optionPrefixRe = regexp.MustCompile(`(?i)(?:^|\s)(?:option\s+[a-z]|[a-d][.)])[:.)]?\s+`)
	optionSepRe    = regexp.MustCompile(`(?i)\s*(?:,|;|\bor\b)\s*`)
	mcqLeadInRe    = regexp.MustCompile(`(?i)^(?:here is a question|i have a question for you|question for you)[:,]?\s*`)
	singleLetterRe = regexp.MustCompile(`\b[A-Z]\b`)
)

// ParseMCQ splits free text into a question and its options. The question
// ends at a '?' or at a phrase like "options are"; options are taken from
// "option A"/"A." prefixes when present, otherwise split on commas and "or".
func ParseMCQ(text string) (string, []string) {
	text = strings.TrimSpace(mcqLeadInRe.ReplaceAllString(strings.TrimSpace(text), ""))
	if text == "" {
		return "", nil
	}
	var question, rest string
	if i := strings.IndexByte(text, '?'); i >= 0 {
		question = strings.TrimSpace(text[:i]) + "?"
		rest = text[i+1:]
		if loc := endingRe.FindStringIndex(rest); loc != nil && strings.TrimSpace(rest[:loc[0]]) == "" {
			rest = rest[loc[1]:]
		}
	} else if loc := endingRe.FindStringIndex(text); loc != nil {
		question = strings.TrimSpace(text[:loc[0]]) + "?"
		rest = text[loc[1]:]
	} else {
		return text, nil
	}
	rest = strings.TrimSpace(rest)

	var parts []string
	if optionPrefixRe.MatchString(rest) {
		parts = optionPrefixRe.Split(rest, -1)
	} else {
		parts = optionSepRe.Split(rest, -1)
	}
	seen := make(map[string]bool)
	var options []string
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), ".,;")
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		options = append(options, p)
	}
	return question, options
}

func mcqPrompt(question string, options []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nOptions:")
	for i, o := range options {
		fmt.Fprintf(&b, "\n%c. %s", 'A'+i, o)
	}
	b.WriteString("\n\nYour answer must be a single uppercase letter corresponding to the best option.")
	return b.String()
}

// pickOption maps a model reply to an option index, or -1.
func pickOption(reply string, n int) int {
	reply = strings.ToUpper(strings.TrimSpace(reply))
	letter := singleLetterRe.FindString(reply)
	if letter == "" && reply != "" && reply[0] >= 'A' && reply[0] <= 'Z' {
		letter = reply[:1]
	}
	if letter == "" {
		return -1
	}
	idx := int(letter[0] - 'A')
	if idx < 0 || idx >= n {
		return -1
	}
	return idx
}
