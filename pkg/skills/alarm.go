package skills

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/robfig/cron/v3"
)

const (
	AlarmMessage = "This is your Jarvis alarm!"
	MsgAlarmHelp = "Please specify the time like 7:30 AM or 6 15 PM."
)

// Scheduler is satisfied by *cron.Cron.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

// AlarmSkill registers a daily alarm. Ring is called when it fires.
type AlarmSkill struct {
	Cron Scheduler
	Ring func(message string)
}

func (s *AlarmSkill) Name() string { return "alarm" }

func (s *AlarmSkill) Invoke(_ context.Context, env skill.Env, req skill.Request) skill.Result {
	hour, minute, ok := ParseAlarmTime(req.Command)
	if !ok {
		return skill.UserError(MsgAlarmHelp, "set alarm for 7:30 am")
	}
	ring := s.Ring
	if ring == nil {
		ring = env.Speak
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.Cron.AddFunc(spec, func() { ring(AlarmMessage) }); err != nil {
		return skill.Failed("Sorry, I couldn't set the alarm.", err)
	}
	return skill.Success(fmt.Sprintf("Alarm set for %02d:%02d", hour, minute))
}

var alarmRe = regexp.MustCompile(`(\d{1,2})[:\s](\d{2})\s*(am|pm)`)

// ParseAlarmTime reads "7:30 am" or "6 15 pm" and returns a 24h time.
func ParseAlarmTime(text string) (int, int, bool) {
	text = strings.ToLower(text)
	text = strings.NewReplacer("a.m.", "am", "p.m.", "pm").Replace(text)
	m := alarmRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}
	switch {
	case m[3] == "pm" && hour != 12:
		hour += 12
	case m[3] == "am" && hour == 12:
		hour = 0
	}
	return hour, minute, true
}
