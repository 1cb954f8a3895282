package jarvis

import (
	"log/slog"

	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/llm"
	"github.com/harunnryd/jarvis/pkg/router"
	"github.com/harunnryd/jarvis/pkg/skills"
	"github.com/harunnryd/jarvis/pkg/upload"
)

// Service is the micro-service client the file, topic and weather skills
// share.
type Service interface {
	skills.Caller
	skills.JSONGetter
}

// RouteDeps are the collaborators the default route table is built from.
type RouteDeps struct {
	Service   Service
	Model     llm.Completer
	Messenger skills.Messenger
	Opener    skills.Opener
	Mixer     audio.Mixer
	Cron      skills.Scheduler
	Ring      func(message string)
	Uploads   *upload.Slot
	OutputDir string
	Web       WebConfig
	Weather   WeatherConfig
	News      NewsConfig
	Logger    *slog.Logger
}

// withArgs adds fixed arguments to whatever p captures.
func withArgs(p router.Predicate, fixed map[string]string) router.Predicate {
	return router.PredicateFunc(func(text string) (map[string]string, bool) {
		args, ok := p.Match(text)
		if !ok {
			return nil, false
		}
		out := make(map[string]string, len(args)+len(fixed))
		for k, v := range args {
			out[k] = v
		}
		for k, v := range fixed {
			out[k] = v
		}
		return out, true
	})
}

// DefaultRoutes builds the command table in priority order. More specific
// phrases sit above the generic ones they contain.
func DefaultRoutes(d RouteDeps) ([]router.Route, router.Route) {
	hasUpload := func() bool {
		if d.Uploads == nil {
			return false
		}
		_, ok := d.Uploads.Peek()
		return ok
	}
	file := func(feature, action string) *skills.FileSkill {
		return &skills.FileSkill{Feature: feature, Action: action, Service: d.Service, OutputDir: d.OutputDir, Logger: d.Logger}
	}

	worksheet := file("worksheet", "worksheet generation")
	worksheet.RequireUpload = true
	lessonPlan := file("lesson_plan", "lesson planning")
	lessonPlan.RequireUpload = true
	presentationFromFile := file("presentation_from_file", "presentation generation")
	presentationFromFile.RequireUpload = true
	questions := file("generate_questions", "question generation")
	questions.NoFileFeature = "generate_questions_topic"
	marks := file("analyze_marks", "marks analysis")
	marks.RequireUpload = true
	marks.Extensions = []string{".xlsx", ".xls"}
	marks.ExtensionMessage = "Please upload an Excel file first to analyze marks."

	sites := d.Web.Sites
	if len(sites) == 0 {
		sites = skills.DefaultSites
	}
	web := &skills.WebSkill{Opener: d.Opener, Sites: sites, Apps: d.Web.Apps, SearchURL: d.Web.SearchURL, PlayURL: d.Web.PlayURL}
	whatsapp := &skills.WhatsAppSkill{Messenger: d.Messenger}
	news := &skills.NewsSkill{Client: d.Service, URL: d.News.URL, APIKey: d.News.APIKey, PageSize: d.News.PageSize}

	routes := []router.Route{
		// Topics can mention any other command's words, so these go first.
		{
			Name:  "form",
			Match: router.Regexp(`(?:create (?:a )?google form|generate (?:a )?form)\b(?: (?:about|on) (?P<topic>.+))?`),
			Skill: &skills.FormSkill{Model: d.Model, Service: d.Service, Opener: d.Opener},
		},
		{
			Name:  "email",
			Match: router.Regexp(`(?:generate|send) (?:a |an )?(?:e-?)?mail\b(?: (?:about|on) (?P<topic>.+))?`),
			Skill: &skills.EmailSkill{Model: d.Model, Opener: d.Opener},
		},
		{
			Name:  "attendance",
			Match: router.Contains("store attendance", "download attendance", "update attendance"),
			Skill: &skills.AttendanceSkill{Service: d.Service, OutputDir: d.OutputDir},
		},
		{
			Name:           "worksheet",
			Match:          router.Regexp(`create (?:level (?P<level>[1-4]) )?worksheet`),
			Skill:          worksheet,
			RequiresUpload: true,
		},
		{
			Name:           "lesson_plan",
			Match:          router.Contains("plan lesson", "generate lesson plan"),
			Skill:          lessonPlan,
			RequiresUpload: true,
		},
		{Name: "presentation_from_file", Match: router.Contains("generate presentation from file"), Skill: presentationFromFile},
		{Name: "generate_questions", Match: router.Contains("generate questions"), Skill: questions},
		{Name: "solve", Match: router.Contains("solve"), Skill: file("solve", "problem solving")},
		{
			Name:  "information",
			Match: router.Regexp(`get information(?: in (?P<language>[a-z]+))?`),
			Skill: file("information", "information extraction"),
		},
		{Name: "analyze_marks", Match: router.Contains("analyze marks"), Skill: marks},
		{
			Name:  "complete",
			Match: router.And(router.When(hasUpload), router.Contains("complete")),
			Skill: file("complete", "completion"),
		},
		{
			Name:  "summarize",
			Match: router.And(router.When(hasUpload), router.Contains("summarize")),
			Skill: file("summarize", "summarization"),
		},
		{
			Name:  "analyze",
			Match: router.And(router.When(hasUpload), router.Contains("analyze")),
			Skill: file("analyze", "analysis"),
		},
		{
			Name:  "schedule",
			Match: router.Regexp(`\bschedule (?:a |the )?meeting\b`),
			Skill: &skills.ScheduleSkill{Service: d.Service},
		},
		{
			Name:  "presentation",
			Match: router.Regexp(`generate presentation on\b(?P<topic>.*)`),
			Skill: &skills.TopicSkill{Feature: "presentation", Noun: "presentation", Service: d.Service, OutputDir: d.OutputDir},
		},
		{
			Name:  "image",
			Match: router.Regexp(`(?:generate|create) image(?: of (?P<topic>.+))?`),
			Skill: &skills.TopicSkill{Feature: "image", Noun: "image", Prompt: "What image should I generate?", Service: d.Service, OutputDir: d.OutputDir},
		},
		{
			Name:  "whatsapp_video_call",
			Match: withArgs(router.Regexp(`whatsapp video call\b(?P<contact>.*)`), map[string]string{"mode": skills.WhatsAppVideoCall}),
			Skill: whatsapp,
		},
		{
			Name:  "whatsapp_call",
			Match: withArgs(router.Regexp(`whatsapp call\b(?P<contact>.*)`), map[string]string{"mode": skills.WhatsAppCall}),
			Skill: whatsapp,
		},
		{
			Name: "whatsapp_message",
			Match: withArgs(router.Regexp(`send whatsapp message to\b(?P<contact>.*?)(?:\bsaying\b(?P<message>.*))?$`),
				map[string]string{"mode": skills.WhatsAppMessage}),
			Skill: whatsapp,
		},
		{
			Name:  "weather",
			Match: router.Regexp(`weather(?:.*\bin (?P<city>.+))?`),
			Skill: &skills.WeatherSkill{Client: d.Service, URL: d.Weather.URL, DefaultCity: d.Weather.DefaultCity},
		},
		{
			Name:  "alarm",
			Match: router.Contains("set alarm"),
			Skill: &skills.AlarmSkill{Cron: d.Cron, Ring: d.Ring},
		},
		{
			Name:  "volume",
			Match: router.Regexp(`\b(?:volume (?:up|down)|(?:increase|decrease|raise|lower) (?:the )?(?:volume|sound)|mute|unmute|louder|quieter)\b|\bsound (?:on|off)[.!]?$`),
			Skill: &skills.VolumeSkill{Mixer: d.Mixer},
		},
		{Name: "turn_on_youtube", Match: withArgs(router.Contains("turn on youtube"), map[string]string{"site": "youtube"}), Skill: web},
		{Name: "open", Match: router.Regexp(`\bopen (?P<site>.+)`), Skill: web},
		{Name: "search", Match: router.Regexp(`(?:search|google)(?: for)?(?P<query>.*)`), Skill: web},
		{Name: "play", Match: router.Regexp(`\bplay\b(?P<play>.*?)(?:\s*\bon youtube)?$`), Skill: web},
		{Name: "next_news", Match: withArgs(router.Contains("next news"), map[string]string{"mode": skills.NewsNext}), Skill: news},
		{Name: "news", Match: withArgs(router.Regexp(`\bnews\b`), map[string]string{"mode": skills.NewsLatest}), Skill: news},
	}

	fallback := router.Route{Name: "ai", Skill: &skills.AISkill{Model: d.Model}}
	return routes, fallback
}
