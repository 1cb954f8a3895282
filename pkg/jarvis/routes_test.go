package jarvis

import (
	"testing"

	"github.com/harunnryd/jarvis/pkg/router"
	"github.com/harunnryd/jarvis/pkg/skills"
	"github.com/harunnryd/jarvis/pkg/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoutesResolve(t *testing.T) {
	slot := &upload.Slot{}
	routes, fallback := DefaultRoutes(RouteDeps{Uploads: slot})
	r := router.New(routes, fallback, nil)

	cases := []struct {
		text  string
		route string
		args  map[string]string
	}{
		{"Jarvis, schedule a meeting", "schedule", nil},
		{"create level 3 worksheet", "worksheet", map[string]string{"level": "3"}},
		{"create worksheet", "worksheet", map[string]string{"level": ""}},
		{"generate presentation from file", "presentation_from_file", nil},
		{"generate presentation on the water cycle", "presentation", map[string]string{"topic": "the water cycle"}},
		{"generate questions", "generate_questions", nil},
		{"analyze marks", "analyze_marks", nil},
		{"get information in hindi", "information", map[string]string{"language": "hindi"}},
		{"store attendance", "attendance", nil},
		{"send whatsapp message to mom saying I'm late", "whatsapp_message",
			map[string]string{"mode": skills.WhatsAppMessage, "contact": "mom", "message": "i'm late"}},
		{"whatsapp video call dad", "whatsapp_video_call", map[string]string{"mode": skills.WhatsAppVideoCall, "contact": "dad"}},
		{"whatsapp call dad", "whatsapp_call", map[string]string{"mode": skills.WhatsAppCall, "contact": "dad"}},
		{"what's the weather in pune", "weather", map[string]string{"city": "pune"}},
		{"set alarm for 7:30 am", "alarm", nil},
		{"open youtube", "open", map[string]string{"site": "youtube"}},
		{"search for golang generics", "search", map[string]string{"query": "golang generics"}},
		{"generate image of a red fox", "image", map[string]string{"topic": "a red fox"}},
		{"generate a form about class feedback", "form", map[string]string{"topic": "class feedback"}},
		{"create google form", "form", map[string]string{"topic": ""}},
		{"send an email about the weather report", "email", map[string]string{"topic": "the weather report"}},
		{"generate a mail about parent meeting", "email", map[string]string{"topic": "parent meeting"}},
		{"turn the volume up", "volume", nil},
		{"unmute", "volume", nil},
		{"sound off", "volume", nil},
		{"turn on youtube", "turn_on_youtube", map[string]string{"site": "youtube"}},
		{"play lofi beats on youtube", "play", map[string]string{"play": "lofi beats"}},
		{"play despacito", "play", map[string]string{"play": "despacito"}},
		{"next news", "next_news", map[string]string{"mode": skills.NewsNext}},
		{"tell me the news", "news", map[string]string{"mode": skills.NewsLatest}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			res, ok := r.Resolve(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.route, res.Route.Name)
			for k, v := range tc.args {
				assert.Equal(t, v, res.Args[k], k)
			}
		})
	}
}

func TestGenericFileRoutesNeedAnUpload(t *testing.T) {
	slot := &upload.Slot{}
	routes, fallback := DefaultRoutes(RouteDeps{Uploads: slot})
	r := router.New(routes, fallback, nil)

	res, ok := r.Resolve("summarize this")
	assert.False(t, ok)
	assert.Equal(t, "ai", res.Route.Name)

	slot.Set(upload.File{Filename: "notes.pdf", Path: "/tmp/notes.pdf"})
	res, ok = r.Resolve("summarize this")
	require.True(t, ok)
	assert.Equal(t, "summarize", res.Route.Name)

	res, _ = r.Resolve("analyze marks")
	assert.Equal(t, "analyze_marks", res.Route.Name)
}

func TestUnknownCommandFallsBackToAI(t *testing.T) {
	routes, fallback := DefaultRoutes(RouteDeps{})
	r := router.New(routes, fallback, nil)

	res, ok := r.Resolve("tell me a joke")
	assert.False(t, ok)
	assert.Equal(t, "ai", res.Route.Name)
	assert.Equal(t, "ai", res.Route.Skill.Name())
}

func TestGeneralQuestionsAreNotCommands(t *testing.T) {
	routes, fallback := DefaultRoutes(RouteDeps{})
	r := router.New(routes, fallback, nil)

	for _, text := range []string{
		"what is the volume of a sphere",
		"how does sound travel on water",
		"display the newspaper headlines",
		"generate a formula for compound interest",
	} {
		res, _ := r.Resolve(text)
		assert.Equal(t, "ai", res.Route.Name, text)
	}
}

func TestConversationPhrases(t *testing.T) {
	cases := []struct {
		text  string
		sleep bool
		enter bool
		exit  bool
	}{
		{text: "sleep", sleep: true},
		{text: "please sleep", sleep: true},
		{text: "okay sleep now", sleep: true},
		{text: "go to sleep", sleep: true},
		{text: "stop listening for a while", sleep: true},
		{text: "how many hours of sleeping is healthy"},
		{text: "answer a multiple choice question", enter: true},
		{text: "end answer", exit: true},
		{text: "schedule a meeting"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			text := router.Normalize(tc.text)
			assert.Equal(t, tc.sleep, matchPhrase(sleepPhrase, text), "sleep")
			assert.Equal(t, tc.enter, matchPhrase(mcqEnterPhrase, text), "mcq enter")
			assert.Equal(t, tc.exit, matchPhrase(mcqExitPhrase, text), "mcq exit")
		})
	}
}
