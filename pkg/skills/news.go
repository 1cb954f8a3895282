package skills

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/jarvis/pkg/skill"
)

const (
	DefaultNewsURL      = "https://newsapi.org/v2/top-headlines?country=us&apiKey={api_key}"
	DefaultNewsPageSize = 3

	NewsLatest = "latest"
	NewsNext   = "next"

	MsgNoNews        = "No news articles found."
	MsgNoMoreNews    = "No more news articles available."
	MsgNewsFirst     = "Please say 'news' first to fetch the latest headlines."
	msgNewsFetchFail = "Failed to fetch news."
)

// NewsSkill reads top headlines a page at a time. "news" fetches a fresh
// list; the "next" mode continues from where the last page stopped.
type NewsSkill struct {
	Client   JSONGetter
	URL      string
	APIKey   string
	PageSize int

	mu       sync.Mutex
	articles []string
	next     int
}

type newsReport struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

func (s *NewsSkill) Name() string { return "news" }

func (s *NewsSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if req.Arg("mode") == NewsNext {
		return s.page(env, MsgNoMoreNews)
	}
	env.Speak("Fetching the latest news.")
	tmpl := s.URL
	if tmpl == "" {
		tmpl = DefaultNewsURL
	}
	var report newsReport
	if err := s.Client.GetJSON(ctx, strings.ReplaceAll(tmpl, "{api_key}", s.APIKey), &report); err != nil {
		return skill.Failed(msgNewsFetchFail, err)
	}
	if report.Status == "error" {
		return skill.Failed(msgNewsFetchFail, fmt.Errorf("news api: %s", report.Message))
	}
	titles := make([]string, 0, len(report.Articles))
	for _, a := range report.Articles {
		if t := strings.TrimSpace(a.Title); t != "" {
			titles = append(titles, t)
		}
	}

	s.mu.Lock()
	s.articles = titles
	s.next = 0
	s.mu.Unlock()
	return s.page(env, MsgNoNews)
}

// page speaks the next batch of headlines, or empty when none are left.
func (s *NewsSkill) page(env skill.Env, empty string) skill.Result {
	size := s.PageSize
	if size <= 0 {
		size = DefaultNewsPageSize
	}
	s.mu.Lock()
	if s.articles == nil {
		s.mu.Unlock()
		return skill.UserError(MsgNewsFirst, "news")
	}
	start := s.next
	end := min(start+size, len(s.articles))
	batch := append([]string(nil), s.articles[start:end]...)
	s.next = end
	s.mu.Unlock()

	if len(batch) == 0 {
		return skill.Success(empty)
	}
	lines := make([]string, len(batch))
	for i, title := range batch {
		lines[i] = fmt.Sprintf("%d. %s", start+i+1, title)
	}
	env.Display(strings.Join(lines, "\n"))
	for _, title := range batch[:len(batch)-1] {
		env.Speak(title)
	}
	return skill.Success(batch[len(batch)-1])
}
