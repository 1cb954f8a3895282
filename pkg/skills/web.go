package skills

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
)

// Opener launches a URL or an application.
type Opener interface {
	Open(target string) error
}

// DefaultSites is the built-in website table.
var DefaultSites = map[string]string{
	"youtube":      "https://youtube.com",
	"google":       "https://google.com",
	"whatsapp web": "https://web.whatsapp.com",
	"instagram":    "https://instagram.com",
	"facebook":     "https://facebook.com",
	"twitter":      "https://twitter.com",
	"linkedin":     "https://linkedin.com",
	"github":       "https://github.com",
}

const (
	DefaultSearchURL = "https://www.google.com/search?q="
	DefaultPlayURL   = "https://www.youtube.com/results?search_query="
)

// WebSkill opens sites and apps, runs web searches and plays videos. The
// route passes one of "site", "query" or "play".
type WebSkill struct {
	Opener    Opener
	Sites     map[string]string
	Apps      map[string]string
	SearchURL string
	PlayURL   string
}

func (s *WebSkill) Name() string { return "web" }

func (s *WebSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if _, ok := req.Args["query"]; ok {
		return s.search(ctx, env, strings.TrimSpace(req.Arg("query")))
	}
	if _, ok := req.Args["play"]; ok {
		return s.play(ctx, env, strings.TrimSpace(req.Arg("play")))
	}
	target := strings.TrimSpace(req.Arg("site"))
	if target == "" {
		return skill.UserError("What application do you want me to open?", "open youtube")
	}
	name, dest, ok := s.lookup(target)
	if !ok {
		return skill.UserError("I'm sorry, I couldn't identify the application name.", "")
	}
	if err := s.Opener.Open(dest); err != nil {
		return skill.Failed(fmt.Sprintf("Sorry, I couldn't open %s.", name), err)
	}
	return skill.Success("Opening " + titleWords(name))
}

func (s *WebSkill) search(ctx context.Context, env skill.Env, query string) skill.Result {
	if query == "" {
		var err error
		query, err = env.Ask(ctx, "What would you like to search for?")
		if err != nil {
			return skill.Failed("", err)
		}
		query = strings.TrimSpace(query)
	}
	if query == "" {
		return skill.UserError("Sorry, I didn't catch what you wanted to search for.", "")
	}
	base := s.SearchURL
	if base == "" {
		base = DefaultSearchURL
	}
	if err := s.Opener.Open(base + url.QueryEscape(query)); err != nil {
		return skill.Failed("Sorry, I couldn't open the browser.", err)
	}
	return skill.Success("Searching Google for " + query)
}

func (s *WebSkill) play(ctx context.Context, env skill.Env, what string) skill.Result {
	if what == "" {
		var err error
		what, err = env.Ask(ctx, "What should I play?")
		if err != nil {
			return skill.Failed("", err)
		}
		what = strings.TrimSpace(what)
	}
	if what == "" {
		return skill.UserError("Sorry, I didn't catch what you wanted to play.", "play lofi music on youtube")
	}
	base := s.PlayURL
	if base == "" {
		base = DefaultPlayURL
	}
	if err := s.Opener.Open(base + url.QueryEscape(what)); err != nil {
		return skill.Failed("Sorry, I couldn't open YouTube.", err)
	}
	return skill.Success(fmt.Sprintf("Playing %s on YouTube", what))
}

// lookup prefers the longest matching site or app name, so "whatsapp web"
// wins over a shorter key.
func (s *WebSkill) lookup(target string) (string, string, bool) {
	target = strings.ToLower(target)
	sites := s.Sites
	if sites == nil {
		sites = DefaultSites
	}
	for _, table := range []map[string]string{sites, s.Apps} {
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
		for _, k := range keys {
			if strings.Contains(target, strings.ToLower(k)) {
				return k, table[k], true
			}
		}
	}
	return "", "", false
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

// SystemOpener hands targets to the desktop's default handler.
type SystemOpener struct{}

func (SystemOpener) Open(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
