package skills

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
)

// JSONGetter is satisfied by svcclient.Client.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

const DefaultWeatherURL = "https://wttr.in/{city}?format=j1"

// WeatherSkill reads a wttr.in style forecast and speaks today's summary.
type WeatherSkill struct {
	Client      JSONGetter
	URL         string
	DefaultCity string
}

type wttrReport struct {
	Weather []wttrDay `json:"weather"`
}

type wttrDay struct {
	Date     string     `json:"date"`
	AvgTempC string     `json:"avgtempC"`
	Hourly   []wttrHour `json:"hourly"`
}

type wttrHour struct {
	WeatherDesc []struct {
		Value string `json:"value"`
	} `json:"weatherDesc"`
}

func (s *WeatherSkill) Name() string { return "weather" }

func (s *WeatherSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	city := strings.TrimSpace(req.Arg("city"))
	if city == "" {
		city = s.DefaultCity
	}
	if city == "" {
		city = "Mumbai"
	}
	city = titleWords(city)
	tmpl := s.URL
	if tmpl == "" {
		tmpl = DefaultWeatherURL
	}
	var report wttrReport
	if err := s.Client.GetJSON(ctx, strings.ReplaceAll(tmpl, "{city}", url.PathEscape(city)), &report); err != nil {
		return skill.Failed(fmt.Sprintf("Couldn't get weather for %s.", city), err)
	}
	if len(report.Weather) == 0 {
		return skill.Failed(fmt.Sprintf("Couldn't get weather for %s.", city), nil)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Weather forecast for %s\n", city)
	for i, day := range report.Weather {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%s: %s, avg %s°C\n", day.Date, dominantCondition(day.Hourly), day.AvgTempC)
	}
	env.Display(strings.TrimSpace(b.String()))
	today := report.Weather[0]
	return skill.Success(fmt.Sprintf("Today in %s, the weather is mostly %s, with an average temperature of %s degrees Celsius.",
		city, strings.ToLower(dominantCondition(today.Hourly)), today.AvgTempC))
}

// dominantCondition returns the most frequent description; ties keep the
// earliest.
func dominantCondition(hourly []wttrHour) string {
	counts := make(map[string]int)
	best, bestN := "unknown", 0
	for _, h := range hourly {
		if len(h.WeatherDesc) == 0 {
			continue
		}
		d := strings.TrimSpace(h.WeatherDesc[0].Value)
		counts[d]++
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best
}
