package skills

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/skill"
)

const (
	MsgMuted         = "Okay, I am now muted."
	MsgUnmuted       = "Okay, I am unmuted now."
	MsgVolumeUp      = "Okay, increasing volume."
	MsgVolumeDown    = "Okay, lowering volume."
	MsgVolumeUnknown = "Do you want the volume up, down, muted or unmuted?"
)

var (
	unmuteRe     = regexp.MustCompile(`\bunmute\b|\bsound on\b`)
	muteRe       = regexp.MustCompile(`\bmute\b|\bsilence\b|\bsound off\b`)
	volumeUpRe   = regexp.MustCompile(`\bvolume up\b|\blouder\b|\b(?:increase|raise) (?:the )?(?:sound|volume)\b`)
	volumeDownRe = regexp.MustCompile(`\bvolume down\b|\bquieter\b|\b(?:decrease|lower) (?:the )?(?:sound|volume)\b`)
)

// VolumeSkill mutes, unmutes and steps the assistant's output level.
// Unmute is checked before mute since "unmute" contains it.
type VolumeSkill struct {
	Mixer audio.Mixer
}

func (s *VolumeSkill) Name() string { return "volume" }

func (s *VolumeSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	if s.Mixer == nil {
		return skill.UserError("Sorry, I can't change the volume on this output.", "")
	}
	text := strings.ToLower(req.Command)
	switch {
	case unmuteRe.MatchString(text):
		s.Mixer.SetMuted(false)
		return skill.Success(MsgUnmuted)
	case muteRe.MatchString(text):
		// confirm while still audible
		if err := env.SpeakAndWait(ctx, MsgMuted); err != nil {
			return skill.Failed("", err)
		}
		s.Mixer.SetMuted(true)
		return skill.Success(MsgMuted).AlreadySpoken()
	case volumeUpRe.MatchString(text):
		s.Mixer.AdjustVolume(audio.VolumeStep)
		return skill.Success(MsgVolumeUp)
	case volumeDownRe.MatchString(text):
		level := s.Mixer.AdjustVolume(-audio.VolumeStep)
		return skill.Success(fmt.Sprintf("%s It is at %d percent.", MsgVolumeDown, int(math.Round(level*100))))
	default:
		return skill.UserError(MsgVolumeUnknown, "volume up")
	}
}
