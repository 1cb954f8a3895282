package espeak

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeRunsSlowRate(t *testing.T) {
	s := New(Config{Voice: "en"})
	var gotName, gotStdin string
	var gotArgs []string
	s.run = func(_ context.Context, name string, args []string, stdin string) ([]byte, error) {
		gotName, gotArgs, gotStdin = name, args, stdin
		return []byte("RIFF...."), nil
	}

	clip, err := s.Synthesize(context.Background(), "  Going to sleep. ")
	require.NoError(t, err)
	assert.Equal(t, audio.FormatWAV, clip.Format)
	assert.Equal(t, "espeak", gotName)
	assert.Equal(t, []string{"-s", "174", "--stdout", "--stdin", "-v", "en"}, gotArgs)
	assert.Equal(t, "Going to sleep.", gotStdin)
}

func TestSynthesizeFailureCarriesReason(t *testing.T) {
	s := New(Config{})
	s.run = func(context.Context, string, []string, string) ([]byte, error) {
		return nil, errors.New("exec: not found")
	}
	_, err := s.Synthesize(context.Background(), "hello")
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonSynthesis))

	s.run = func(context.Context, string, []string, string) ([]byte, error) { return nil, nil }
	_, err = s.Synthesize(context.Background(), "hello")
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonSynthesis))
}
