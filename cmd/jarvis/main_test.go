package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/jarvis/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSayWithMockVoices(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", `
audio:
  output: mock
speech:
  vendors:
    tts:
      provider: mock
    tts_fallback:
      provider: ""
`)
	_, err := execute(t, "say", "hello", "there", "-c", cfg, "-e", writeFile(t, dir, ".env", ""))
	assert.NoError(t, err)
}

func TestHistoryPrintsRecentEntries(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "jarvis.db")
	journal, err := history.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, journal.Record(context.Background(), history.Entry{
		Text: "schedule a meeting", Source: "voice", Skill: "schedule", Outcome: "success",
		StartedAt: time.Now(), Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, journal.Close())

	cfg := writeFile(t, dir, "config.yaml", "history:\n  path: "+dbPath+"\n")
	out, err := execute(t, "history", "-n", "5", "-c", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "TIME"))
	assert.Contains(t, out, "schedule a meeting")
	assert.Contains(t, out, "1.5s")
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := execute(t, "history", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
