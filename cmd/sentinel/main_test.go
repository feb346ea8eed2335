package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI against a fresh SQLite file in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--store", "sqlite",
		"--dsn", "file:" + filepath.Join(dir, "cli.db") + "?_pragma=busy_timeout(5000)",
		"--log-level", "error",
	}
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "sentinel dev\n", out)
}

func TestCheckCmd(t *testing.T) {
	t.Run("valid rule prints canonical form", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "check", "gaming AFTER 1x exercise WITHIN 60m")
		require.NoError(t, err)
		assert.Contains(t, out, "OK: gaming AFTER exercise WITHIN 1h")
	})

	t.Run("invalid rule points at the error", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "check", "a AND", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 rules invalid")
		assert.Contains(t, out, "ERROR:")
		assert.Contains(t, out, "  a AND\n       ^\n")
		assert.Contains(t, out, "OK: b")
	})

	t.Run("ast flag prints the tree", func(t *testing.T) {
		out, err := execute(t, t.TempDir(), "check", "--ast", "a SINCE b")
		require.NoError(t, err)
		assert.Contains(t, out, "SINCE(EVENT(a), EVENT(b))")
	})
}

func TestLogAndEvalCmds(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "log", "exercise", "--at", "1000", "-t", "gym, cardio")
	require.NoError(t, err)
	assert.Equal(t, "logged event 1: exercise at 1000\n", out)

	_, err = execute(t, dir, "log", "exercise", "--at", "2000")
	require.NoError(t, err)

	out, err = execute(t, dir, "eval", "gaming AFTER 2x exercise WITHIN 1h", "--at", "3000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "holds at "), out)

	out, err = execute(t, dir, "eval", "gaming AFTER 2x exercise WITHIN 1h", "--at", "1500")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "violated at "), out)

	_, err = execute(t, dir, "eval", "gaming AFTER")
	require.Error(t, err)
}

func TestContractCmds(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "contract", "add", "-n", "warm up", "-f", "daily", "gaming AFTER exercise")
	require.NoError(t, err)
	assert.Equal(t, "added contract 1\n", out)

	out, err = execute(t, dir, "contract", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "name:       warm up")
	assert.Contains(t, out, "trigger:    gaming")
	assert.Contains(t, out, "frequency:  daily")
	assert.Contains(t, out, "valid:      true")

	_, err = execute(t, dir, "contract", "add", "-n", "broken", "a AND")
	require.Error(t, err)

	_, err = execute(t, dir, "contract", "show", "42")
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseTime("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = parseTime("2024-06-01T08:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), got)

	got, err = parseTime("1717230600000", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1717230600000), got.UnixMilli())

	_, err = parseTime("yesterday", now)
	require.Error(t, err)
}
