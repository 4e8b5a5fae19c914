package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelRecognizesAllSixNames(t *testing.T) {
	cases := map[string]struct {
		off bool
	}{
		"error": {}, "warn": {}, "info": {}, "debug": {}, "trace": {}, "off": {true}, "": {true},
	}
	for name, want := range cases {
		_, off, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want.off, off, name)
	}
}

func TestParseLevelRejectsUnknownName(t *testing.T) {
	_, _, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tattoy.log")

	require.NoError(t, Init(Options{Level: "debug", Path: path}))
	Info("test message", "key", "value")
	assert.True(t, IsLogging())
	Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestInitStderrShowsWarnAndAboveOnly(t *testing.T) {
	var stderr bytes.Buffer
	dir := t.TempDir()

	require.NoError(t, Init(Options{Level: "info", Path: filepath.Join(dir, "tattoy.log"), Stderr: &stderr}))
	Info("info message")
	Warn("warn message")
	Error("error message")
	Close()

	output := stderr.String()
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestInitOffDisablesFileLoggingWithoutEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tattoy.log")

	require.NoError(t, Init(Options{Level: "off", Path: path}))
	Error("should not be written")
	Close()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, IsLogging())
}

func TestTattoyLogEnvOverridesConfiguredLevelAndMirrorsToRustLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tattoy.log")
	t.Setenv("TATTOY_LOG", "trace")
	t.Setenv("RUST_LOG", "")

	require.NoError(t, Init(Options{Level: "off", Path: path}))
	Trace("trace message")
	Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "trace message")
	assert.Contains(t, string(content), `"TRACE"`)
	assert.Equal(t, "trace", os.Getenv("RUST_LOG"))
}

func TestEnableTokioConsoleIsReadAsNoOpToggle(t *testing.T) {
	t.Setenv("ENABLE_TOKIO_CONSOLE", "1")
	dir := t.TempDir()

	require.NoError(t, Init(Options{Level: "debug", Path: filepath.Join(dir, "tattoy.log")}))
	Close()
}

func TestSetOutputRedirectsLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Debug("redirected")
	assert.True(t, strings.Contains(buf.String(), "redirected"))
}
