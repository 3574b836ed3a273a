package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, opts, exit, err := Parse(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)

	assert.Equal(t, "./p4app.json", cfg.ConfigPath)
	assert.True(t, cfg.CLI)
	assert.False(t, cfg.EmptyP4)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, opts.Clean)
	assert.False(t, opts.CleanDir)
}

func TestParseOverrides(t *testing.T) {
	args := []string{
		"--config", "lab/p4app.yml",
		"--cli=false",
		"--empty-p4",
		"--clean",
		"--log-format", "json",
		"--log-level", "debug",
		"--log-dir", "/tmp/lab/log",
		"--pcap-dir", "/tmp/lab/pcap",
	}
	cfg, opts, _, err := Parse(args, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "lab/p4app.yml", cfg.ConfigPath)
	assert.False(t, cfg.CLI)
	assert.True(t, cfg.EmptyP4)
	assert.True(t, opts.Clean)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/lab/log", cfg.LogDir)
	assert.Equal(t, "/tmp/lab/pcap", cfg.PcapDir)
}

func TestParseHelpRequestsCleanExit(t *testing.T) {
	var out bytes.Buffer
	_, _, exit, err := Parse([]string{"--help"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Contains(t, out.String(), "p4grid")
}

func TestParseInvalidLogFormat(t *testing.T) {
	_, _, _, err := Parse([]string{"--log-format", "xml"}, &bytes.Buffer{})
	var eerr *ExitError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, 2, eerr.Code)
}

func TestParseInvalidLogLevel(t *testing.T) {
	_, _, _, err := Parse([]string{"--log-level", "loud"}, &bytes.Buffer{})
	var eerr *ExitError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, 2, eerr.Code)
}

func TestParseUnknownFlag(t *testing.T) {
	_, _, _, err := Parse([]string{"--frobnicate"}, &bytes.Buffer{})
	var eerr *ExitError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, 2, eerr.Code)
}

func TestParseCleanDirExitsAfterCleaning(t *testing.T) {
	_, opts, _, err := Parse([]string{"--clean-dir"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, opts.CleanDir)
}
