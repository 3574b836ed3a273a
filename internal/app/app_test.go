package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/p4grid/internal/config"
	"github.com/vk/p4grid/internal/resolve"
)

func TestNewConfigRequiresPath(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)

	cfg, err := NewConfig(Config{ConfigPath: "./p4app.json"})
	require.NoError(t, err)
	assert.Equal(t, "./p4app.json", cfg.ConfigPath)
}

func TestNewAppRejectsMissingDocument(t *testing.T) {
	cfg := &Config{ConfigPath: filepath.Join(t.TempDir(), "nope.json")}
	_, err := NewApp(&bytes.Buffer{}, cfg, &testModule{})
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
}

func TestNewAppRejectsDocumentWithoutTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p4app.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"program": "app.p4"}`), 0o644))

	_, err := NewApp(&bytes.Buffer{}, &Config{ConfigPath: path}, &testModule{})
	var rerr *resolve.ConfigError
	require.ErrorAs(t, err, &rerr)
}

func TestNewAppCreatesArtifactDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p4app.json")
	fixture := `{
  "program": "app.p4",
  "enable_log": true,
  "pcap_dump": true,
  "topology": {
    "hosts": {"h1": {}},
    "switches": {"s1": {}},
    "links": [["h1", "s1"]]
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	cfg := &Config{
		ConfigPath: path,
		LogDir:     filepath.Join(dir, "log"),
		PcapDir:    filepath.Join(dir, "pcap"),
	}
	_, err := NewApp(&bytes.Buffer{}, cfg, &testModule{})
	require.NoError(t, err)

	for _, d := range []string{cfg.LogDir, cfg.PcapDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewAppRejectsFileWhereDirExpected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p4app.json")
	fixture := `{
  "program": "app.p4",
  "enable_log": true,
  "topology": {"hosts": {}, "switches": {"s1": {}}}
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	logPath := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(logPath, []byte("x"), 0o644))

	_, err := NewApp(&bytes.Buffer{}, &Config{ConfigPath: path, LogDir: logPath}, &testModule{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestEmptyProgramSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p4app.json")
	fixture := `{
  "program": "forward.p4",
  "topology": {
    "hosts": {"h1": {}},
    "switches": {
      "s1": {"program": "other.p4"},
      "s2": {}
    },
    "links": [["h1", "s1"]]
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	a, err := NewApp(&bytes.Buffer{}, &Config{ConfigPath: path, EmptyP4: true}, &testModule{})
	require.NoError(t, err)

	resolved := a.Resolved()
	require.Len(t, resolved.Switches, 2)
	// Both the global program and the per-switch override now point at the
	// same materialized no-op source.
	assert.Equal(t, resolved.Switches[0].Program, resolved.Switches[1].Program)
	assert.NotEqual(t, "forward.p4", resolved.Switches[1].Program)
	data, err := os.ReadFile(resolved.Switches[1].Program)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
