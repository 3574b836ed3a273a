package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

const runFixture = `{
  "program": "app.p4",
  "topology": {
    "assignment_strategy": "l2",
    "hosts": {"h1": {}},
    "switches": {
      "s1": {"cli_input": "s1-commands.txt"},
      "s2": {}
    },
    "links": [["h1", "s1"], ["s1", "s2"]]
  }
}`

// testModule registers a fake component for every kind and records what the
// run invoked, in order.
type testModule struct {
	events []string

	compileErr   error
	startErr     error
	configureErr error
	saveErr      error
	sessionErr   error
}

func (m *testModule) record(event string) { m.events = append(m.events, event) }

type stubCompiler struct{ m *testModule }

func (c *stubCompiler) Compile(context.Context) error {
	c.m.record("compile")
	return c.m.compileErr
}
func (c *stubCompiler) Source() string                      { return "app.p4" }
func (c *stubCompiler) ArtifactPath() string                { return "app.json" }
func (c *stubCompiler) ControlMetadataPath() (string, error) {
	return "", component.ErrMetadataDisabled
}

type stubTopo struct{}

func (stubTopo) Hosts() []string { return []string{"h1"} }
func (stubTopo) HostInfo(name string) (component.HostInfo, bool) {
	if name != "h1" {
		return component.HostInfo{}, false
	}
	return component.HostInfo{IP: "10.0.0.1", PrefixLen: 16, MAC: "00:00:0a:00:00:01"}, true
}
func (stubTopo) IsP4Switch(name string) bool { return name == "s1" || name == "s2" }

type stubLiveHost struct{ m *testModule }

func (stubLiveHost) Name() string { return "h1" }
func (h stubLiveHost) Cmd(_ context.Context, cmd string) (string, error) {
	h.m.record("host: " + cmd)
	return "", nil
}
func (stubLiveHost) Intfs() []component.Intf {
	return []component.Intf{{Name: "h1-eth0", MAC: "00:00:0a:00:00:01", PeerMAC: "00:01:0a:00:00:01"}}
}
func (stubLiveHost) DefaultRoute() (string, bool) { return "", false }
func (stubLiveHost) Describe(io.Writer)           {}

type stubNet struct{ m *testModule }

func (n *stubNet) Start(context.Context) error {
	n.m.record("net start")
	return n.m.startErr
}
func (n *stubNet) Stop(context.Context) error {
	n.m.record("net stop")
	return nil
}
func (n *stubNet) Hosts() []component.LiveHost    { return []component.LiveHost{stubLiveHost{n.m}} }
func (n *stubNet) Switches() []component.LiveSwitch { return nil }
func (n *stubNet) Host(name string) (component.LiveHost, bool) {
	if name != "h1" {
		return nil, false
	}
	return stubLiveHost{n.m}, true
}

type stubController struct {
	m      *testModule
	script string
}

func (c *stubController) Configure(context.Context) error {
	c.m.record("configure " + c.script)
	return c.m.configureErr
}

type stubWriter struct{ m *testModule }

func (w *stubWriter) Save(_ context.Context, path string) error {
	w.m.record("save " + path)
	return w.m.saveErr
}

type stubSession struct{ m *testModule }

func (s *stubSession) Run(context.Context) error {
	s.m.record("session")
	return s.m.sessionErr
}

func (m *testModule) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindSwitchNode, "stubsw", func() {})
	r.RegisterDefault(schema.KindHostNode, "stubhost",
		component.NodeFactory(func(string, bag.Bag) (any, error) { return nil, nil }))
	r.RegisterDefault(schema.KindCompiler, "stubcompiler",
		component.CompilerFactory(func(string, bag.Bag) component.Compiler { return &stubCompiler{m} }))
	r.RegisterDefault(schema.KindController, "stubctl",
		component.ControllerFactory(func(script string, _ bag.Bag) component.Controller {
			return &stubController{m: m, script: script}
		}))
	r.RegisterDefault(schema.KindTopology, "stubtopo",
		component.TopologyFactory(func([]*schema.Switch, []schema.Link, []*schema.Host, string) (component.Topology, error) {
			m.record("build topo")
			return stubTopo{}, nil
		}))
	r.RegisterDefault(schema.KindNetwork, "stubnet",
		component.NetworkFactory(func(component.Topology, component.NetworkConfig) (component.Network, error) {
			return &stubNet{m}, nil
		}))
	r.RegisterDefault(schema.KindTopoDB, "stubdb",
		component.TopoDBFactory(func(component.Topology) component.TopoWriter { return &stubWriter{m} }))
	r.RegisterDefault(schema.KindSession, "stubsession",
		component.SessionFactory(func(component.SessionConfig) component.Session { return &stubSession{m} }))
}

func newTestApp(t *testing.T, mod *testModule, cli bool) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p4app.json")
	require.NoError(t, os.WriteFile(path, []byte(runFixture), 0o644))

	cfg := &Config{
		ConfigPath: path,
		LogDir:     filepath.Join(t.TempDir(), "log"),
		PcapDir:    filepath.Join(t.TempDir(), "pcap"),
		CLI:        cli,
		LogLevel:   "error",
		LogFormat:  "text",
	}
	a, err := NewApp(&bytes.Buffer{}, cfg, mod)
	require.NoError(t, err)
	a.settle = 0
	return a
}

func TestRunPhaseOrder(t *testing.T) {
	mod := &testModule{}
	a := newTestApp(t, mod, true)

	require.NoError(t, a.Run(context.Background()))

	// One compile for one distinct source, then the lifecycle in order.
	require.NotEmpty(t, mod.events)
	assert.Equal(t, "compile", mod.events[0])
	assert.Equal(t, "build topo", mod.events[1])
	assert.Equal(t, "net start", mod.events[2])

	idxOf := func(event string) int {
		for i, e := range mod.events {
			if e == event {
				return i
			}
		}
		t.Fatalf("event %q missing from %v", event, mod.events)
		return -1
	}
	assert.Less(t, idxOf("configure s1-commands.txt"), idxOf("save ./topology.db"))
	assert.Less(t, idxOf("save ./topology.db"), idxOf("session"))
	assert.Less(t, idxOf("session"), idxOf("net stop"))
}

func TestRunProvisionsHostsBetweenStartAndSwitches(t *testing.T) {
	mod := &testModule{}
	a := newTestApp(t, mod, false)

	require.NoError(t, a.Run(context.Background()))

	var sawHostCmd bool
	for _, e := range mod.events {
		if e == "net start" {
			assert.False(t, sawHostCmd)
		}
		if len(e) > 5 && e[:5] == "host:" {
			sawHostCmd = true
		}
		if e == "configure s1-commands.txt" {
			assert.True(t, sawHostCmd)
		}
	}
	assert.True(t, sawHostCmd)
}

func TestRunOnlyConfiguresSwitchesWithScripts(t *testing.T) {
	mod := &testModule{}
	a := newTestApp(t, mod, false)

	require.NoError(t, a.Run(context.Background()))

	configures := 0
	for _, e := range mod.events {
		if e == "configure s1-commands.txt" {
			configures++
		}
		assert.NotEqual(t, "configure ", e)
	}
	assert.Equal(t, 1, configures)
}

func TestRunWithoutCLILeavesNetworkRunning(t *testing.T) {
	mod := &testModule{}
	a := newTestApp(t, mod, false)

	require.NoError(t, a.Run(context.Background()))

	assert.NotContains(t, mod.events, "session")
	assert.NotContains(t, mod.events, "net stop")
}

func TestCompileFailureAbortsRun(t *testing.T) {
	mod := &testModule{compileErr: errors.New("bad program")}
	a := newTestApp(t, mod, true)

	err := a.Run(context.Background())
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseCompiling, perr.Phase)
	assert.NotContains(t, mod.events, "net start")
}

func TestStartFailureAbortsRun(t *testing.T) {
	mod := &testModule{startErr: errors.New("veth setup failed")}
	a := newTestApp(t, mod, true)

	err := a.Run(context.Background())
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseStartingNetwork, perr.Phase)
}

func TestSwitchConfigFailureIsFatal(t *testing.T) {
	mod := &testModule{configureErr: errors.New("table add rejected")}
	a := newTestApp(t, mod, true)

	err := a.Run(context.Background())
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseProvisioningSwitches, perr.Phase)
	var serr *SwitchConfigError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "s1", serr.Switch)
}

func TestSaveFailureIsBestEffort(t *testing.T) {
	mod := &testModule{saveErr: errors.New("disk full")}
	a := newTestApp(t, mod, false)

	require.NoError(t, a.Run(context.Background()))
}

func TestSessionFailureSurfaces(t *testing.T) {
	mod := &testModule{sessionErr: errors.New("terminal gone")}
	a := newTestApp(t, mod, true)

	err := a.Run(context.Background())
	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseInteractive, perr.Phase)
	assert.NotContains(t, mod.events, "net stop")
}
