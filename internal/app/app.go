// Package app owns the end-to-end lifecycle of an emulation run: it loads
// and resolves the configuration, then drives the fixed phase order of
// compile, build, start, provision, script execution and the optional
// interactive session.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/config"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/resolve"
	"github.com/vk/p4grid/internal/schema"
)

// App encapsulates one emulation run's dependencies, configuration and
// lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *Config
	runID  string

	registry *registry.Registry
	doc      *schema.Document
	resolved *resolve.Result

	compilerH schema.Handle
	topoH     schema.Handle
	netH      schema.Handle
	topoDBH   schema.Handle
	sessionH  schema.Handle
	hostNodeH schema.Handle

	topo         component.Topology
	net          component.Network
	controllers  []component.Controller
	compilations []*schema.Compilation

	// settle is the pause granted to the live network after start and
	// before script execution; the runtime finishes asynchronous work it
	// does not signal. Tests shrink it.
	settle time.Duration
}

// NewApp loads the document, registers components and resolves the
// topology. Any error here aborts before an external system is touched.
func NewApp(outW io.Writer, cfg *Config, mods ...registry.Module) (*App, error) {
	runID := uuid.NewString()[:8]
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW).With("run_id", runID)
	a := &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		runID:  runID,
		settle: time.Second,
	}

	doc, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	a.doc = doc
	logger.Debug("Configuration document loaded.", "path", cfg.ConfigPath)

	if cfg.EmptyP4 {
		if err := a.substituteEmptyProgram(); err != nil {
			return nil, err
		}
		logger.Info("Empty program selected; all forwarding logic disabled.")
	}

	if doc.EnableLog {
		if err := ensureDir(cfg.LogDir); err != nil {
			return nil, err
		}
	}
	if doc.PcapDump {
		if err := ensureDir(cfg.PcapDir); err != nil {
			return nil, err
		}
	}

	reg := registry.New()
	if len(mods) == 0 {
		mods = coreModules
	}
	for _, mod := range mods {
		mod.Register(reg)
	}
	a.registry = reg
	logger.Debug("Built-in components registered.", "count", len(mods))

	for _, slot := range []struct {
		kind schema.Kind
		ref  *schema.ComponentRef
		dst  *schema.Handle
	}{
		{schema.KindCompiler, doc.Compiler, &a.compilerH},
		{schema.KindTopology, doc.TopoBuilder, &a.topoH},
		{schema.KindNetwork, doc.Network, &a.netH},
		{schema.KindTopoDB, doc.TopoDB, &a.topoDBH},
		{schema.KindSession, doc.Session, &a.sessionH},
		{schema.KindHostNode, doc.HostNode, &a.hostNodeH},
	} {
		h, err := reg.Load(slot.kind, slot.ref)
		if err != nil {
			return nil, err
		}
		*slot.dst = h
	}

	ctx := withRunContext(a)
	resolved, err := resolve.Resolve(ctx, doc, reg, resolve.Env{
		LogDir:  cfg.LogDir,
		PcapDir: cfg.PcapDir,
	})
	if err != nil {
		return nil, err
	}
	a.resolved = resolved

	return a, nil
}

// Resolved exposes the resolved records, primarily for tests.
func (a *App) Resolved() *resolve.Result {
	return a.resolved
}

// ensureDir creates dir if needed, and refuses a path that exists but is
// not a directory.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%q exists and is not a directory", dir)
	}
	return nil
}
