// Package thrift is the default controller component: it feeds a CLI input
// script to the switch's Thrift control-plane port via the simple_switch_CLI
// binary.
package thrift

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

const defaultCLIBin = "simple_switch_CLI"

// Module registers the default controller.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindController, "thrift", component.ControllerFactory(New))
}

// Controller programs one switch. Recognized options: cli_bin, sw_name,
// thrift_port, log_enabled, log_dir.
type Controller struct {
	scriptPath string
	opts       bag.Bag
}

// New builds a controller. A controller is created for every switch; only
// those with a script path have anything to configure.
func New(scriptPath string, opts bag.Bag) component.Controller {
	return &Controller{scriptPath: scriptPath, opts: opts}
}

// Configure pipes the script into the switch CLI.
func (c *Controller) Configure(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if c.scriptPath == "" {
		return nil
	}
	script, err := os.Open(c.scriptPath)
	if err != nil {
		return fmt.Errorf("open cli input: %w", err)
	}
	defer script.Close()

	bin, ok := c.opts.String("cli_bin")
	if !ok {
		bin = defaultCLIBin
	}
	port, ok := c.opts.Int("thrift_port")
	if !ok {
		return fmt.Errorf("controller options are missing thrift_port")
	}
	swName, _ := c.opts.String("sw_name")
	logger.Info("Configuring switch.", "switch", swName, "thrift_port", port, "script", c.scriptPath)

	cmd := exec.CommandContext(ctx, bin, "--thrift-port", strconv.Itoa(port))
	cmd.Stdin = script
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s --thrift-port %d: %w\n%s", bin, port, err, strings.TrimSpace(string(out)))
	}

	if logEnabled, _ := c.opts.Bool("log_enabled"); logEnabled {
		if logDir, ok := c.opts.String("log_dir"); ok && logDir != "" {
			logPath := filepath.Join(logDir, swName+"_cli_output.log")
			if err := os.WriteFile(logPath, out, 0o644); err != nil {
				logger.Warn("Could not write CLI output log.", "path", logPath, "error", err)
			}
		}
	}
	return nil
}
