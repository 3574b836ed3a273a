package app

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/vk/p4grid/internal/compile"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/provision"
	"github.com/vk/p4grid/internal/schema"
)

// Phase names one state of the run lifecycle. Phases execute in a strict
// order; compile, build, start and switch configuration are fatal on
// failure, host provisioning and script execution are best-effort.
type Phase string

const (
	PhaseCompiling            Phase = "compiling"
	PhaseBuildingTopology     Phase = "building-topology"
	PhaseStartingNetwork      Phase = "starting-network"
	PhaseProvisioningHosts    Phase = "provisioning-hosts"
	PhaseProvisioningSwitches Phase = "provisioning-switches"
	PhaseSavingTopology       Phase = "saving-topology"
	PhaseRunningScripts       Phase = "running-scripts"
	PhaseInteractive          Phase = "interactive-session"
)

// PhaseError wraps a fatal failure with the phase it happened in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// SwitchConfigError reports a failed switch configuration. Switch state is
// load-bearing for everything downstream, so this aborts the run.
type SwitchConfigError struct {
	Switch string
	Err    error
}

func (e *SwitchConfigError) Error() string {
	return fmt.Sprintf("configure switch %s: %v", e.Switch, e.Err)
}

func (e *SwitchConfigError) Unwrap() error { return e.Err }

func withRunContext(a *App) context.Context {
	return ctxlog.WithLogger(context.Background(), a.logger)
}

// Run drives the phase sequence. There are no retries: a fatal phase stops
// the run, and the whole pipeline is meant to be re-run from a clean slate.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	for _, step := range []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseCompiling, a.compilePrograms},
		{PhaseBuildingTopology, a.buildTopology},
		{PhaseStartingNetwork, a.startNetwork},
		{PhaseProvisioningHosts, a.provisionHosts},
		{PhaseProvisioningSwitches, a.provisionSwitches},
		{PhaseSavingTopology, a.saveTopology},
		{PhaseRunningScripts, a.runScripts},
	} {
		a.logger.Info("Entering phase.", "phase", step.phase)
		if err := step.fn(ctx); err != nil {
			return &PhaseError{Phase: step.phase, Err: err}
		}
	}

	if a.cfg.CLI {
		a.logger.Info("Entering phase.", "phase", PhaseInteractive)
		if err := a.interactiveSession(ctx); err != nil {
			return &PhaseError{Phase: PhaseInteractive, Err: err}
		}
		a.logger.Info("Interactive session closed, stopping network.")
		if err := a.net.Stop(ctx); err != nil {
			return &PhaseError{Phase: PhaseInteractive, Err: err}
		}
	} else {
		a.logger.Info("Interactive session disabled; network left running.")
	}

	a.logger.Info("Run complete.")
	return nil
}

func (a *App) compilePrograms(ctx context.Context) error {
	factory, ok := a.compilerH.Factory.(component.CompilerFactory)
	if !ok {
		return fmt.Errorf("component %s/%s has the wrong factory signature", a.compilerH.Kind, a.compilerH.Name)
	}
	compilations, err := compile.All(ctx, a.resolved.Switches, factory, a.compilerH.Options)
	if err != nil {
		return err
	}
	a.compilations = compilations
	return nil
}

func (a *App) buildTopology(ctx context.Context) error {
	factory, ok := a.topoH.Factory.(component.TopologyFactory)
	if !ok {
		return fmt.Errorf("component %s/%s has the wrong factory signature", a.topoH.Kind, a.topoH.Name)
	}
	topo, err := factory(a.resolved.Switches, a.resolved.Links, a.resolved.Hosts, a.resolved.Strategy)
	if err != nil {
		return err
	}
	a.topo = topo
	return nil
}

func (a *App) startNetwork(ctx context.Context) error {
	factory, ok := a.netH.Factory.(component.NetworkFactory)
	if !ok {
		return fmt.Errorf("component %s/%s has the wrong factory signature", a.netH.Kind, a.netH.Name)
	}
	net, err := factory(a.topo, component.NetworkConfig{
		Switches:   a.resolved.Switches,
		Hosts:      a.resolved.Hosts,
		Links:      a.resolved.Links,
		HostNode:   a.hostNodeH,
		LogDir:     a.cfg.LogDir,
		PcapDir:    a.cfg.PcapDir,
		PcapDump:   a.doc.PcapDump,
		LogEnabled: a.doc.EnableLog,
	})
	if err != nil {
		return err
	}
	if err := net.Start(ctx); err != nil {
		return err
	}
	a.net = net
	// The runtime performs asynchronous startup work it does not signal.
	a.pause()
	return nil
}

// provisionHosts programs each host independently; a failing host is
// reported and the rest still get provisioned.
func (a *App) provisionHosts(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	pol := provision.PolicyFromDefaults(a.doc.Topology.Default)

	byName := make(map[string]*schema.Host, len(a.resolved.Hosts))
	for _, h := range a.resolved.Hosts {
		byName[h.Name] = h
	}

	for _, name := range a.topo.Hosts() {
		rec, ok := byName[name]
		if !ok {
			logger.Warn("Topology host has no resolved record, skipping.", "host", name)
			continue
		}
		live, ok := a.net.Host(name)
		if !ok {
			logger.Warn("Host not present in live network, skipping.", "host", name)
			continue
		}
		if err := provision.Host(ctx, rec, live, a.topo, pol); err != nil {
			logger.Error("Host provisioning failed.", "host", name, "error", err)
		}
	}
	return nil
}

// provisionSwitches constructs a controller per switch and runs its
// configure step when a CLI input script is declared.
func (a *App) provisionSwitches(ctx context.Context) error {
	a.controllers = a.controllers[:0]
	for _, sw := range a.resolved.Switches {
		factory, ok := sw.Controller.Factory.(component.ControllerFactory)
		if !ok {
			return &SwitchConfigError{Switch: sw.Name, Err: fmt.Errorf("controller %s has the wrong factory signature", sw.Controller.Name)}
		}
		ctrl := factory(sw.CLIInput, sw.Controller.Options)
		a.controllers = append(a.controllers, ctrl)
		if sw.CLIInput == "" {
			continue
		}
		if err := ctrl.Configure(ctx); err != nil {
			return &SwitchConfigError{Switch: sw.Name, Err: err}
		}
	}
	return nil
}

// saveTopology writes the topology database; failure to persist it never
// stops a run that is otherwise healthy.
func (a *App) saveTopology(ctx context.Context) error {
	factory, ok := a.topoDBH.Factory.(component.TopoDBFactory)
	if !ok {
		ctxlog.FromContext(ctx).Warn("Topology writer has the wrong factory signature, skipping save.")
		return nil
	}
	if err := factory(a.topo).Save(ctx, "./topology.db"); err != nil {
		ctxlog.FromContext(ctx).Error("Saving topology database failed.", "error", err)
	}
	return nil
}

// runScripts executes the configured scripts in declared order. Scripts are
// assumed independent: a failure is reported and the next script still
// runs. The reboot_run flag is informational for callers that re-run the
// emulation and is not consulted here.
func (a *App) runScripts(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if len(a.doc.ExecScripts) == 0 {
		return nil
	}
	a.pause()
	for _, script := range a.doc.ExecScripts {
		logger.Info("Exec script.", "cmd", script.Cmd)
		out, err := exec.CommandContext(ctx, "sh", "-c", script.Cmd).CombinedOutput()
		if err != nil {
			logger.Error("Script failed.", "cmd", script.Cmd, "output", string(out), "error", err)
		}
	}
	return nil
}

func (a *App) interactiveSession(ctx context.Context) error {
	factory, ok := a.sessionH.Factory.(component.SessionFactory)
	if !ok {
		return fmt.Errorf("component %s/%s has the wrong factory signature", a.sessionH.Kind, a.sessionH.Name)
	}
	session := factory(component.SessionConfig{
		Network:      a.net,
		Topology:     a.topo,
		Switches:     a.resolved.Switches,
		Compilations: a.compilations,
		LogDir:       a.cfg.LogDir,
		PcapDir:      a.cfg.PcapDir,
		Out:          a.outW,
	})
	return session.Run(ctx)
}

func (a *App) pause() {
	if a.settle > 0 {
		time.Sleep(a.settle)
	}
}
