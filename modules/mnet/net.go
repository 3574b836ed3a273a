package mnet

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/schema"
)

// shell runs one command line on the root namespace.
type shell func(ctx context.Context, line string) (string, error)

func systemShell(ctx context.Context, line string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", line).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w: %s", line, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Network is the default runtime: hosts are network namespaces wired with
// veth pairs, switches are bmv2 processes attached to the root-namespace
// link ends.
type Network struct {
	topo *Topology
	cfg  component.NetworkConfig
	sh   shell

	hosts    []*liveHost
	switches []*liveSwitch
	byName   map[string]*liveHost
	started  bool
}

// NewNetwork builds the runtime from the built topology and the resolved
// records.
func NewNetwork(topo component.Topology, cfg component.NetworkConfig) (component.Network, error) {
	t, ok := topo.(*Topology)
	if !ok {
		return nil, fmt.Errorf("the built-in network runtime requires the built-in topology builder, got %T", topo)
	}

	n := &Network{
		topo:   t,
		cfg:    cfg,
		sh:     systemShell,
		byName: make(map[string]*liveHost),
	}

	hostFactory, ok := cfg.HostNode.Factory.(component.NodeFactory)
	if !ok {
		return nil, fmt.Errorf("host node %s has the wrong factory signature", cfg.HostNode.Name)
	}

	for _, rec := range cfg.Hosts {
		entry, ok := t.entry(rec.Name)
		if !ok {
			return nil, fmt.Errorf("host %q missing from the built topology", rec.Name)
		}
		node, err := hostFactory(rec.Name, cfg.HostNode.Options.Copy())
		if err != nil {
			return nil, err
		}
		driver, ok := node.(HostDriver)
		if !ok {
			return nil, fmt.Errorf("host node %s does not implement the host driver contract", cfg.HostNode.Name)
		}
		lh := &liveHost{net: n, rec: rec, entry: entry, driver: driver}
		n.hosts = append(n.hosts, lh)
		n.byName[rec.Name] = lh
	}

	for _, sw := range cfg.Switches {
		factory, ok := sw.Node.Factory.(component.NodeFactory)
		if !ok {
			return nil, fmt.Errorf("switch node %s has the wrong factory signature", sw.Node.Name)
		}
		node, err := factory(sw.Name, sw.Node.Options.Copy())
		if err != nil {
			return nil, err
		}
		driver, ok := node.(SwitchDriver)
		if !ok {
			return nil, fmt.Errorf("switch node %s does not implement the switch driver contract", sw.Node.Name)
		}
		n.switches = append(n.switches, &liveSwitch{rec: sw, driver: driver})
	}

	return n, nil
}

// Start creates namespaces and links, configures host addresses and boots
// the switch processes.
func (n *Network) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Starting emulated network.", "hosts", len(n.hosts), "switches", len(n.switches))

	for _, h := range n.hosts {
		if _, err := n.sh(ctx, fmt.Sprintf("ip netns add %s", h.rec.Name)); err != nil {
			return err
		}
		if _, err := h.Cmd(ctx, "ip link set lo up"); err != nil {
			return err
		}
	}

	if err := n.wireLinks(ctx); err != nil {
		return err
	}

	for _, h := range n.hosts {
		iface := h.Intfs()[0]
		addr := fmt.Sprintf("%s/%d", h.entry.info.IP, h.entry.info.PrefixLen)
		if _, err := h.Cmd(ctx, fmt.Sprintf("ip addr add %s dev %s", addr, iface.Name)); err != nil {
			return err
		}
		if _, err := h.Cmd(ctx, fmt.Sprintf("ip link set %s address %s up", iface.Name, h.entry.info.MAC)); err != nil {
			return err
		}
		if gw, ok := h.DefaultRoute(); ok {
			if _, err := h.Cmd(ctx, fmt.Sprintf("ip route add default via %s", gw)); err != nil {
				return err
			}
		}
		if err := h.driver.Configure(ctx, h.rec, h.Cmd); err != nil {
			return err
		}
	}

	for _, s := range n.switches {
		var ifaces []string
		for _, plan := range n.topo.nodePlans(s.rec.Name) {
			ifaces = append(ifaces, plan.Name)
		}
		if err := s.driver.Start(ctx, s.rec, ifaces, n.cfg); err != nil {
			return err
		}
	}

	n.started = true
	return nil
}

// wireLinks creates one veth pair per link; host-side ends move into the
// host namespace, switch-side ends stay in the root namespace for bmv2.
func (n *Network) wireLinks(ctx context.Context) error {
	done := make(map[string]bool)
	for _, name := range n.topo.Hosts() {
		for _, plan := range n.topo.nodePlans(name) {
			if err := n.wireOne(ctx, name, plan, done); err != nil {
				return err
			}
		}
	}
	for _, s := range n.switches {
		for _, plan := range n.topo.nodePlans(s.rec.Name) {
			if err := n.wireOne(ctx, s.rec.Name, plan, done); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Network) wireOne(ctx context.Context, node string, plan intfPlan, done map[string]bool) error {
	key := linkKey(plan.Name, plan.PeerIntf)
	if done[key] {
		return nil
	}
	done[key] = true

	if _, err := n.sh(ctx, fmt.Sprintf("ip link add %s type veth peer name %s", plan.Name, plan.PeerIntf)); err != nil {
		return err
	}
	for _, side := range []struct {
		owner string
		intf  string
	}{{node, plan.Name}, {plan.PeerNode, plan.PeerIntf}} {
		if _, isHost := n.byName[side.owner]; isHost {
			if _, err := n.sh(ctx, fmt.Sprintf("ip link set %s netns %s", side.intf, side.owner)); err != nil {
				return err
			}
		} else {
			if _, err := n.sh(ctx, fmt.Sprintf("ip link set %s up", side.intf)); err != nil {
				return err
			}
		}
	}
	return nil
}

func linkKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Stop tears the network down: switch processes first, then namespaces and
// remaining root-namespace link ends.
func (n *Network) Stop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Stopping emulated network.")

	for _, s := range n.switches {
		if err := s.driver.Stop(ctx); err != nil {
			logger.Warn("Switch did not stop cleanly.", "switch", s.rec.Name, "error", err)
		}
	}
	for _, h := range n.hosts {
		if _, err := n.sh(ctx, fmt.Sprintf("ip netns del %s", h.rec.Name)); err != nil {
			logger.Warn("Namespace did not delete cleanly.", "host", h.rec.Name, "error", err)
		}
	}
	for _, s := range n.switches {
		for _, plan := range n.topo.nodePlans(s.rec.Name) {
			_, _ = n.sh(ctx, fmt.Sprintf("ip link del %s", plan.Name))
		}
	}
	n.started = false
	return nil
}

// Hosts returns the live hosts.
func (n *Network) Hosts() []component.LiveHost {
	out := make([]component.LiveHost, len(n.hosts))
	for i, h := range n.hosts {
		out[i] = h
	}
	return out
}

// Switches returns the live switches.
func (n *Network) Switches() []component.LiveSwitch {
	out := make([]component.LiveSwitch, len(n.switches))
	for i, s := range n.switches {
		out[i] = s
	}
	return out
}

// Host looks up one live host by name.
func (n *Network) Host(name string) (component.LiveHost, bool) {
	h, ok := n.byName[name]
	return h, ok
}

// liveHost is a running emulated host backed by a network namespace.
type liveHost struct {
	net    *Network
	rec    *schema.Host
	entry  *hostEntry
	driver HostDriver
}

func (h *liveHost) Name() string { return h.rec.Name }

// Cmd runs a shell command inside the host's namespace.
func (h *liveHost) Cmd(ctx context.Context, cmd string) (string, error) {
	return h.net.sh(ctx, fmt.Sprintf("ip netns exec %s sh -c %q", h.rec.Name, cmd))
}

func (h *liveHost) Intfs() []component.Intf {
	plans := h.net.topo.nodePlans(h.rec.Name)
	out := make([]component.Intf, len(plans))
	for i, p := range plans {
		out[i] = component.Intf{Name: p.Name, MAC: p.MAC, PeerMAC: p.PeerMAC}
	}
	return out
}

func (h *liveHost) DefaultRoute() (string, bool) {
	if h.entry.gateway == "" {
		return "", false
	}
	return h.entry.gateway, true
}

func (h *liveHost) Describe(w io.Writer) {
	fmt.Fprintf(w, "Host %s: ip=%s/%d mac=%s\n",
		h.rec.Name, h.entry.info.IP, h.entry.info.PrefixLen, h.entry.info.MAC)
}

// liveSwitch is a running switch process.
type liveSwitch struct {
	rec    *schema.Switch
	driver SwitchDriver
}

func (s *liveSwitch) Name() string { return s.rec.Name }

func (s *liveSwitch) Describe(w io.Writer) {
	artifact, _ := s.rec.Opts.String("json_path")
	fmt.Fprintf(w, "Switch %s: thrift=%d grpc=%d program=%s\n",
		s.rec.Name, s.rec.ThriftPort, s.rec.GRPCPort, artifact)
}
