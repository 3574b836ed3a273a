package mnet

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/schema"
)

// SwitchDriver is the contract a switch node implementation fulfils for
// this runtime. External switch nodes loaded through the registry must
// implement it.
type SwitchDriver interface {
	Start(ctx context.Context, sw *schema.Switch, ifaces []string, cfg component.NetworkConfig) error
	Stop(ctx context.Context) error
}

// HostDriver configures a live host beyond address assignment. run issues
// commands inside the host's namespace.
type HostDriver interface {
	Configure(ctx context.Context, host *schema.Host, run func(ctx context.Context, cmd string) (string, error)) error
}

const defaultSwitchBin = "simple_switch_grpc"

// BMv2 runs a behavioral-model switch process. Recognized options: sw_bin.
type BMv2 struct {
	name string
	opts bag.Bag
	cmd  *exec.Cmd
}

// NewBMv2Node is the default switch node factory.
func NewBMv2Node(name string, opts bag.Bag) (any, error) {
	return &BMv2{name: name, opts: opts}, nil
}

// Start launches the switch process and leaves it running in the
// background.
func (b *BMv2) Start(ctx context.Context, sw *schema.Switch, ifaces []string, cfg component.NetworkConfig) error {
	bin, ok := b.opts.String("sw_bin")
	if !ok {
		bin = defaultSwitchBin
	}

	var args []string
	for i, iface := range ifaces {
		args = append(args, "-i", fmt.Sprintf("%d@%s", i+1, iface))
	}
	args = append(args, "--thrift-port", strconv.Itoa(sw.ThriftPort))
	if cfg.PcapDump {
		args = append(args, "--pcap="+cfg.PcapDir)
	}
	if cfg.LogEnabled {
		args = append(args, "--log-file", filepath.Join(cfg.LogDir, sw.Name+".log"), "--log-flush")
	}
	if artifact, ok := sw.Opts.String("json_path"); ok && artifact != "" {
		args = append(args, artifact)
	} else {
		args = append(args, "--no-p4")
	}
	args = append(args, "--", "--grpc-server-addr", fmt.Sprintf("0.0.0.0:%d", sw.GRPCPort))
	if sw.CPUPort {
		args = append(args, "--cpu-port", "255")
	}

	ctxlog.FromContext(ctx).Info("Starting switch.", "switch", sw.Name, "bin", bin, "thrift_port", sw.ThriftPort, "grpc_port", sw.GRPCPort)
	cmd := exec.CommandContext(ctx, bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s for %s: %w", bin, sw.Name, err)
	}
	b.cmd = cmd
	return nil
}

// Stop kills the switch process.
func (b *BMv2) Stop(ctx context.Context) error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	if err := b.cmd.Process.Kill(); err != nil {
		return err
	}
	_ = b.cmd.Wait()
	b.cmd = nil
	return nil
}

// NSHost is the default host node driver: it turns off NIC offloads that
// confuse software switches and applies any sysctl options.
type NSHost struct {
	name string
	opts bag.Bag
}

// NewNSHost is the default host node factory.
func NewNSHost(name string, opts bag.Bag) (any, error) {
	return &NSHost{name: name, opts: opts}, nil
}

// Configure applies per-host tuning inside the namespace. Failures here
// are worth surfacing but none of them should stop a run, so they are
// logged and swallowed deliberately.
func (h *NSHost) Configure(ctx context.Context, host *schema.Host, run func(ctx context.Context, cmd string) (string, error)) error {
	logger := ctxlog.FromContext(ctx)

	for _, cmd := range []string{
		"sysctl -w net.ipv6.conf.all.disable_ipv6=1",
		"sysctl -w net.ipv4.tcp_congestion_control=reno",
	} {
		if _, err := run(ctx, cmd); err != nil {
			logger.Debug("Host tuning command failed.", "host", host.Name, "cmd", cmd, "error", err)
		}
	}
	return nil
}
