// Package resolve turns a parsed configuration document into fully
// specified switch, link and host records: defaults merged, component
// handles attached, control-plane ports allocated. Resolution touches no
// external system; every error here surfaces before anything is compiled or
// started.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

const (
	thriftPortBase = 9090
	grpcPortBase   = 9559
)

// ConfigError reports an invalid or incomplete topology description.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "invalid topology: " + e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Env carries per-run settings that flow into the resolved option bags.
type Env struct {
	LogDir  string
	PcapDir string
}

// Result is the resolved object graph.
type Result struct {
	Switches []*schema.Switch
	Links    []schema.Link
	Hosts    []*schema.Host
	Strategy string
}

// Resolve resolves the document against the component registry. Counters
// and default bags are local to the call, so resolving the same document
// twice yields structurally equal, fully independent results.
func Resolve(ctx context.Context, doc *schema.Document, reg *registry.Registry, env Env) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	topo := doc.Topology
	if topo == nil {
		return nil, configErrorf("document has no topology section")
	}

	switchNode, err := reg.Load(schema.KindSwitchNode, doc.SwitchNode)
	if err != nil {
		return nil, err
	}
	controller, err := reg.Load(schema.KindController, doc.Controller)
	if err != nil {
		return nil, err
	}
	if len(controller.Options) == 0 {
		controller.Options = bag.New()
		controller.Options.SetBool("log_enabled", true)
		controller.Options.SetString("log_dir", env.LogDir)
	}

	res := &Result{Strategy: topo.AssignmentStrategy}

	for _, name := range sortedKeys(topo.Hosts) {
		raw := topo.Hosts[name]
		res.Hosts = append(res.Hosts, &schema.Host{
			Name:         name,
			Auto:         raw.Auto,
			DefaultRoute: raw.DefaultRoute,
			Commands:     append([]string(nil), raw.Commands...),
			Opts:         raw.Opts.Copy(),
		})
	}

	switches, err := resolveSwitches(doc, reg, env, switchNode, controller)
	if err != nil {
		return nil, err
	}
	res.Switches = switches

	links, err := resolveLinks(topo, res.Hosts, res.Switches)
	if err != nil {
		return nil, err
	}
	res.Links = links

	logger.Debug("Topology resolved.",
		"switches", len(res.Switches), "links", len(res.Links), "hosts", len(res.Hosts),
		"strategy", res.Strategy)
	return res, nil
}

// resolveSwitches applies defaults and per-switch overrides. Switches are
// processed in name order so that port assignment is deterministic for a
// given document.
func resolveSwitches(doc *schema.Document, reg *registry.Registry, env Env, switchNode, controller schema.Handle) ([]*schema.Switch, error) {
	topo := doc.Topology
	thrift := newPortAllocator(thriftPortBase)
	grpc := newPortAllocator(grpcPortBase)

	var out []*schema.Switch
	for _, name := range sortedKeys(topo.Switches) {
		override := topo.Switches[name]

		sw := &schema.Switch{
			Name:       name,
			Program:    doc.Program,
			CPUPort:    true,
			Node:       switchNode.Clone(),
			Controller: controller.Clone(),
			Opts:       bag.New(),
		}
		sw.Opts.SetBool("pcap_dump", doc.PcapDump)
		sw.Opts.SetString("pcap_dir", env.PcapDir)
		sw.Opts.SetBool("log_enabled", doc.EnableLog)

		if p, ok := override.String("program"); ok {
			sw.Program = p
		}
		if b, ok := override.Bool("cpu_port"); ok {
			sw.CPUPort = b
		}
		if s, ok := override.String("cli_input"); ok {
			sw.CLIInput = s
		}

		// A per-switch component override replaces the reference only;
		// the default option bag survives unless the override carries
		// its own.
		if child, ok := override.Child("switch_node"); ok {
			h, err := reg.Load(schema.KindSwitchNode, refFromBag(child))
			if err != nil {
				return nil, err
			}
			if len(h.Options) == 0 {
				h.Options = sw.Node.Options.Copy()
			}
			sw.Node = h
		}
		if child, ok := override.Child("controller_module"); ok {
			h, err := reg.Load(schema.KindController, refFromBag(child))
			if err != nil {
				return nil, err
			}
			if len(h.Options) == 0 {
				h.Options = sw.Controller.Options.Copy()
			}
			sw.Controller = h
		}

		if opts, ok := override.Child("opts"); ok {
			sw.Opts = bag.Merge(sw.Opts, opts)
		}

		if p, ok := sw.Opts.Int("thrift_port"); ok {
			if err := thrift.claim(p); err != nil {
				return nil, configErrorf("switch %q: thrift %v", name, err)
			}
			sw.ThriftPort = p
		} else {
			sw.ThriftPort = thrift.next()
		}
		if p, ok := sw.Opts.Int("grpc_port"); ok {
			if err := grpc.claim(p); err != nil {
				return nil, configErrorf("switch %q: grpc %v", name, err)
			}
			sw.GRPCPort = p
		} else {
			sw.GRPCPort = grpc.next()
		}
		sw.Opts.SetInt("thrift_port", sw.ThriftPort)
		sw.Opts.SetInt("grpc_port", sw.GRPCPort)

		// The controller always learns which switch it programs and
		// where to reach it.
		sw.Controller.Options.SetString("sw_name", name)
		sw.Controller.Options.SetInt("thrift_port", sw.ThriftPort)
		sw.Controller.Options.SetInt("grpc_port", sw.GRPCPort)

		out = append(out, sw)
	}
	return out, nil
}

// resolveLinks merges the per-topology default bag into each link and
// rejects links whose endpoints are both hosts or name unknown nodes.
func resolveLinks(topo *schema.TopologySection, hosts []*schema.Host, switches []*schema.Switch) ([]schema.Link, error) {
	defaults := bag.New()
	defaults.SetInt("weight", 1)
	for _, key := range []string{"bw", "delay", "loss", "max_queue_size"} {
		if v, ok := topo.Default[key]; ok {
			defaults[key] = v
		}
	}
	if w, ok := topo.Default["weight"]; ok {
		defaults["weight"] = w
	}

	isHost := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		isHost[h.Name] = true
	}
	known := make(map[string]bool, len(hosts)+len(switches))
	for name := range isHost {
		known[name] = true
	}
	for _, sw := range switches {
		known[sw.Name] = true
	}

	var out []schema.Link
	for _, raw := range topo.Links {
		if isHost[raw.Node1] && isHost[raw.Node2] {
			return nil, configErrorf("hosts must attach to switches: %s <-> %s link not possible", raw.Node1, raw.Node2)
		}
		if !known[raw.Node1] {
			return nil, configErrorf("link endpoint %q is not a declared node", raw.Node1)
		}
		if !known[raw.Node2] {
			return nil, configErrorf("link endpoint %q is not a declared node", raw.Node2)
		}
		out = append(out, schema.Link{
			Node1: raw.Node1,
			Node2: raw.Node2,
			Opts:  bag.Merge(defaults, raw.Opts),
		})
	}
	return out, nil
}

// refFromBag reads an inline component reference object.
func refFromBag(b bag.Bag) *schema.ComponentRef {
	ref := &schema.ComponentRef{Options: bag.New()}
	ref.FilePath, _ = b.String("file_path")
	ref.ModuleName, _ = b.String("module_name")
	ref.ObjectName, _ = b.String("object_name")
	if opts, ok := b.Child("options"); ok {
		ref.Options = opts
	}
	return ref
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
