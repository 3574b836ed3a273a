package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/schema"
)

// The HCL form of the document. Switches and hosts are labeled blocks;
// free-form options are plain attributes collected from the remaining body.

type hclComponentRef struct {
	FilePath   string    `hcl:"file_path,optional"`
	ModuleName string    `hcl:"module_name,optional"`
	ObjectName string    `hcl:"object_name,optional"`
	Options    cty.Value `hcl:"options,optional"`
}

type hclExecScript struct {
	Cmd       string `hcl:"cmd"`
	RebootRun bool   `hcl:"reboot_run,optional"`
}

type hclHost struct {
	Name         string   `hcl:"name,label"`
	Auto         bool     `hcl:"auto,optional"`
	DefaultRoute string   `hcl:"default_route,optional"`
	Commands     []string `hcl:"commands,optional"`
	Remain       hcl.Body `hcl:",remain"`
}

type hclSwitch struct {
	Name   string   `hcl:"name,label"`
	Remain hcl.Body `hcl:",remain"`
}

type hclLink struct {
	Node1  string   `hcl:"node1"`
	Node2  string   `hcl:"node2"`
	Remain hcl.Body `hcl:",remain"`
}

type hclTopology struct {
	AssignmentStrategy string      `hcl:"assignment_strategy"`
	Default            cty.Value   `hcl:"default,optional"`
	Links              []hclLink   `hcl:"link,block"`
	Hosts              []hclHost   `hcl:"host,block"`
	Switches           []hclSwitch `hcl:"switch,block"`
}

type hclDocument struct {
	Program   string `hcl:"program,optional"`
	EnableLog bool   `hcl:"enable_log,optional"`
	PcapDump  bool   `hcl:"pcap_dump,optional"`

	SwitchNode  *hclComponentRef `hcl:"switch_node,block"`
	HostNode    *hclComponentRef `hcl:"host_node,block"`
	Compiler    *hclComponentRef `hcl:"compiler_module,block"`
	Controller  *hclComponentRef `hcl:"controller_module,block"`
	TopoBuilder *hclComponentRef `hcl:"topo_module,block"`
	TopoDB      *hclComponentRef `hcl:"topodb_module,block"`
	Network     *hclComponentRef `hcl:"mininet_module,block"`
	Session     *hclComponentRef `hcl:"session_module,block"`

	ExecScripts []hclExecScript `hcl:"exec_script,block"`
	Topology    *hclTopology    `hcl:"topology,block"`
}

func loadHCL(path string, data []byte) (*schema.Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, &Error{File: path, Err: diags}
	}

	var raw hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, &Error{File: path, Err: diags}
	}

	doc := &schema.Document{
		Program:     raw.Program,
		EnableLog:   raw.EnableLog,
		PcapDump:    raw.PcapDump,
		SwitchNode:  refFromHCL(raw.SwitchNode),
		HostNode:    refFromHCL(raw.HostNode),
		Compiler:    refFromHCL(raw.Compiler),
		Controller:  refFromHCL(raw.Controller),
		TopoBuilder: refFromHCL(raw.TopoBuilder),
		TopoDB:      refFromHCL(raw.TopoDB),
		Network:     refFromHCL(raw.Network),
		Session:     refFromHCL(raw.Session),
	}
	for _, s := range raw.ExecScripts {
		doc.ExecScripts = append(doc.ExecScripts, schema.ExecScript{Cmd: s.Cmd, RebootRun: s.RebootRun})
	}

	if raw.Topology == nil {
		return doc, nil
	}

	topo := &schema.TopologySection{
		AssignmentStrategy: raw.Topology.AssignmentStrategy,
		Default:            bag.New(),
		Hosts:              make(map[string]schema.RawHost),
		Switches:           make(map[string]bag.Bag),
	}
	if def, ok := bag.FromValue(raw.Topology.Default); ok {
		topo.Default = def
	}
	for _, h := range raw.Topology.Hosts {
		opts, err := remainAttrs(h.Remain)
		if err != nil {
			return nil, &Error{File: path, Err: fmt.Errorf("host %q: %w", h.Name, err)}
		}
		topo.Hosts[h.Name] = schema.RawHost{
			Name:         h.Name,
			Auto:         h.Auto,
			DefaultRoute: h.DefaultRoute,
			Commands:     h.Commands,
			Opts:         opts,
		}
	}
	for _, s := range raw.Topology.Switches {
		opts, err := remainAttrs(s.Remain)
		if err != nil {
			return nil, &Error{File: path, Err: fmt.Errorf("switch %q: %w", s.Name, err)}
		}
		topo.Switches[s.Name] = opts
	}
	for _, l := range raw.Topology.Links {
		opts, err := remainAttrs(l.Remain)
		if err != nil {
			return nil, &Error{File: path, Err: fmt.Errorf("link %s-%s: %w", l.Node1, l.Node2, err)}
		}
		topo.Links = append(topo.Links, schema.RawLink{Node1: l.Node1, Node2: l.Node2, Opts: opts})
	}
	doc.Topology = topo
	return doc, nil
}

func refFromHCL(r *hclComponentRef) *schema.ComponentRef {
	if r == nil {
		return nil
	}
	ref := &schema.ComponentRef{
		FilePath:   r.FilePath,
		ModuleName: r.ModuleName,
		ObjectName: r.ObjectName,
		Options:    bag.New(),
	}
	if opts, ok := bag.FromValue(r.Options); ok {
		ref.Options = opts
	}
	return ref
}

// remainAttrs evaluates the leftover attributes of a block into a bag.
// Expressions must be static values; there is no evaluation context.
func remainAttrs(body hcl.Body) (bag.Bag, error) {
	out := bag.New()
	if body == nil {
		return out, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		out[name] = v
	}
	return out, nil
}
