// Package config loads a topology description file into the document model.
// Three input syntaxes are accepted, selected by file extension: the JSON
// tree format, its YAML equivalent, and an HCL block form. All of them
// produce the same schema.Document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/schema"
)

// Error reports a malformed or unreadable configuration file.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads and parses the configuration file at path.
func Load(path string) (*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path, data)
	case ".yml", ".yaml":
		return loadYAML(path, data)
	case ".hcl":
		return loadHCL(path, data)
	default:
		return nil, &Error{File: path, Err: fmt.Errorf("unsupported config extension %q", filepath.Ext(path))}
	}
}

func loadJSON(path string, data []byte) (*schema.Document, error) {
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	root, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	doc, err := documentFromValue(root)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	return doc, nil
}

func loadYAML(path string, data []byte) (*schema.Document, error) {
	var native any
	if err := yaml.Unmarshal(data, &native); err != nil {
		return nil, &Error{File: path, Err: err}
	}
	root, err := bag.FromNative(native)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	doc, err := documentFromValue(root)
	if err != nil {
		return nil, &Error{File: path, Err: err}
	}
	return doc, nil
}

// documentFromValue builds the document from a parsed cty tree, shared by
// the JSON and YAML loaders.
func documentFromValue(root cty.Value) (*schema.Document, error) {
	rb, ok := bag.FromValue(root)
	if !ok {
		return nil, fmt.Errorf("top level is not an object")
	}

	doc := &schema.Document{}
	doc.Program, _ = rb.String("program")
	doc.EnableLog, _ = rb.Bool("enable_log")
	doc.PcapDump, _ = rb.Bool("pcap_dump")

	doc.SwitchNode = componentRef(rb, "switch_node")
	doc.HostNode = componentRef(rb, "host_node")
	doc.Compiler = componentRef(rb, "compiler_module")
	doc.Controller = componentRef(rb, "controller_module")
	doc.TopoBuilder = componentRef(rb, "topo_module")
	doc.TopoDB = componentRef(rb, "topodb_module")
	doc.Network = componentRef(rb, "mininet_module")
	doc.Session = componentRef(rb, "session_module")

	if scripts, ok := rb["exec_scripts"]; ok && !scripts.IsNull() && scripts.CanIterateElements() {
		for it := scripts.ElementIterator(); it.Next(); {
			_, sv := it.Element()
			sb, ok := bag.FromValue(sv)
			if !ok {
				return nil, fmt.Errorf("exec_scripts entries must be objects")
			}
			cmd, _ := sb.String("cmd")
			reboot, _ := sb.Bool("reboot_run")
			doc.ExecScripts = append(doc.ExecScripts, schema.ExecScript{Cmd: cmd, RebootRun: reboot})
		}
	}

	topoVal, ok := rb["topology"]
	if !ok || topoVal.IsNull() {
		// Leave nil; the resolver rejects documents without a topology.
		return doc, nil
	}
	topo, err := topologyFromValue(topoVal)
	if err != nil {
		return nil, err
	}
	doc.Topology = topo
	return doc, nil
}

func topologyFromValue(v cty.Value) (*schema.TopologySection, error) {
	tb, ok := bag.FromValue(v)
	if !ok {
		return nil, fmt.Errorf("topology is not an object")
	}
	topo := &schema.TopologySection{
		Hosts:    make(map[string]schema.RawHost),
		Switches: make(map[string]bag.Bag),
		Default:  bag.New(),
	}
	topo.AssignmentStrategy, _ = tb.String("assignment_strategy")
	if def, ok := tb.Child("default"); ok {
		topo.Default = def
	}

	if hosts, ok := tb.Child("hosts"); ok {
		for name, hv := range hosts {
			hb, _ := bag.FromValue(hv)
			if hb == nil {
				hb = bag.New()
			}
			host := schema.RawHost{Name: name, Opts: hb}
			host.Auto, _ = hb.Bool("auto")
			host.DefaultRoute, _ = hb.String("default_route")
			host.Commands, _ = hb.Strings("commands")
			topo.Hosts[name] = host
		}
	}

	if switches, ok := tb.Child("switches"); ok {
		for name, sv := range switches {
			sb, _ := bag.FromValue(sv)
			if sb == nil {
				sb = bag.New()
			}
			topo.Switches[name] = sb
		}
	}

	if links, ok := tb["links"]; ok && !links.IsNull() && links.CanIterateElements() {
		for it := links.ElementIterator(); it.Next(); {
			_, lv := it.Element()
			link, err := linkFromValue(lv)
			if err != nil {
				return nil, err
			}
			topo.Links = append(topo.Links, link)
		}
	}
	return topo, nil
}

// linkFromValue decodes one [node1, node2, opts?] entry.
func linkFromValue(v cty.Value) (schema.RawLink, error) {
	if v.IsNull() || !v.CanIterateElements() {
		return schema.RawLink{}, fmt.Errorf("links entries must be [node1, node2, opts?] tuples")
	}
	var elems []cty.Value
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		elems = append(elems, ev)
	}
	if len(elems) < 2 {
		return schema.RawLink{}, fmt.Errorf("link needs two endpoint names, got %d elements", len(elems))
	}
	link := schema.RawLink{Opts: bag.New()}
	if elems[0].Type() != cty.String || elems[1].Type() != cty.String {
		return schema.RawLink{}, fmt.Errorf("link endpoints must be node names")
	}
	link.Node1 = elems[0].AsString()
	link.Node2 = elems[1].AsString()
	if len(elems) > 2 {
		opts, ok := bag.FromValue(elems[2])
		if !ok {
			return schema.RawLink{}, fmt.Errorf("link %s-%s: third element must be an options object", link.Node1, link.Node2)
		}
		link.Opts = opts
	}
	return link, nil
}

// componentRef decodes a {file_path, module_name, object_name, options?}
// subtree. Missing keys are fine; a missing subtree yields nil.
func componentRef(rb bag.Bag, key string) *schema.ComponentRef {
	cb, ok := rb.Child(key)
	if !ok {
		return nil
	}
	ref := &schema.ComponentRef{Options: bag.New()}
	ref.FilePath, _ = cb.String("file_path")
	ref.ModuleName, _ = cb.String("module_name")
	ref.ObjectName, _ = cb.String("object_name")
	if opts, ok := cb.Child("options"); ok {
		ref.Options = opts
	}
	return ref
}
