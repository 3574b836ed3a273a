// Package schema defines the configuration document model and the resolved
// records the orchestrator runs against. Raw documents come out of the
// config loader; resolved records come out of the resolver and are the only
// shapes the later phases see.
package schema

import "github.com/vk/p4grid/internal/bag"

// Kind names a pluggable component slot.
type Kind string

const (
	KindSwitchNode Kind = "switch_node"
	KindHostNode   Kind = "host_node"
	KindCompiler   Kind = "compiler"
	KindController Kind = "controller"
	KindTopology   Kind = "topo"
	KindTopoDB     Kind = "topodb"
	KindNetwork    Kind = "net"
	KindSession    Kind = "session"
)

// ComponentRef is the raw, unresolved reference to a component as it appears
// in the document: either empty (meaning the built-in default), the name of
// a registered built-in, or an external locator.
type ComponentRef struct {
	FilePath   string
	ModuleName string
	ObjectName string
	Options    bag.Bag
}

// External reports whether the reference points outside the registered
// built-ins.
func (r *ComponentRef) External() bool {
	return r != nil && (r.FilePath != "" || r.ModuleName != "")
}

// Handle is a resolved component: a concrete factory plus the constructor
// options it will be called with. Handles embedded in switch records carry
// copies of their option bags so that one switch's mutations never leak into
// another's.
type Handle struct {
	Kind    Kind
	Name    string
	Factory any
	Options bag.Bag
}

// Clone returns a handle with an independent option bag.
func (h Handle) Clone() Handle {
	h.Options = h.Options.Copy()
	return h
}

// ExecScript is one entry of the document's exec_scripts list. RebootRun is
// carried through for callers that restart the emulation; execution itself
// does not consult it.
type ExecScript struct {
	Cmd       string
	RebootRun bool
}

// RawHost is a host as declared in the document.
type RawHost struct {
	Name         string
	Auto         bool
	DefaultRoute string
	Commands     []string
	Opts         bag.Bag
}

// RawLink is a link as declared in the document: two endpoint names and an
// optional option bag.
type RawLink struct {
	Node1 string
	Node2 string
	Opts  bag.Bag
}

// TopologySection is the document's topology subtree.
type TopologySection struct {
	AssignmentStrategy string
	Default            bag.Bag
	Links              []RawLink
	Hosts              map[string]RawHost
	Switches           map[string]bag.Bag
}

// Document is the parsed configuration file, independent of the input
// syntax it was written in.
type Document struct {
	Program   string
	EnableLog bool
	PcapDump  bool

	SwitchNode  *ComponentRef
	HostNode    *ComponentRef
	Compiler    *ComponentRef
	Controller  *ComponentRef
	TopoBuilder *ComponentRef
	TopoDB      *ComponentRef
	Network     *ComponentRef
	Session     *ComponentRef

	ExecScripts []ExecScript
	Topology    *TopologySection
}

// Compilation is the cached result of compiling one distinct program
// source. All switches whose source resolves to the same canonical path hold
// the same *Compilation.
type Compilation struct {
	Source       string
	ArtifactPath string

	// Control-plane metadata is a per-program capability: absent when the
	// compiler reports the feature disabled for this source.
	ControlMetadataPath string
	HasControlMetadata  bool
}

// Switch is a fully resolved switch record. Created by the resolver,
// mutated once when compilation artifacts are attached, then read-only.
type Switch struct {
	Name     string
	Program  string
	CPUPort  bool
	CLIInput string

	ThriftPort int
	GRPCPort   int

	Node       Handle
	Controller Handle
	Opts       bag.Bag

	Compilation *Compilation
}

// Link is a resolved link record.
type Link struct {
	Node1 string
	Node2 string
	Opts  bag.Bag
}

// Host is a resolved host record. The live counterpart owned by the network
// runtime is what the provisioner mutates; this record stays read-only after
// resolution.
type Host struct {
	Name         string
	Auto         bool
	DefaultRoute string
	Commands     []string
	Opts         bag.Bag
}
