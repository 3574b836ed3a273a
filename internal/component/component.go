// Package component declares the contracts between the orchestration core
// and its external collaborators: the program compiler, the switch
// controller, the topology builder, the network-emulation runtime and the
// interactive session. The core never looks behind these interfaces.
package component

import (
	"context"
	"errors"
	"io"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/schema"
)

// ErrMetadataDisabled is the distinct signal a compiler returns from
// ControlMetadataPath when the source does not produce control-plane
// metadata. It is the only compiler failure the scheduler skips silently.
var ErrMetadataDisabled = errors.New("control-plane metadata disabled for this source")

// Compiler turns one program source into artifacts.
type Compiler interface {
	Compile(ctx context.Context) error
	Source() string
	ArtifactPath() string
	ControlMetadataPath() (string, error)
}

// Controller programs a switch's control plane from a script.
type Controller interface {
	Configure(ctx context.Context) error
}

// HostInfo is the address assignment the topology builder computed for a
// host.
type HostInfo struct {
	IP        string
	PrefixLen int
	MAC       string
}

// Topology is the built logical topology. The core only enumerates hosts
// and looks up their assignments; everything else about the handle is the
// builder's business.
type Topology interface {
	Hosts() []string
	HostInfo(name string) (HostInfo, bool)
	IsP4Switch(name string) bool
}

// Intf describes one interface of a live node. PeerMAC is the hardware
// address on the far side of the attached link.
type Intf struct {
	Name    string
	MAC     string
	PeerMAC string
}

// LiveHost is a running emulated host. Cmd issues a shell command inside
// the host; long-running commands are expected to be backgrounded by the
// caller's command line, not by this interface.
type LiveHost interface {
	Name() string
	Cmd(ctx context.Context, cmd string) (string, error)
	// Intfs lists the host's interfaces; the first one is the stable
	// representative used for all provisioning.
	Intfs() []Intf
	DefaultRoute() (gw string, ok bool)
	Describe(w io.Writer)
}

// LiveSwitch is a running emulated switch.
type LiveSwitch interface {
	Name() string
	Describe(w io.Writer)
}

// Network is the live emulated network.
type Network interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Hosts() []LiveHost
	Switches() []LiveSwitch
	Host(name string) (LiveHost, bool)
}

// TopoWriter persists the built topology for out-of-band tooling.
type TopoWriter interface {
	Save(ctx context.Context, path string) error
}

// SessionConfig is everything the interactive session may present to the
// user.
type SessionConfig struct {
	Network      Network
	Topology     Topology
	Switches     []*schema.Switch
	Compilations []*schema.Compilation
	LogDir       string
	PcapDir      string
	In           io.Reader
	Out          io.Writer
}

// Session is the interactive hand-off; Run blocks until the user exits.
type Session interface {
	Run(ctx context.Context) error
}

// NetworkConfig carries the resolved records, the selected host node
// driver and per-run settings to the network runtime. Each switch record
// carries its own node driver handle.
type NetworkConfig struct {
	Switches   []*schema.Switch
	Hosts      []*schema.Host
	Links      []schema.Link
	HostNode   schema.Handle
	LogDir     string
	PcapDir    string
	PcapDump   bool
	LogEnabled bool
}

// Factory signatures, one per component kind. The registry stores these as
// opaque values; each call site asserts the signature for its kind.
type (
	CompilerFactory   func(source string, opts bag.Bag) Compiler
	ControllerFactory func(scriptPath string, opts bag.Bag) Controller
	TopologyFactory   func(switches []*schema.Switch, links []schema.Link, hosts []*schema.Host, strategy string) (Topology, error)
	NetworkFactory    func(topo Topology, cfg NetworkConfig) (Network, error)
	TopoDBFactory     func(topo Topology) TopoWriter
	SessionFactory    func(cfg SessionConfig) Session

	// NodeFactory builds one live node; the network runtime decides when
	// and with which options to invoke it.
	NodeFactory func(name string, opts bag.Bag) (any, error)
)
