// Package mnet provides the default topology builder, network runtime and
// node drivers. Hosts are network namespaces, switches are bmv2 processes;
// the runtime wires them with veth pairs according to the built topology.
package mnet

import (
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

// Module registers the default topology builder, runtime and node drivers.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindTopology, "apptopo", component.TopologyFactory(Build))
	r.RegisterDefault(schema.KindNetwork, "mnet", component.NetworkFactory(NewNetwork))
	r.RegisterDefault(schema.KindSwitchNode, "bmv2", component.NodeFactory(NewBMv2Node))
	r.RegisterDefault(schema.KindHostNode, "nshost", component.NodeFactory(NewNSHost))
}
