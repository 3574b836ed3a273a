// Package topodb writes the built topology's lookup tables to disk so
// out-of-band tooling can resolve host addresses without re-running
// resolution.
package topodb

import (
	"context"
	"fmt"
	"os"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

// Module registers the default topology database writer.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindTopoDB, "jsondb", component.TopoDBFactory(New))
}

// Writer serializes the topology host table as JSON.
type Writer struct {
	topo component.Topology
}

// New builds a writer over the given topology.
func New(topo component.Topology) component.TopoWriter {
	return &Writer{topo: topo}
}

// Save writes the host table to path.
func (w *Writer) Save(ctx context.Context, path string) error {
	ctxlog.FromContext(ctx).Info("Saving topology database.", "path", path)

	hosts := make(map[string]any)
	for _, name := range w.topo.Hosts() {
		info, ok := w.topo.HostInfo(name)
		if !ok {
			continue
		}
		hosts[name] = map[string]any{
			"ip":   info.IP,
			"mask": float64(info.PrefixLen),
			"mac":  info.MAC,
		}
	}

	doc, err := bag.FromNative(map[string]any{"hosts_info": hosts})
	if err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}
	data, err := ctyjson.Marshal(doc, doc.Type())
	if err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write topology database: %w", err)
	}
	return nil
}
