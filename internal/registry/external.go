package registry

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/vk/p4grid/internal/schema"
)

// loadExternal resolves a dynamic component reference: file_path is the
// directory holding the shared object, module_name is the object's file
// name (the .so suffix may be omitted), object_name is the exported factory
// symbol. The symbol's signature is checked by the call site that
// constructs the component, not here.
func loadExternal(ref *schema.ComponentRef) (any, error) {
	if ref.ObjectName == "" {
		return nil, fmt.Errorf("external reference is missing object_name")
	}
	file := ref.ModuleName
	if !strings.HasSuffix(file, ".so") {
		file += ".so"
	}
	path := filepath.Join(ref.FilePath, file)

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sym, err := p.Lookup(ref.ObjectName)
	if err != nil {
		return nil, fmt.Errorf("lookup %q in %s: %w", ref.ObjectName, path, err)
	}
	return sym, nil
}
