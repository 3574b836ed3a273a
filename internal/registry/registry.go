// Package registry resolves logical component references to concrete
// factories. Built-in components register themselves under a (kind, name)
// key; external components are located through a dynamic-library reference
// carried in the configuration document.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/schema"
)

// Module is the interface every built-in component package implements to be
// compiled into the binary.
type Module interface {
	Register(r *Registry)
}

// Registry holds the component factories for a single application instance.
type Registry struct {
	factories map[schema.Kind]map[string]any
	defaults  map[schema.Kind]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[schema.Kind]map[string]any),
		defaults:  make(map[schema.Kind]string),
	}
}

// RegisterComponent registers a factory under (kind, name). Registering the
// same key twice is a programmer error and panics, as is registering a nil
// factory.
func (r *Registry) RegisterComponent(kind schema.Kind, name string, factory any) {
	if factory == nil {
		panic(fmt.Sprintf("nil factory for component %s/%s", kind, name))
	}
	byName, ok := r.factories[kind]
	if !ok {
		byName = make(map[string]any)
		r.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		panic(fmt.Sprintf("component %s/%s already registered", kind, name))
	}
	slog.Debug("Registering component.", "kind", kind, "name", name)
	byName[name] = factory
}

// RegisterDefault registers a factory and makes it the default for its kind.
func (r *Registry) RegisterDefault(kind schema.Kind, name string, factory any) {
	r.RegisterComponent(kind, name, factory)
	if prev, exists := r.defaults[kind]; exists {
		panic(fmt.Sprintf("default for kind %s already registered (%s)", kind, prev))
	}
	r.defaults[kind] = name
}

// lookup returns the factory registered under (kind, name).
func (r *Registry) lookup(kind schema.Kind, name string) (any, bool) {
	byName, ok := r.factories[kind]
	if !ok {
		return nil, false
	}
	f, ok := byName[name]
	return f, ok
}

// Load resolves a component reference to a handle. A nil or empty reference
// yields the registered default for the kind; an object_name without a file
// path selects a built-in by name; a file path triggers dynamic loading.
// Loading the same reference twice yields equivalent, independent handles.
func (r *Registry) Load(kind schema.Kind, ref *schema.ComponentRef) (schema.Handle, error) {
	opts := bag.New()
	if ref != nil && ref.Options != nil {
		opts = ref.Options.Copy()
	}

	if ref.External() {
		factory, err := loadExternal(ref)
		if err != nil {
			return schema.Handle{}, &LoadError{Kind: kind, Name: ref.ObjectName, Err: err}
		}
		return schema.Handle{Kind: kind, Name: ref.ObjectName, Factory: factory, Options: opts}, nil
	}

	name := ""
	if ref != nil {
		name = ref.ObjectName
	}
	if name == "" {
		def, ok := r.defaults[kind]
		if !ok {
			return schema.Handle{}, &LoadError{Kind: kind, Err: fmt.Errorf("no default registered")}
		}
		name = def
	}
	factory, ok := r.lookup(kind, name)
	if !ok {
		return schema.Handle{}, &LoadError{Kind: kind, Name: name, Err: fmt.Errorf("not registered")}
	}
	return schema.Handle{Kind: kind, Name: name, Factory: factory, Options: opts}, nil
}

// LoadError reports an unresolvable component reference.
type LoadError struct {
	Kind schema.Kind
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("load component %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("load component %s/%s: %v", e.Kind, e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
