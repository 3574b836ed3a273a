// Package p4c is the default compiler component: a thin wrapper around the
// p4c-bm2-ss binary. Control-plane metadata files are produced only when
// the p4runtime option is set; otherwise the scheduler is told the feature
// is disabled for this source.
package p4c

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

const defaultBin = "p4c-bm2-ss"

// Module registers the default compiler.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindCompiler, "p4c", component.CompilerFactory(New))
}

// Compiler compiles one source file. Recognized options: compiler_bin,
// out_dir, p4runtime (bool), extra_args (list of strings).
type Compiler struct {
	source string
	opts   bag.Bag

	artifact string
	metadata string
	p4rt     bool
}

// New builds a compiler for one source. Artifact paths are fixed up front
// so they can be inspected before Compile runs.
func New(source string, opts bag.Bag) component.Compiler {
	outDir, ok := opts.String("out_dir")
	if !ok {
		outDir = filepath.Dir(source)
	}
	base := strings.TrimSuffix(filepath.Base(source), ".p4")
	c := &Compiler{
		source:   source,
		opts:     opts,
		artifact: filepath.Join(outDir, base+".json"),
	}
	if p4rt, _ := opts.Bool("p4runtime"); p4rt {
		c.p4rt = true
		c.metadata = filepath.Join(outDir, base+".p4rt.txt")
	}
	return c
}

// Compile invokes the compiler binary.
func (c *Compiler) Compile(ctx context.Context) error {
	bin, ok := c.opts.String("compiler_bin")
	if !ok {
		bin = defaultBin
	}

	args := []string{c.source, "-o", c.artifact}
	if c.p4rt {
		args = append(args, "--p4runtime-files", c.metadata)
	}
	if extra, ok := c.opts.Strings("extra_args"); ok {
		args = append(args, extra...)
	}

	ctxlog.FromContext(ctx).Debug("Invoking compiler.", "bin", bin, "args", args)
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w\n%s", bin, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Source returns the source path this compiler was built for.
func (c *Compiler) Source() string { return c.source }

// ArtifactPath returns the compiled JSON path.
func (c *Compiler) ArtifactPath() string { return c.artifact }

// ControlMetadataPath returns the p4runtime metadata path, or the disabled
// sentinel when the option is off.
func (c *Compiler) ControlMetadataPath() (string, error) {
	if !c.p4rt {
		return "", component.ErrMetadataDisabled
	}
	return c.metadata, nil
}
