// Package compile schedules program compilation for the resolved switches.
// Sources are deduplicated by canonical path: the compiler runs at most once
// per distinct source, and every switch sharing a source shares the same
// compilation record.
package compile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/schema"
)

// Error reports a failed compilation. It is fatal for the whole run.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// All compiles every distinct program source among the switches and
// attaches the produced artifact paths to each switch record, both as the
// shared Compilation pointer and as json_path/p4rt_path entries in the
// switch option bag. The returned slice holds one record per distinct
// source, in first-use order.
func All(ctx context.Context, switches []*schema.Switch, factory component.CompilerFactory, opts bag.Bag) ([]*schema.Compilation, error) {
	logger := ctxlog.FromContext(ctx)

	records := make(map[string]*schema.Compilation)
	var order []*schema.Compilation

	for _, sw := range switches {
		canon := canonicalPath(sw.Program)
		rec, ok := records[canon]
		if !ok {
			logger.Info("Compiling program.", "source", sw.Program, "switch", sw.Name)
			compiler := factory(sw.Program, opts.Copy())
			if err := compiler.Compile(ctx); err != nil {
				return nil, &Error{Source: sw.Program, Err: err}
			}
			rec = &schema.Compilation{
				Source:       canon,
				ArtifactPath: compiler.ArtifactPath(),
			}
			meta, err := compiler.ControlMetadataPath()
			switch {
			case errors.Is(err, component.ErrMetadataDisabled):
				// Capability gap, not a failure: the switch simply
				// runs without control-plane metadata.
				logger.Debug("Control-plane metadata not produced.", "source", sw.Program)
			case err != nil:
				return nil, &Error{Source: sw.Program, Err: err}
			default:
				rec.ControlMetadataPath = meta
				rec.HasControlMetadata = true
			}
			records[canon] = rec
			order = append(order, rec)
		} else {
			logger.Debug("Reusing compiled artifact.", "source", sw.Program, "switch", sw.Name)
		}

		sw.Compilation = rec
		sw.Opts.SetString("json_path", rec.ArtifactPath)
		if rec.HasControlMetadata {
			sw.Opts.SetString("p4rt_path", rec.ControlMetadataPath)
		}
	}
	return order, nil
}

// canonicalPath normalizes a source path so two spellings of the same file
// dedupe to one compilation.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
