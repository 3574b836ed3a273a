package app

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed assets/empty_program.p4
var emptyProgram []byte

// substituteEmptyProgram materializes the bundled no-op program and points
// the global program path and every per-switch override at it.
func (a *App) substituteEmptyProgram() error {
	dir, err := os.MkdirTemp("", "p4grid-empty-"+a.runID+"-")
	if err != nil {
		return fmt.Errorf("materialize empty program: %w", err)
	}
	path := filepath.Join(dir, "empty_program.p4")
	if err := os.WriteFile(path, emptyProgram, 0o644); err != nil {
		return fmt.Errorf("materialize empty program: %w", err)
	}

	a.doc.Program = path
	if a.doc.Topology != nil {
		for _, opts := range a.doc.Topology.Switches {
			if opts.Has("program") {
				opts.SetString("program", path)
			}
		}
	}
	return nil
}
