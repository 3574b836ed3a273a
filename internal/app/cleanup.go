package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/fsutil"
)

// Clean removes the artifacts a previous run left behind: the log and pcap
// directories, topology databases, compiler outputs, and the compiled JSON
// next to every program source. Failures are logged and the sweep
// continues; cleanup never aborts a run.
func Clean(ctx context.Context, cfg *Config) {
	logger := ctxlog.FromContext(ctx)

	for _, dir := range []string{cfg.PcapDir, cfg.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Could not remove directory.", "dir", dir, "error", err)
		}
	}

	// Nested log/ and pcap/ dirs from runs started in subdirectories.
	for _, name := range []string{"pcap", "log"} {
		dirs, err := fsutil.FindDirsByName(".", name)
		if err != nil {
			logger.Warn("Directory sweep failed.", "name", name, "error", err)
			continue
		}
		for _, d := range dirs {
			if err := os.RemoveAll(d); err != nil {
				logger.Warn("Could not remove directory.", "dir", d, "error", err)
			}
		}
	}

	for _, suffix := range []string{".db", ".p4i", ".p4rt"} {
		removeBySuffix(ctx, suffix)
	}

	// Compiled JSON artifacts sit next to their sources.
	sources, err := fsutil.FindFilesBySuffix(".", ".p4")
	if err != nil {
		logger.Warn("Source sweep failed.", "error", err)
		return
	}
	for _, src := range sources {
		compiled := strings.TrimSuffix(src, ".p4") + ".json"
		if _, err := os.Stat(compiled); err != nil {
			continue
		}
		if err := os.Remove(compiled); err != nil {
			logger.Warn("Could not remove compiled artifact.", "path", compiled, "error", err)
		}
	}
}

func removeBySuffix(ctx context.Context, suffix string) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFilesBySuffix(".", suffix)
	if err != nil {
		logger.Warn("File sweep failed.", "suffix", suffix, "error", err)
		return
	}
	for _, f := range files {
		if err := os.Remove(filepath.Clean(f)); err != nil {
			logger.Warn("Could not remove file.", "path", f, "error", err)
		}
	}
}
