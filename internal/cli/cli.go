// Package cli turns command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/p4grid/internal/app"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Options are the run modes that are not part of app.Config proper.
type Options struct {
	Clean    bool
	CleanDir bool
}

// Parse processes command-line arguments. It returns the populated config,
// the extra options, and a boolean indicating the program should exit
// cleanly (help requested).
func Parse(args []string, output io.Writer) (*app.Config, Options, bool, error) {
	flagSet := flag.NewFlagSet("p4grid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
p4grid - declarative P4 network emulation runner.

Usage:
  p4grid [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, Options{}, false, err
	}

	configFlag := flagSet.String("config", "./p4app.json", "Path to the topology configuration file (.json, .yml or .hcl).")
	logDirFlag := flagSet.String("log-dir", filepath.Join(cwd, "log"), "Directory for node and controller logs.")
	pcapDirFlag := flagSet.String("pcap-dir", filepath.Join(cwd, "pcap"), "Directory for interface pcap files.")
	cliFlag := flagSet.Bool("cli", true, "Open the interactive session after startup.")
	emptyP4Flag := flagSet.Bool("empty-p4", false, "Run the topology with a no-op program.")
	cleanFlag := flagSet.Bool("clean", false, "Remove artifacts from previous runs before starting.")
	cleanDirFlag := flagSet.Bool("clean-dir", false, "Remove artifacts from previous runs and exit.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, Options{}, true, nil
		}
		return nil, Options{}, false, &ExitError{Code: 2, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, Options{}, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, Options{}, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg, err := app.NewConfig(app.Config{
		ConfigPath: *configFlag,
		LogDir:     *logDirFlag,
		PcapDir:    *pcapDirFlag,
		CLI:        *cliFlag,
		EmptyP4:    *emptyP4Flag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	})
	if err != nil {
		return nil, Options{}, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return cfg, Options{Clean: *cleanFlag, CleanDir: *cleanDirFlag}, false, nil
}
