// Package shell is the default interactive session: a line-oriented prompt
// over the live network. The orchestrator hands off to it after startup
// and tears the network down when it returns.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

// Module registers the default interactive session.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterDefault(schema.KindSession, "shell", component.SessionFactory(New))
}

// Session is the default prompt.
type Session struct {
	cfg component.SessionConfig
}

// New builds a session over the running network.
func New(cfg component.SessionConfig) component.Session {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Session{cfg: cfg}
}

// Run prints the welcome banner, describes every node, then serves
// commands until exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	out := s.cfg.Out

	for _, sw := range s.cfg.Network.Switches() {
		if s.cfg.Topology.IsP4Switch(sw.Name()) {
			sw.Describe(out)
		}
	}
	for _, h := range s.cfg.Network.Hosts() {
		h.Describe(out)
	}
	s.banner(out)

	scanner := bufio.NewScanner(s.cfg.In)
	for {
		fmt.Fprint(out, "p4grid> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "exit" || line == "quit":
			return nil
		case line == "help":
			s.help(out)
		case line == "hosts":
			for _, h := range s.cfg.Network.Hosts() {
				h.Describe(out)
			}
		case line == "switches":
			for _, sw := range s.cfg.Network.Switches() {
				sw.Describe(out)
			}
		default:
			s.dispatch(ctx, out, line)
		}
	}
}

// dispatch runs "<host> <command...>" on a live host.
func (s *Session) dispatch(ctx context.Context, out io.Writer, line string) {
	name, rest, ok := strings.Cut(line, " ")
	if !ok {
		fmt.Fprintf(out, "unknown command %q; try 'help'\n", line)
		return
	}
	host, found := s.cfg.Network.Host(name)
	if !found {
		fmt.Fprintf(out, "no such host %q; try 'hosts'\n", name)
		return
	}
	output, err := host.Cmd(ctx, rest)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprint(out, output)
}

func (s *Session) help(out io.Writer) {
	fmt.Fprint(out, `Commands:
  hosts              describe the live hosts
  switches           describe the live switches
  <host> <command>   run a shell command on a host
  exit               leave the session and stop the network
`)
}

func (s *Session) banner(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "======================================================================")
	fmt.Fprintln(out, "Welcome to the p4grid interactive session!")
	fmt.Fprintln(out, "======================================================================")
	fmt.Fprintln(out, "Your program is installed on the software switches and the initial")
	fmt.Fprintln(out, "configuration is loaded. Interact with the network below.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To inspect or change a switch configuration from your host OS:")
	fmt.Fprintln(out, "  simple_switch_CLI --thrift-port <switch thrift port>")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Switch logs are written under %s, pcap files under %s.\n", s.cfg.LogDir, s.cfg.PcapDir)
	fmt.Fprintln(out)
}
