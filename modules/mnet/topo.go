package mnet

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/schema"
)

// intfPlan is one planned interface of a node: its name and what sits on
// the other end of the link.
type intfPlan struct {
	Name     string
	MAC      string
	PeerNode string
	PeerIntf string
	PeerMAC  string
}

// hostEntry is the computed assignment for one host.
type hostEntry struct {
	info       component.HostInfo
	gateway    string
	gatewayMAC string
	switchName string
}

// Topology is the built logical topology: node adjacency plus per-host
// address assignments computed by the selected strategy.
type Topology struct {
	hostOrder []string
	hosts     map[string]*hostEntry
	switches  map[string]*schema.Switch
	plans     map[string][]intfPlan
}

// Build is the default topology builder. Hosts and switches are ordered by
// name before assignment so the same records always produce the same
// addresses.
func Build(switches []*schema.Switch, links []schema.Link, hosts []*schema.Host, strategy string) (component.Topology, error) {
	t := &Topology{
		hosts:    make(map[string]*hostEntry),
		switches: make(map[string]*schema.Switch),
		plans:    make(map[string][]intfPlan),
	}
	for _, sw := range switches {
		t.switches[sw.Name] = sw
	}

	hostByName := make(map[string]*schema.Host, len(hosts))
	for _, h := range hosts {
		hostByName[h.Name] = h
		t.hostOrder = append(t.hostOrder, h.Name)
	}
	sort.Strings(t.hostOrder)

	// Every host must attach to exactly one switch; the resolver already
	// rejected host-to-host links.
	attach := make(map[string]string)
	for _, link := range links {
		if _, ok := hostByName[link.Node1]; ok {
			attach[link.Node1] = link.Node2
		}
		if _, ok := hostByName[link.Node2]; ok {
			attach[link.Node2] = link.Node1
		}
	}

	switchIndex := make(map[string]int, len(switches))
	for i, name := range sortedSwitchNames(switches) {
		switchIndex[name] = i + 1
	}

	// Hosts per switch, in host-name order, for per-switch numbering.
	perSwitch := make(map[string]int)

	for i, name := range t.hostOrder {
		swName, ok := attach[name]
		if !ok {
			return nil, fmt.Errorf("host %q has no link to a switch", name)
		}
		perSwitch[swName]++
		entry := &hostEntry{switchName: swName}

		k := switchIndex[swName]
		m := perSwitch[swName]
		rec := hostByName[name]

		switch strategy {
		case "", "l2":
			entry.info = component.HostInfo{
				IP:        fmt.Sprintf("10.0.0.%d", i+1),
				PrefixLen: 16,
			}
		case "mixed":
			entry.info = component.HostInfo{
				IP:        fmt.Sprintf("10.0.%d.%d", k, m),
				PrefixLen: 24,
			}
			entry.gateway = fmt.Sprintf("10.0.%d.254", k)
		case "l3":
			entry.info = component.HostInfo{
				IP:        fmt.Sprintf("10.%d.%d.2", k, m),
				PrefixLen: 24,
			}
			entry.gateway = fmt.Sprintf("10.%d.%d.1", k, m)
		case "manual":
			cidr, ok := rec.Opts.String("ip")
			if !ok {
				return nil, fmt.Errorf("manual assignment: host %q declares no ip", name)
			}
			p, err := netip.ParsePrefix(cidr)
			if err != nil {
				return nil, fmt.Errorf("manual assignment: host %q: %w", name, err)
			}
			entry.info = component.HostInfo{IP: p.Addr().String(), PrefixLen: p.Bits()}
			entry.gateway, _ = rec.Opts.String("gw")
		default:
			return nil, fmt.Errorf("unknown assignment strategy %q", strategy)
		}

		// The host record's declared default route wins over the
		// strategy's gateway.
		if rec.DefaultRoute != "" {
			entry.gateway = rec.DefaultRoute
		}

		entry.info.MAC = deriveMAC(hostMACPrefix, entry.info.IP)
		if entry.gateway != "" {
			entry.gatewayMAC = deriveMAC(switchMACPrefix, entry.info.IP)
		}
		t.hosts[name] = entry
	}

	if err := t.planInterfaces(links, hostByName); err != nil {
		return nil, err
	}
	return t, nil
}

const (
	hostMACPrefix   = "00:00"
	switchMACPrefix = "00:01"
)

// deriveMAC maps an IPv4 address into a locally unique hardware address.
func deriveMAC(prefix, ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return prefix + ":00:00:00:00"
	}
	b := addr.As4()
	return fmt.Sprintf("%s:%02x:%02x:%02x:%02x", prefix, b[0], b[1], b[2], b[3])
}

// planInterfaces assigns interface names per node in link order; a host's
// first (and only planned) interface is its representative one.
func (t *Topology) planInterfaces(links []schema.Link, hosts map[string]*schema.Host) error {
	counter := make(map[string]int)
	next := func(node string) string {
		n := counter[node]
		counter[node]++
		if _, isHost := hosts[node]; isHost {
			return fmt.Sprintf("%s-eth%d", node, n)
		}
		return fmt.Sprintf("%s-eth%d", node, n+1)
	}

	for _, link := range links {
		name1 := next(link.Node1)
		name2 := next(link.Node2)
		mac1 := t.sideMAC(link.Node1)
		mac2 := t.sideMAC(link.Node2)
		t.plans[link.Node1] = append(t.plans[link.Node1], intfPlan{
			Name: name1, MAC: mac1, PeerNode: link.Node2, PeerIntf: name2, PeerMAC: mac2,
		})
		t.plans[link.Node2] = append(t.plans[link.Node2], intfPlan{
			Name: name2, MAC: mac2, PeerNode: link.Node1, PeerIntf: name1, PeerMAC: mac1,
		})
	}

	// The switch-side MAC facing each host is the one gateway ARP will
	// resolve to, so align the plan with the assignment.
	for name, entry := range t.hosts {
		plans := t.plans[name]
		if len(plans) == 0 {
			return fmt.Errorf("host %q has no planned interfaces", name)
		}
		plans[0].MAC = entry.info.MAC
		if entry.gatewayMAC != "" {
			plans[0].PeerMAC = entry.gatewayMAC
		}
	}
	return nil
}

func (t *Topology) sideMAC(node string) string {
	if entry, ok := t.hosts[node]; ok {
		return entry.info.MAC
	}
	return ""
}

// Hosts enumerates host names in assignment order.
func (t *Topology) Hosts() []string {
	return append([]string(nil), t.hostOrder...)
}

// HostInfo returns the assignment for one host.
func (t *Topology) HostInfo(name string) (component.HostInfo, bool) {
	entry, ok := t.hosts[name]
	if !ok {
		return component.HostInfo{}, false
	}
	return entry.info, true
}

// IsP4Switch reports whether the named node is one of the resolved
// switches.
func (t *Topology) IsP4Switch(name string) bool {
	_, ok := t.switches[name]
	return ok
}

// entry is used by the network runtime in this package.
func (t *Topology) entry(name string) (*hostEntry, bool) {
	e, ok := t.hosts[name]
	return e, ok
}

// nodePlans exposes the interface plan for one node.
func (t *Topology) nodePlans(name string) []intfPlan {
	return t.plans[name]
}

func sortedSwitchNames(switches []*schema.Switch) []string {
	names := make([]string, 0, len(switches))
	for _, sw := range switches {
		names = append(names, sw.Name)
	}
	sort.Strings(names)
	return names
}
