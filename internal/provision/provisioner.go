// Package provision programs live hosts after network start: static ARP
// entries derived from subnet membership, gateway ARP for hosts with a
// default route, dynamic address acquisition, and declared startup
// commands. Provisioning only mutates the live host; resolved records stay
// untouched.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/component"
	"github.com/vk/p4grid/internal/ctxlog"
	"github.com/vk/p4grid/internal/schema"
)

// Policy controls which ARP programming applies, read from the topology
// default bag. Both knobs default to enabled.
type Policy struct {
	GatewayARP bool
	SubnetARP  bool
}

// PolicyFromDefaults reads auto_gw_arp and auto_arp_tables from the
// topology default bag.
func PolicyFromDefaults(defaults bag.Bag) Policy {
	pol := Policy{GatewayARP: true, SubnetARP: true}
	if v, ok := defaults.Bool("auto_gw_arp"); ok {
		pol.GatewayARP = v
	}
	if v, ok := defaults.Bool("auto_arp_tables"); ok {
		pol.SubnetARP = v
	}
	return pol
}

// Error reports a host that could not be fully provisioned. Callers treat
// it as recoverable; remaining hosts are still provisioned.
type Error struct {
	Host string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision host %s: %v", e.Host, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Host provisions one live host. Every step that fails is collected; the
// remaining steps still run so a single bad command does not leave the host
// half-configured for unrelated reasons.
func Host(ctx context.Context, rec *schema.Host, live component.LiveHost, topo component.Topology, pol Policy) error {
	logger := ctxlog.FromContext(ctx)

	intfs := live.Intfs()
	if len(intfs) == 0 {
		return &Error{Host: rec.Name, Err: fmt.Errorf("host has no interfaces")}
	}
	// All provisioning goes through one stable representative interface.
	iface := intfs[0]

	var errs []error

	if pol.GatewayARP {
		if gw, ok := live.DefaultRoute(); ok {
			cmd := fmt.Sprintf("arp -i %s -s %s %s", iface.Name, gw, iface.PeerMAC)
			if _, err := live.Cmd(ctx, cmd); err != nil {
				errs = append(errs, fmt.Errorf("gateway arp: %w", err))
			}
		}
	}

	if pol.SubnetARP {
		if err := programSubnetARP(ctx, rec.Name, live, topo, iface); err != nil {
			errs = append(errs, err)
		}
	}

	if rec.Auto {
		// Release-then-renew; the renew is backgrounded on the host.
		if _, err := live.Cmd(ctx, fmt.Sprintf("dhclient -r %s", iface.Name)); err != nil {
			errs = append(errs, fmt.Errorf("dhclient release: %w", err))
		}
		if _, err := live.Cmd(ctx, fmt.Sprintf("dhclient %s &", iface.Name)); err != nil {
			errs = append(errs, fmt.Errorf("dhclient renew: %w", err))
		}
	}

	for _, cmd := range rec.Commands {
		logger.Debug("Running host startup command.", "host", rec.Name, "cmd", cmd)
		if _, err := live.Cmd(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("startup command %q: %w", cmd, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return &Error{Host: rec.Name, Err: err}
	}
	return nil
}

// programSubnetARP installs a static neighbor entry for every other host
// whose assigned address shares this host's network.
func programSubnetARP(ctx context.Context, name string, live component.LiveHost, topo component.Topology, iface component.Intf) error {
	self, ok := topo.HostInfo(name)
	if !ok {
		return fmt.Errorf("no address assignment for host %s", name)
	}
	selfNet, err := hostNetwork(self)
	if err != nil {
		return fmt.Errorf("host %s: %w", name, err)
	}

	var errs []error
	for _, peer := range topo.Hosts() {
		if peer == name {
			continue
		}
		info, ok := topo.HostInfo(peer)
		if !ok {
			continue
		}
		peerNet, err := hostNetwork(info)
		if err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", peer, err))
			continue
		}
		if peerNet != selfNet {
			continue
		}
		cmd := fmt.Sprintf("arp -i %s -s %s %s", iface.Name, info.IP, info.MAC)
		if _, err := live.Cmd(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("arp entry for %s: %w", peer, err))
		}
	}
	return errors.Join(errs...)
}

// hostNetwork computes the network a host's assignment belongs to.
func hostNetwork(info component.HostInfo) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(fmt.Sprintf("%s/%d", info.IP, info.PrefixLen))
	if err != nil {
		return netip.Prefix{}, err
	}
	return p.Masked(), nil
}
