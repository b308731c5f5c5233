package libvirt

import (
	"context"
	"fmt"
	"net"
	"sort"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/metadata"
	"github.com/jbweber/vlab-avamar/internal/status"
)

// Info reads a domain's power state, guest addresses, networks and
// metadata. With ensureIP set it first waits, up to IPWaitTimeout, for the
// guest to report an IPv4 address.
func (p *Platform) Info(ctx context.Context, m appliance.Machine, ensureIP bool) (v1alpha1.MachineInfo, error) {
	dom, err := p.lookup(m)
	if err != nil {
		return v1alpha1.MachineInfo{}, err
	}

	if ensureIP {
		err := wait(ctx, p.opts.PollInterval, p.opts.IPWaitTimeout, func() (bool, error) {
			ips, err := p.addresses(dom)
			return len(ips) > 0, err
		})
		if err != nil {
			return v1alpha1.MachineInfo{}, fmt.Errorf("no address reported by %s: %w", dom.Name, err)
		}
	}

	state, err := p.state(dom)
	if err != nil {
		return v1alpha1.MachineInfo{}, err
	}

	meta, _, err := metadata.Load(p.client, dom)
	if err != nil {
		return v1alpha1.MachineInfo{}, err
	}

	xml, err := p.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return v1alpha1.MachineInfo{}, fmt.Errorf("failed to get XML of domain %s: %w", dom.Name, err)
	}
	networks, _, err := InterfaceSummary(xml)
	if err != nil {
		return v1alpha1.MachineInfo{}, err
	}

	info := v1alpha1.MachineInfo{
		State:    state,
		Phase:    status.Phase(state, meta),
		IPs:      []string{},
		Networks: networks,
		Meta:     meta,
		UUID:     uuid.UUID(dom.UUID).String(),
	}
	if info.Networks == nil {
		info.Networks = []string{}
	}

	if status.IsRunning(state) {
		ips, err := p.addresses(dom)
		if err != nil {
			return v1alpha1.MachineInfo{}, err
		}
		info.IPs = ips
	}

	return info, nil
}

// addresses returns the guest's IPv4 addresses. The guest agent is asked
// first; DHCP leases cover guests whose agent is not yet up.
func (p *Platform) addresses(dom libvirt.Domain) ([]string, error) {
	ifaces, err := p.client.DomainInterfaceAddresses(dom, uint32(libvirt.DomainInterfaceAddressesSrcAgent), 0)
	if err != nil || len(collectIPv4(ifaces)) == 0 {
		ifaces, err = p.client.DomainInterfaceAddresses(dom, uint32(libvirt.DomainInterfaceAddressesSrcLease), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get addresses of domain %s: %w", dom.Name, err)
		}
	}
	return collectIPv4(ifaces), nil
}

func collectIPv4(ifaces []libvirt.DomainInterface) []string {
	seen := make(map[string]bool)
	var ips []string
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ip := net.ParseIP(a.Addr)
			if ip == nil || ip.To4() == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			if !seen[a.Addr] {
				seen[a.Addr] = true
				ips = append(ips, a.Addr)
			}
		}
	}
	sort.Strings(ips)
	return ips
}
