package libvirt

import (
	"context"
	"fmt"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/status"
)

// GuestReady reports whether the domain's guest agent channel is connected.
// A domain that is not running is never ready.
func (p *Platform) GuestReady(ctx context.Context, m appliance.Machine) (bool, error) {
	dom, err := p.lookup(m)
	if err != nil {
		return false, err
	}

	state, err := p.state(dom)
	if err != nil {
		return false, err
	}
	if !status.IsRunning(state) {
		return false, nil
	}

	xml, err := p.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return false, fmt.Errorf("failed to get XML of domain %s: %w", dom.Name, err)
	}
	return GuestAgentConnected(xml)
}
