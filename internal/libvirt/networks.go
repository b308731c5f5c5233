package libvirt

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// LookupNetwork reports whether a libvirt network named name exists.
func (p *Platform) LookupNetwork(_ context.Context, name string) (bool, error) {
	if _, err := p.client.NetworkLookupByName(name); err != nil {
		if isLibvirtCode(err, libvirt.ErrNoNetwork) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up network %s: %w", name, err)
	}
	return true, nil
}
