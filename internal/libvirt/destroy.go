package libvirt

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/naming"
)

// Destroy removes a domain and the machines-pool volumes it owns.
//
// Steps:
//  1. Force the domain off if it is still running
//  2. Read the volumes attached in its persistent definition
//  3. Undefine it (with NVRAM cleanup)
//  4. Delete those of its volumes that carry its own volume names
//  5. Wait until a lookup confirms it is gone
func (p *Platform) Destroy(ctx context.Context, m appliance.Machine) error {
	log := logging.FromContext(ctx)

	dom, err := p.lookup(m)
	if err != nil {
		return err
	}

	if err := p.powerOff(ctx, log, dom); err != nil {
		return err
	}

	volumes, err := p.ownedVolumes(dom)
	if err != nil {
		return err
	}

	log.Infof("Undefining domain %s...", dom.Name)
	if err := p.client.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain %s: %w", dom.Name, err)
	}

	for _, vol := range volumes {
		if err := p.storage.DeleteVolume(ctx, p.machinesPool(), vol); err != nil {
			return fmt.Errorf("failed to delete volume %s of %s: %w", vol, dom.Name, err)
		}
	}
	log.Infof("Deleted %d volumes of %s", len(volumes), dom.Name)

	err = wait(ctx, p.opts.PollInterval, p.opts.StateTimeout, func() (bool, error) {
		_, err := p.client.DomainLookupByName(dom.Name)
		if err == nil {
			return false, nil
		}
		if isLibvirtCode(err, libvirt.ErrNoDomain) {
			return true, nil
		}
		return false, fmt.Errorf("failed to confirm removal of %s: %w", dom.Name, err)
	})
	if err != nil {
		return fmt.Errorf("domain %s still present: %w", dom.Name, err)
	}
	return nil
}

// ownedVolumes returns the machines-pool volumes attached to dom whose
// names were issued for dom. Anything else attached is left alone.
func (p *Platform) ownedVolumes(dom libvirt.Domain) ([]string, error) {
	inactive, err := p.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to get XML of domain %s: %w", dom.Name, err)
	}
	attached, err := AttachedVolumes(inactive)
	if err != nil {
		return nil, err
	}

	pool := p.machinesPool()
	var out []string
	for _, att := range attached {
		if att.Pool == pool && naming.IsMachineVolume(dom.Name, att.Volume) {
			out = append(out, att.Volume)
		}
	}
	return out, nil
}
