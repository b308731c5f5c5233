package libvirt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/cloudinit"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/naming"
	"github.com/jbweber/vlab-avamar/internal/status"
	"github.com/jbweber/vlab-avamar/internal/storage"
)

// Customize gives a powered-off domain a static network identity for its
// next boot.
//
// The identity is rendered as a NoCloud ISO in the machines pool and
// attached as a cdrom in the persistent definition. The call returns once
// the redefined domain reads back with the cdrom attached.
func (p *Platform) Customize(ctx context.Context, m appliance.Machine, cfg v1alpha1.NetworkConfig) error {
	log := logging.FromContext(ctx)

	dom, err := p.lookup(m)
	if err != nil {
		return err
	}

	state, err := p.state(dom)
	if err != nil {
		return err
	}
	if !status.IsOff(state) {
		return fmt.Errorf("domain %s must be powered off to customize (state %s)", dom.Name, state)
	}

	inactive, err := p.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err != nil {
		return fmt.Errorf("failed to get XML of domain %s: %w", dom.Name, err)
	}
	_, macs, err := InterfaceSummary(inactive)
	if err != nil {
		return err
	}
	if len(macs) == 0 {
		return fmt.Errorf("domain %s has no network adapter to customize", dom.Name)
	}

	spec, err := cloudinit.NewSpec(m.Name, macs[0], cfg)
	if err != nil {
		return fmt.Errorf("failed to build customization for %s: %w", dom.Name, err)
	}
	iso, err := cloudinit.GenerateISO(spec)
	if err != nil {
		return err
	}

	pool := p.machinesPool()
	vol := storage.VolumeSpec{
		Name:     naming.VolumeNameCloudInit(dom.Name),
		Format:   storage.VolumeFormatRaw,
		Capacity: uint64(len(iso)),
	}

	// A previous customization leaves its ISO behind.
	if err := p.storage.DeleteVolume(ctx, pool, vol.Name); err == nil {
		log.Debugf("Replaced existing customization volume %s", vol.Name)
	}

	log.Infof("Uploading customization %s for %s (%s/%d)", vol.Name, spec.FQDN(), spec.Address, spec.PrefixLength)
	if _, err := p.storage.ImportVolume(ctx, pool, vol, bytes.NewReader(iso), uint64(len(iso))); err != nil {
		return fmt.Errorf("failed to upload customization: %w", err)
	}

	updated, err := AttachCDROM(inactive, DiskAttachment{Pool: pool, Volume: vol.Name, Format: string(storage.VolumeFormatRaw)})
	if err != nil {
		return err
	}
	if _, err := p.client.DomainDefineXML(updated); err != nil {
		return fmt.Errorf("failed to redefine domain %s: %w", dom.Name, err)
	}

	err = wait(ctx, p.opts.PollInterval, p.opts.StateTimeout, func() (bool, error) {
		xml, err := p.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
		if err != nil {
			return false, fmt.Errorf("failed to read back domain %s: %w", dom.Name, err)
		}
		return HasCDROM(xml, vol.Name)
	})
	if err != nil {
		return fmt.Errorf("customization of %s not applied: %w", dom.Name, err)
	}
	return nil
}
