package libvirt

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/metadata"
	"github.com/jbweber/vlab-avamar/internal/naming"
	"github.com/jbweber/vlab-avamar/internal/ova"
	"github.com/jbweber/vlab-avamar/internal/storage"
)

// Hardware used when an image descriptor leaves it unspecified.
const (
	DefaultCPUs      = 4
	DefaultMemoryMiB = 16384
)

// Deploy imports the image's disks into the machines pool, defines the
// domain and starts it.
//
// On failure, anything already created is removed again.
func (p *Platform) Deploy(ctx context.Context, spec appliance.DeploySpec) (appliance.Machine, error) {
	log := logging.FromContext(ctx)
	if err := naming.ValidateName("owner", spec.Owner); err != nil {
		return appliance.Machine{}, err
	}
	if err := naming.ValidateName("machine name", spec.Name); err != nil {
		return appliance.Machine{}, err
	}
	name := naming.DomainName(spec.Owner, spec.Name)
	pool := p.machinesPool()

	if _, err := p.client.DomainLookupByName(name); err == nil {
		return appliance.Machine{}, fmt.Errorf("machine %s already exists in %s's namespace", spec.Name, spec.Owner)
	}

	hw, err := spec.Image.Hardware()
	if err != nil {
		return appliance.Machine{}, fmt.Errorf("failed to read image hardware: %w", err)
	}
	disks, err := spec.Image.Disks()
	if err != nil {
		return appliance.Machine{}, fmt.Errorf("failed to read image disks: %w", err)
	}
	if len(disks) == 0 {
		return appliance.Machine{}, fmt.Errorf("image declares no disks")
	}

	var (
		created   []string
		dom       *libvirt.Domain
		deployErr error
	)
	defer func() {
		if deployErr == nil {
			return
		}
		log.Warnf("Cleaning up after failed deploy of %s...", name)
		if dom != nil {
			if err := p.client.DomainDestroy(*dom); err != nil {
				log.Debugf("Domain %s was not running: %v", name, err)
			}
			if err := p.client.DomainUndefineFlags(*dom, libvirt.DomainUndefineNvram); err != nil {
				log.Warnf("Failed to undefine domain %s: %v", name, err)
			}
		}
		for _, vol := range created {
			if err := p.storage.DeleteVolume(ctx, pool, vol); err != nil {
				log.Warnf("Failed to remove volume %s of %s: %v", vol, name, err)
			}
		}
	}()

	attachments := make([]DiskAttachment, 0, len(disks))
	for i, d := range disks {
		att, err := p.importDisk(ctx, spec.Image, pool, name, i, d)
		if err != nil {
			deployErr = err
			return appliance.Machine{}, err
		}
		created = append(created, att.Volume)
		log.Infof("Imported disk %s as %s", d.File, att.Volume)
		attachments = append(attachments, att)
	}

	meta, err := metadata.Marshal(spec.Meta)
	if err != nil {
		deployErr = err
		return appliance.Machine{}, err
	}

	cpus, mem := hw.CPUs, hw.MemoryMiB
	if cpus == 0 {
		cpus = DefaultCPUs
	}
	if mem == 0 {
		mem = DefaultMemoryMiB
	}

	xml, err := GenerateDomainXML(DomainSpec{
		Name:       name,
		CPUs:       cpus,
		MemoryMiB:  mem,
		Disks:      attachments,
		Network:    spec.Network,
		MACAddress: spec.MACAddress,
		Metadata:   meta,
	})
	if err != nil {
		deployErr = err
		return appliance.Machine{}, err
	}

	log.Infof("Defining domain %s (source network %q -> %s)...", name, spec.SourceNetwork, spec.Network)
	defined, err := p.client.DomainDefineXML(xml)
	if err != nil {
		deployErr = fmt.Errorf("failed to define domain: %w", err)
		return appliance.Machine{}, deployErr
	}
	dom = &defined

	log.Infof("Starting domain %s...", name)
	if err := p.client.DomainCreate(defined); err != nil {
		deployErr = fmt.Errorf("failed to start domain: %w", err)
		return appliance.Machine{}, deployErr
	}

	return appliance.Machine{Owner: spec.Owner, Name: spec.Name, ID: name}, nil
}

func (p *Platform) importDisk(ctx context.Context, img appliance.Image, pool, domain string, index int, d ova.Disk) (DiskAttachment, error) {
	log := logging.FromContext(ctx)

	r, err := img.OpenDisk(d)
	if err != nil {
		return DiskAttachment{}, fmt.Errorf("failed to open disk %s: %w", d.File, err)
	}

	br := bufio.NewReader(r)
	format, err := storage.SniffFormat(br)
	if err != nil {
		return DiskAttachment{}, fmt.Errorf("disk %s: %w", d.File, err)
	}

	var (
		src    io.Reader = br
		length           = uint64(d.Size)
	)
	if format == storage.VolumeFormatVMDK {
		log.Infof("Converting disk %s from vmdk to qcow2...", d.File)
		converted, size, err := p.opts.Converter.Convert(ctx, br, format)
		if err != nil {
			return DiskAttachment{}, fmt.Errorf("failed to convert disk %s: %w", d.File, err)
		}
		defer converted.Close()
		src, length, format = converted, size, storage.VolumeFormatQCOW2
	}

	capacity := d.Capacity
	if capacity < length {
		capacity = length
	}

	vol := storage.VolumeSpec{
		Name:     naming.VolumeNameDisk(domain, index, string(format)),
		Format:   format,
		Capacity: capacity,
	}
	if _, err := p.storage.ImportVolume(ctx, pool, vol, src, length); err != nil {
		return DiskAttachment{}, fmt.Errorf("failed to import disk %s: %w", d.File, err)
	}

	return DiskAttachment{Pool: pool, Volume: vol.Name, Format: string(format)}, nil
}
