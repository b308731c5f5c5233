package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// GuestAgentChannel is the virtio-serial port the QEMU guest agent uses.
const GuestAgentChannel = "org.qemu.guest_agent.0"

// DiskAttachment names a pool volume attached to a domain.
type DiskAttachment struct {
	Pool   string
	Volume string

	// Format is the driver type: vmdk, qcow2 or raw.
	Format string
}

// DomainSpec is everything needed to render an appliance domain.
type DomainSpec struct {
	Name      string
	CPUs      uint
	MemoryMiB uint64

	// Disks are attached in order; the first is the boot disk.
	Disks []DiskAttachment

	// Network is the libvirt network the single adapter joins.
	Network string

	// MACAddress pins the adapter's MAC. Empty lets libvirt choose.
	MACAddress string

	// Metadata is a pre-rendered metadata element, embedded verbatim.
	Metadata string
}

func (s DomainSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if s.CPUs == 0 || s.MemoryMiB == 0 {
		return fmt.Errorf("domain %s needs CPUs and memory", s.Name)
	}
	if len(s.Disks) == 0 {
		return fmt.Errorf("domain %s has no disks", s.Name)
	}
	if s.Network == "" {
		return fmt.Errorf("domain %s has no network", s.Name)
	}
	return nil
}

// GenerateDomainXML renders an appliance domain.
//
// Appliance images come from VMware and expect legacy BIOS and SATA disks.
// A virtio guest-agent channel is always present so readiness can be
// observed.
func GenerateDomainXML(spec DomainSpec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.MemoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     spec.CPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "q35",
				Type:    "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			Channels: []libvirtxml.DomainChannel{guestAgentChannel()},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
		},
	}

	if spec.Metadata != "" {
		domain.Metadata = &libvirtxml.DomainMetadata{XML: spec.Metadata}
	}

	for i, d := range spec.Disks {
		disk := volumeDisk("disk", d, diskTarget(i))
		if i == 0 {
			disk.Boot = &libvirtxml.DomainDeviceBoot{Order: 1}
		}
		domain.Devices.Disks = append(domain.Devices.Disks, disk)
	}

	iface := libvirtxml.DomainInterface{
		Source: &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{
				Network: spec.Network,
			},
		},
		Model: &libvirtxml.DomainInterfaceModel{
			Type: "vmxnet3",
		},
	}
	if spec.MACAddress != "" {
		iface.MAC = &libvirtxml.DomainInterfaceMAC{Address: spec.MACAddress}
	}
	domain.Devices.Interfaces = []libvirtxml.DomainInterface{iface}

	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

// AttachCDROM returns domainXML with att attached as a read-only cdrom.
// Any cdrom already present is replaced.
func AttachCDROM(domainXML string, att DiskAttachment) (string, error) {
	domain, err := parseDomain(domainXML)
	if err != nil {
		return "", err
	}
	if domain.Devices == nil {
		domain.Devices = &libvirtxml.DomainDeviceList{}
	}

	disks := domain.Devices.Disks[:0]
	for _, d := range domain.Devices.Disks {
		if d.Device != "cdrom" {
			disks = append(disks, d)
		}
	}

	cdrom := volumeDisk("cdrom", att, diskTarget(len(disks)))
	cdrom.ReadOnly = &libvirtxml.DomainDiskReadOnly{}
	domain.Devices.Disks = append(disks, cdrom)

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	return xml, nil
}

// HasCDROM reports whether domainXML attaches volume as a cdrom.
func HasCDROM(domainXML, volume string) (bool, error) {
	domain, err := parseDomain(domainXML)
	if err != nil {
		return false, err
	}
	if domain.Devices == nil {
		return false, nil
	}
	for _, d := range domain.Devices.Disks {
		if d.Device == "cdrom" && d.Source != nil && d.Source.Volume != nil && d.Source.Volume.Volume == volume {
			return true, nil
		}
	}
	return false, nil
}

// AttachedVolumes lists the pool volumes domainXML attaches as disks or
// cdroms, in device order.
func AttachedVolumes(domainXML string) ([]DiskAttachment, error) {
	domain, err := parseDomain(domainXML)
	if err != nil {
		return nil, err
	}
	if domain.Devices == nil {
		return nil, nil
	}
	var out []DiskAttachment
	for _, d := range domain.Devices.Disks {
		if d.Source == nil || d.Source.Volume == nil {
			continue
		}
		att := DiskAttachment{Pool: d.Source.Volume.Pool, Volume: d.Source.Volume.Volume}
		if d.Driver != nil {
			att.Format = d.Driver.Type
		}
		out = append(out, att)
	}
	return out, nil
}

// GuestAgentConnected reports whether the live domainXML shows the guest
// agent channel as connected.
func GuestAgentConnected(domainXML string) (bool, error) {
	domain, err := parseDomain(domainXML)
	if err != nil {
		return false, err
	}
	if domain.Devices == nil {
		return false, nil
	}
	for _, ch := range domain.Devices.Channels {
		if ch.Target == nil || ch.Target.VirtIO == nil {
			continue
		}
		if ch.Target.VirtIO.Name == GuestAgentChannel {
			return ch.Target.VirtIO.State == "connected", nil
		}
	}
	return false, nil
}

// InterfaceSummary lists the networks and MAC addresses of domainXML's
// adapters, in device order.
func InterfaceSummary(domainXML string) (networks, macs []string, err error) {
	domain, err := parseDomain(domainXML)
	if err != nil {
		return nil, nil, err
	}
	if domain.Devices == nil {
		return nil, nil, nil
	}
	for _, iface := range domain.Devices.Interfaces {
		if iface.Source != nil && iface.Source.Network != nil {
			networks = append(networks, iface.Source.Network.Network)
		}
		if iface.MAC != nil {
			macs = append(macs, iface.MAC.Address)
		}
	}
	return networks, macs, nil
}

func parseDomain(domainXML string) (*libvirtxml.Domain, error) {
	domain := &libvirtxml.Domain{}
	if err := domain.Unmarshal(domainXML); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	return domain, nil
}

func volumeDisk(device string, att DiskAttachment, target string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: device,
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: att.Format,
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   att.Pool,
				Volume: att.Volume,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: target,
			Bus: "sata",
		},
	}
}

func guestAgentChannel() libvirtxml.DomainChannel {
	return libvirtxml.DomainChannel{
		Source: &libvirtxml.DomainChardevSource{
			UNIX: &libvirtxml.DomainChardevSourceUNIX{
				Mode: "bind",
			},
		},
		Target: &libvirtxml.DomainChannelTarget{
			VirtIO: &libvirtxml.DomainChannelTargetVirtIO{
				Name: GuestAgentChannel,
			},
		},
	}
}

// diskTarget maps a disk index to a SATA device name: sda, sdb, ...
func diskTarget(i int) string {
	if i < 26 {
		return "sd" + string(rune('a'+i))
	}
	return fmt.Sprintf("sd%c%c", rune('a'+i/26-1), rune('a'+i%26))
}
