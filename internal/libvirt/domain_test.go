package libvirt

import (
	"strings"
	"testing"

	"libvirt.org/go/libvirtxml"
)

func testDomainSpec() DomainSpec {
	return DomainSpec{
		Name:      "alice_ave01",
		CPUs:      4,
		MemoryMiB: 16384,
		Disks: []DiskAttachment{
			{Pool: "vlab-machines", Volume: "alice_ave01_disk0.qcow2", Format: "qcow2"},
			{Pool: "vlab-machines", Volume: "alice_ave01_disk1.qcow2", Format: "qcow2"},
		},
		Network:    "alice_frontend",
		MACAddress: "be:ef:c0:a8:01:32",
		Metadata:   `<appliance xmlns="http://vlab.cofront.xyz/v1alpha1">component: Avamar</appliance>`,
	}
}

func TestGenerateDomainXML(t *testing.T) {
	xml, err := GenerateDomainXML(testDomainSpec())
	if err != nil {
		t.Fatalf("GenerateDomainXML() error = %v", err)
	}

	var domain libvirtxml.Domain
	if err := domain.Unmarshal(xml); err != nil {
		t.Fatalf("Generated XML cannot be unmarshaled: %v\nXML:\n%s", err, xml)
	}

	if domain.Type != "kvm" || domain.Name != "alice_ave01" {
		t.Errorf("domain = %s/%s", domain.Type, domain.Name)
	}
	if domain.Memory == nil || domain.Memory.Value != 16384 || domain.Memory.Unit != "MiB" {
		t.Errorf("memory = %+v", domain.Memory)
	}
	if domain.VCPU == nil || domain.VCPU.Value != 4 {
		t.Errorf("vcpu = %+v", domain.VCPU)
	}
	if domain.OS == nil || domain.OS.Firmware != "" {
		t.Errorf("appliance domains boot legacy BIOS, got %+v", domain.OS)
	}

	if domain.Metadata == nil || !strings.Contains(domain.Metadata.XML, "component: Avamar") {
		t.Errorf("metadata = %+v", domain.Metadata)
	}

	disks := domain.Devices.Disks
	if len(disks) != 2 {
		t.Fatalf("disks = %d, want 2", len(disks))
	}
	for i, want := range []string{"sda", "sdb"} {
		d := disks[i]
		if d.Target.Dev != want || d.Target.Bus != "sata" {
			t.Errorf("disk %d target = %+v", i, d.Target)
		}
		if d.Driver.Type != "qcow2" {
			t.Errorf("disk %d driver = %s", i, d.Driver.Type)
		}
		if d.Source.Volume.Pool != "vlab-machines" {
			t.Errorf("disk %d pool = %s", i, d.Source.Volume.Pool)
		}
	}
	if disks[0].Boot == nil || disks[0].Boot.Order != 1 {
		t.Error("first disk should be the boot disk")
	}
	if disks[1].Boot != nil {
		t.Error("only the first disk boots")
	}

	if len(domain.Devices.Interfaces) != 1 {
		t.Fatalf("interfaces = %d, want 1", len(domain.Devices.Interfaces))
	}
	iface := domain.Devices.Interfaces[0]
	if iface.Source.Network.Network != "alice_frontend" {
		t.Errorf("network = %s", iface.Source.Network.Network)
	}
	if iface.MAC == nil || iface.MAC.Address != "be:ef:c0:a8:01:32" {
		t.Errorf("mac = %+v", iface.MAC)
	}

	var agent bool
	for _, ch := range domain.Devices.Channels {
		if ch.Target != nil && ch.Target.VirtIO != nil && ch.Target.VirtIO.Name == GuestAgentChannel {
			agent = true
		}
	}
	if !agent {
		t.Error("guest agent channel missing")
	}
}

func TestGenerateDomainXML_NoMAC(t *testing.T) {
	spec := testDomainSpec()
	spec.MACAddress = ""
	spec.Metadata = ""

	xml, err := GenerateDomainXML(spec)
	if err != nil {
		t.Fatalf("GenerateDomainXML() error = %v", err)
	}
	if strings.Contains(xml, "<mac") {
		t.Error("no MAC element expected when the platform assigns one")
	}
	if strings.Contains(xml, "<metadata") {
		t.Error("no metadata element expected")
	}
}

func TestGenerateDomainXML_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*DomainSpec)
	}{
		{name: "no name", modify: func(s *DomainSpec) { s.Name = "" }},
		{name: "no cpus", modify: func(s *DomainSpec) { s.CPUs = 0 }},
		{name: "no memory", modify: func(s *DomainSpec) { s.MemoryMiB = 0 }},
		{name: "no disks", modify: func(s *DomainSpec) { s.Disks = nil }},
		{name: "no network", modify: func(s *DomainSpec) { s.Network = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testDomainSpec()
			tt.modify(&spec)
			if _, err := GenerateDomainXML(spec); err == nil {
				t.Error("GenerateDomainXML() should fail")
			}
		})
	}
}

func TestAttachCDROM(t *testing.T) {
	base, err := GenerateDomainXML(testDomainSpec())
	if err != nil {
		t.Fatal(err)
	}

	iso := DiskAttachment{Pool: "vlab-machines", Volume: "alice_ave01_cloudinit.iso", Format: "raw"}
	once, err := AttachCDROM(base, iso)
	if err != nil {
		t.Fatalf("AttachCDROM() error = %v", err)
	}
	twice, err := AttachCDROM(once, iso)
	if err != nil {
		t.Fatalf("AttachCDROM() error = %v", err)
	}

	var domain libvirtxml.Domain
	if err := domain.Unmarshal(twice); err != nil {
		t.Fatal(err)
	}

	var cdroms []libvirtxml.DomainDisk
	for _, d := range domain.Devices.Disks {
		if d.Device == "cdrom" {
			cdroms = append(cdroms, d)
		}
	}
	if len(cdroms) != 1 {
		t.Fatalf("cdroms = %d, want 1 after re-attach", len(cdroms))
	}
	if cdroms[0].Target.Dev != "sdc" || cdroms[0].ReadOnly == nil {
		t.Errorf("cdrom = %+v", cdroms[0].Target)
	}
	if len(domain.Devices.Disks) != 3 {
		t.Errorf("disks = %d, want 3", len(domain.Devices.Disks))
	}

	ok, err := HasCDROM(twice, iso.Volume)
	if err != nil || !ok {
		t.Errorf("HasCDROM() = %v, %v", ok, err)
	}
	ok, err = HasCDROM(base, iso.Volume)
	if err != nil || ok {
		t.Errorf("HasCDROM(base) = %v, %v", ok, err)
	}
}

func TestAttachCDROM_BadXML(t *testing.T) {
	if _, err := AttachCDROM("<domain", DiskAttachment{}); err == nil {
		t.Error("AttachCDROM() should reject malformed XML")
	}
}

func TestAttachedVolumes(t *testing.T) {
	base, err := GenerateDomainXML(testDomainSpec())
	if err != nil {
		t.Fatal(err)
	}
	withISO, err := AttachCDROM(base, DiskAttachment{Pool: "vlab-machines", Volume: "alice_ave01_cloudinit.iso", Format: "raw"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := AttachedVolumes(withISO)
	if err != nil {
		t.Fatalf("AttachedVolumes() error = %v", err)
	}
	want := []DiskAttachment{
		{Pool: "vlab-machines", Volume: "alice_ave01_disk0.qcow2", Format: "qcow2"},
		{Pool: "vlab-machines", Volume: "alice_ave01_disk1.qcow2", Format: "qcow2"},
		{Pool: "vlab-machines", Volume: "alice_ave01_cloudinit.iso", Format: "raw"},
	}
	if len(got) != len(want) {
		t.Fatalf("AttachedVolumes() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("volume %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := AttachedVolumes("<domain"); err == nil {
		t.Error("AttachedVolumes() should reject malformed XML")
	}
}

func TestGuestAgentConnected(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  bool
	}{
		{name: "connected", state: "connected", want: true},
		{name: "disconnected", state: "disconnected", want: false},
		{name: "no state", state: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := ""
			if tt.state != "" {
				attr = ` state="` + tt.state + `"`
			}
			xml := `<domain type="kvm"><name>d</name><devices>
<channel type="unix"><source mode="bind" path="/run/agent.sock"/><target type="virtio" name="org.qemu.guest_agent.0"` + attr + `/></channel>
</devices></domain>`

			got, err := GuestAgentConnected(xml)
			if err != nil {
				t.Fatalf("GuestAgentConnected() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GuestAgentConnected() = %v, want %v", got, tt.want)
			}
		})
	}

	got, err := GuestAgentConnected(`<domain type="kvm"><name>d</name></domain>`)
	if err != nil || got {
		t.Errorf("GuestAgentConnected(no devices) = %v, %v", got, err)
	}
}

func TestInterfaceSummary(t *testing.T) {
	xml, err := GenerateDomainXML(testDomainSpec())
	if err != nil {
		t.Fatal(err)
	}

	networks, macs, err := InterfaceSummary(xml)
	if err != nil {
		t.Fatalf("InterfaceSummary() error = %v", err)
	}
	if len(networks) != 1 || networks[0] != "alice_frontend" {
		t.Errorf("networks = %v", networks)
	}
	if len(macs) != 1 || macs[0] != "be:ef:c0:a8:01:32" {
		t.Errorf("macs = %v", macs)
	}
}

func TestDiskTarget(t *testing.T) {
	tests := map[int]string{0: "sda", 1: "sdb", 25: "sdz", 26: "sdaa", 27: "sdab"}
	for in, want := range tests {
		if got := diskTarget(in); got != want {
			t.Errorf("diskTarget(%d) = %s, want %s", in, got, want)
		}
	}
}
