package libvirt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vlab-avamar/internal/ova"
	"github.com/jbweber/vlab-avamar/internal/storage"
)

// fakeDomain is the mock's record of one defined domain.
type fakeDomain struct {
	dom   libvirt.Domain
	state libvirt.DomainState
	xml   string
	live  string // live XML; empty means same as xml
	meta  string
	addrs []libvirt.DomainInterface
}

// mockDomainClient is an in-memory stand-in for *libvirt.Libvirt.
type mockDomainClient struct {
	mu sync.Mutex

	domains  map[string]*fakeDomain
	networks map[string]bool
	nextID   byte

	// Configurable behavior
	shutdownFunc func(d *fakeDomain) error
	createFunc   func(d *fakeDomain) error
	defineErr    error
	networkErr   error

	// Call tracking
	calls         []string
	definedXML    []string
	metadataFlags []libvirt.DomainModificationImpact
}

func newMockDomainClient() *mockDomainClient {
	m := &mockDomainClient{
		domains:  make(map[string]*fakeDomain),
		networks: make(map[string]bool),
	}

	// Default: the guest honors ACPI shutdown immediately.
	m.shutdownFunc = func(d *fakeDomain) error {
		d.state = libvirt.DomainShutoff
		return nil
	}
	m.createFunc = func(d *fakeDomain) error {
		d.state = libvirt.DomainRunning
		return nil
	}

	return m
}

func noDomain(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found: " + name}
}

func (m *mockDomainClient) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockDomainClient) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// addDomain registers a domain directly, bypassing DomainDefineXML.
func (m *mockDomainClient) addDomain(name string, state libvirt.DomainState, xml, meta string) *fakeDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d := &fakeDomain{
		dom:   libvirt.Domain{Name: name, UUID: libvirt.UUID{m.nextID}},
		state: state,
		xml:   xml,
		meta:  meta,
	}
	m.domains[name] = d
	return d
}

func (m *mockDomainClient) get(name string) *fakeDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domains[name]
}

func (m *mockDomainClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ConnectListAllDomains")
	var out []libvirt.Domain
	for _, d := range m.domains {
		out = append(out, d.dom)
	}
	return out, uint32(len(out)), nil
}

func (m *mockDomainClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainLookupByName")
	d, ok := m.domains[name]
	if !ok {
		return libvirt.Domain{}, noDomain(name)
	}
	return d.dom, nil
}

func (m *mockDomainClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainDefineXML")
	m.definedXML = append(m.definedXML, xml)
	if m.defineErr != nil {
		return libvirt.Domain{}, m.defineErr
	}

	var parsed libvirtxml.Domain
	if err := parsed.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, fmt.Errorf("XML error: %w", err)
	}

	d, ok := m.domains[parsed.Name]
	if !ok {
		m.nextID++
		d = &fakeDomain{dom: libvirt.Domain{Name: parsed.Name, UUID: libvirt.UUID{m.nextID}}, state: libvirt.DomainShutoff}
		m.domains[parsed.Name] = d
	}
	d.xml = xml
	if parsed.Metadata != nil && strings.TrimSpace(parsed.Metadata.XML) != "" {
		d.meta = strings.TrimSpace(parsed.Metadata.XML)
	}
	return d.dom, nil
}

func (m *mockDomainClient) lookupLocked(dom libvirt.Domain) (*fakeDomain, error) {
	d, ok := m.domains[dom.Name]
	if !ok {
		return nil, noDomain(dom.Name)
	}
	return d, nil
}

func (m *mockDomainClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainCreate")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return err
	}
	return m.createFunc(d)
}

func (m *mockDomainClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainGetState")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return 0, 0, err
	}
	return int32(d.state), 0, nil
}

func (m *mockDomainClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainShutdown")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return err
	}
	return m.shutdownFunc(d)
}

func (m *mockDomainClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainDestroy")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return err
	}
	if d.state == libvirt.DomainShutoff {
		return libvirt.Error{Code: uint32(libvirt.ErrOperationInvalid), Message: "domain is not running"}
	}
	d.state = libvirt.DomainShutoff
	return nil
}

func (m *mockDomainClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainUndefineFlags")
	if _, err := m.lookupLocked(dom); err != nil {
		return err
	}
	delete(m.domains, dom.Name)
	return nil
}

func (m *mockDomainClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainGetXMLDesc")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return "", err
	}
	if flags&libvirt.DomainXMLInactive == 0 && d.live != "" {
		return d.live, nil
	}
	return d.xml, nil
}

func (m *mockDomainClient) DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainInterfaceAddresses")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return nil, err
	}
	if source == uint32(libvirt.DomainInterfaceAddressesSrcAgent) && d.addrs == nil {
		return nil, libvirt.Error{Code: uint32(libvirt.ErrAgentUnresponsive), Message: "guest agent is not connected"}
	}
	return d.addrs, nil
}

func (m *mockDomainClient) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSetMetadata")
	m.metadataFlags = append(m.metadataFlags, flags)
	d, err := m.lookupLocked(dom)
	if err != nil {
		return err
	}
	d.meta = metadata[0]
	return nil
}

func (m *mockDomainClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainGetMetadata")
	d, err := m.lookupLocked(dom)
	if err != nil {
		return "", err
	}
	if d.meta == "" {
		return "", libvirt.Error{Code: uint32(libvirt.ErrNoDomainMetadata), Message: "metadata not found"}
	}
	return d.meta, nil
}

func (m *mockDomainClient) NetworkLookupByName(name string) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("NetworkLookupByName")
	if m.networkErr != nil {
		return libvirt.Network{}, m.networkErr
	}
	if !m.networks[name] {
		return libvirt.Network{}, libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "Network not found: " + name}
	}
	return libvirt.Network{Name: name}, nil
}

// mockStorage is an in-memory storageManager.
type mockStorage struct {
	mu sync.Mutex

	volumes   map[string][]byte
	importErr error

	imported []storage.VolumeSpec
	deleted  []string
}

func newMockStorage() *mockStorage {
	return &mockStorage{volumes: make(map[string][]byte)}
}

func (s *mockStorage) Pools() storage.Pools {
	return storage.DefaultPools()
}

func (s *mockStorage) ImportVolume(_ context.Context, poolName string, spec storage.VolumeSpec, r io.Reader, length uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importErr != nil {
		return "", s.importErr
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return "", err
	}
	s.volumes[spec.Name] = data
	s.imported = append(s.imported, spec)
	return "/" + poolName + "/" + spec.Name, nil
}

func (s *mockStorage) DeleteVolume(_ context.Context, poolName, volumeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.volumes[volumeName]; !ok {
		return fmt.Errorf("volume not found: %s", volumeName)
	}
	delete(s.volumes, volumeName)
	s.deleted = append(s.deleted, volumeName)
	return nil
}

// fakeConverter rewrites a disk's magic to qcow2 and keeps the rest.
type fakeConverter struct {
	mu sync.Mutex

	err error

	converted []storage.VolumeFormat
	open      int
}

type trackedReader struct {
	*bytes.Reader
	c *fakeConverter
}

func (r trackedReader) Close() error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.open--
	return nil
}

func (c *fakeConverter) Convert(_ context.Context, r io.Reader, format storage.VolumeFormat) (io.ReadCloser, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, 0, c.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	out := append([]byte("QFI\xfb"), data[4:]...)
	c.converted = append(c.converted, format)
	c.open++
	return trackedReader{Reader: bytes.NewReader(out), c: c}, uint64(len(out)), nil
}

// fakeImage is an appliance.Image with in-memory VMDK disks.
type fakeImage struct {
	disks []ova.Disk
	data  map[string][]byte
	hw    ova.Hardware
}

func newFakeImage(n int) *fakeImage {
	img := &fakeImage{data: make(map[string][]byte), hw: ova.Hardware{CPUs: 8, MemoryMiB: 32768}}
	for i := 0; i < n; i++ {
		file := fmt.Sprintf("AVE-disk%d.vmdk", i+1)
		body := append([]byte("KDMV"), bytes.Repeat([]byte{byte(i)}, 1020)...)
		img.data[file] = body
		img.disks = append(img.disks, ova.Disk{
			ID:       fmt.Sprintf("vmdisk%d", i+1),
			File:     file,
			Capacity: 1 << 30,
			Size:     int64(len(body)),
		})
	}
	return img
}

func (f *fakeImage) Networks() []string { return []string{"VM Network"} }

func (f *fakeImage) Disks() ([]ova.Disk, error) { return f.disks, nil }

func (f *fakeImage) Hardware() (ova.Hardware, error) { return f.hw, nil }

func (f *fakeImage) OpenDisk(d ova.Disk) (io.Reader, error) {
	data, ok := f.data[d.File]
	if !ok {
		return nil, fmt.Errorf("no member %s", d.File)
	}
	return bytes.NewReader(data), nil
}

func (f *fakeImage) Close() error { return nil }

func testOptions() Options {
	return Options{
		PollInterval:    time.Millisecond,
		ShutdownTimeout: 20 * time.Millisecond,
		StateTimeout:    200 * time.Millisecond,
		IPWaitTimeout:   50 * time.Millisecond,
	}
}

func newTestPlatform() (*Platform, *mockDomainClient, *mockStorage) {
	client := newMockDomainClient()
	st := newMockStorage()
	opts := testOptions()
	opts.Converter = &fakeConverter{}
	return NewPlatform(client, st, opts), client, st
}

func converterOf(p *Platform) *fakeConverter {
	return p.opts.Converter.(*fakeConverter)
}
