package appliance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/ova"
)

// mockPlatform is a mock implementation of Platform for testing.
type mockPlatform struct {
	mu sync.Mutex

	// Configurable behavior
	machinesFunc      func(owner string) ([]Machine, error)
	infoFunc          func(m Machine, ensureIP bool) (v1alpha1.MachineInfo, error)
	lookupNetworkFunc func(name string) (bool, error)
	deployFunc        func(spec DeploySpec) (Machine, error)
	guestReadyFunc    func(m Machine) (bool, error)
	powerOnFunc       func(m Machine) error
	powerOffFunc      func(m Machine) error
	customizeFunc     func(m Machine, cfg v1alpha1.NetworkConfig) error
	destroyFunc       func(m Machine) error
	setMetaFunc       func(m Machine, meta v1alpha1.MachineMeta) error

	// Call tracking
	calls          []string
	deployCalls    []DeploySpec
	customizeCalls []v1alpha1.NetworkConfig
	setMetaCalls   []v1alpha1.MachineMeta
	infoCalls      []bool
}

// newMockPlatform returns a platform where every operation succeeds, the
// network exists and the guest agent is immediately ready.
func newMockPlatform() *mockPlatform {
	m := &mockPlatform{}

	m.machinesFunc = func(owner string) ([]Machine, error) {
		return nil, nil
	}
	m.infoFunc = func(mc Machine, ensureIP bool) (v1alpha1.MachineInfo, error) {
		return v1alpha1.MachineInfo{State: "running"}, nil
	}
	m.lookupNetworkFunc = func(name string) (bool, error) {
		return true, nil
	}
	m.deployFunc = func(spec DeploySpec) (Machine, error) {
		return Machine{Owner: spec.Owner, Name: spec.Name, ID: spec.Owner + "_" + spec.Name}, nil
	}
	m.guestReadyFunc = func(mc Machine) (bool, error) {
		return true, nil
	}
	m.powerOnFunc = func(mc Machine) error { return nil }
	m.powerOffFunc = func(mc Machine) error { return nil }
	m.customizeFunc = func(mc Machine, cfg v1alpha1.NetworkConfig) error { return nil }
	m.destroyFunc = func(mc Machine) error { return nil }
	m.setMetaFunc = func(mc Machine, meta v1alpha1.MachineMeta) error { return nil }

	return m
}

func (m *mockPlatform) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockPlatform) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockPlatform) count(call string) int {
	n := 0
	for _, c := range m.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockPlatform) Machines(_ context.Context, owner string) ([]Machine, error) {
	m.record("Machines")
	return m.machinesFunc(owner)
}

func (m *mockPlatform) Info(_ context.Context, mc Machine, ensureIP bool) (v1alpha1.MachineInfo, error) {
	m.record("Info")
	m.mu.Lock()
	m.infoCalls = append(m.infoCalls, ensureIP)
	m.mu.Unlock()
	return m.infoFunc(mc, ensureIP)
}

func (m *mockPlatform) LookupNetwork(_ context.Context, name string) (bool, error) {
	m.record("LookupNetwork")
	return m.lookupNetworkFunc(name)
}

func (m *mockPlatform) Deploy(_ context.Context, spec DeploySpec) (Machine, error) {
	m.record("Deploy")
	m.mu.Lock()
	m.deployCalls = append(m.deployCalls, spec)
	m.mu.Unlock()
	return m.deployFunc(spec)
}

func (m *mockPlatform) GuestReady(_ context.Context, mc Machine) (bool, error) {
	m.record("GuestReady")
	return m.guestReadyFunc(mc)
}

func (m *mockPlatform) PowerOn(_ context.Context, mc Machine) error {
	m.record("PowerOn")
	return m.powerOnFunc(mc)
}

func (m *mockPlatform) PowerOff(_ context.Context, mc Machine) error {
	m.record("PowerOff")
	return m.powerOffFunc(mc)
}

func (m *mockPlatform) Customize(_ context.Context, mc Machine, cfg v1alpha1.NetworkConfig) error {
	m.record("Customize")
	m.mu.Lock()
	m.customizeCalls = append(m.customizeCalls, cfg)
	m.mu.Unlock()
	return m.customizeFunc(mc, cfg)
}

func (m *mockPlatform) Destroy(_ context.Context, mc Machine) error {
	m.record("Destroy")
	return m.destroyFunc(mc)
}

func (m *mockPlatform) SetMeta(_ context.Context, mc Machine, meta v1alpha1.MachineMeta) error {
	m.record("SetMeta")
	m.mu.Lock()
	m.setMetaCalls = append(m.setMetaCalls, meta)
	m.mu.Unlock()
	return m.setMetaFunc(mc, meta)
}

// mockCatalog is a mock implementation of ImageCatalog for testing.
type mockCatalog struct {
	pathFunc func(kind v1alpha1.Kind, version string) (string, error)
	listFunc func(kind v1alpha1.Kind) ([]string, error)
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		pathFunc: func(kind v1alpha1.Kind, version string) (string, error) {
			return "/images/" + kind.ImagePrefix() + "-" + version + ".ova", nil
		},
		listFunc: func(kind v1alpha1.Kind) ([]string, error) {
			return nil, nil
		},
	}
}

func (c *mockCatalog) Path(_ context.Context, kind v1alpha1.Kind, version string) (string, error) {
	return c.pathFunc(kind, version)
}

func (c *mockCatalog) ListAvailable(_ context.Context, kind v1alpha1.Kind) ([]string, error) {
	return c.listFunc(kind)
}

// mockImage is an Image that counts Close calls.
type mockImage struct {
	mu       sync.Mutex
	networks []string
	closed   int
}

func newMockImage() *mockImage {
	return &mockImage{networks: []string{"VM Network"}}
}

func (i *mockImage) Networks() []string { return i.networks }

func (i *mockImage) Disks() ([]ova.Disk, error) {
	return []ova.Disk{{ID: "vmdisk1", File: "disk1.vmdk", Format: "vmdk", Capacity: 1 << 20}}, nil
}

func (i *mockImage) Hardware() (ova.Hardware, error) {
	return ova.Hardware{CPUs: 4, MemoryMiB: 16384}, nil
}

func (i *mockImage) OpenDisk(d ova.Disk) (io.Reader, error) {
	return bytes.NewReader(nil), nil
}

func (i *mockImage) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed++
	return nil
}

func (i *mockImage) closeCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// newTestService wires mocks into a Service whose gate never really sleeps.
func newTestService(p *mockPlatform, c *mockCatalog, img *mockImage) (*Service, *[]string) {
	var opened []string
	svc := NewService(p, c,
		WithGate(Gate{PollInterval: DefaultPollInterval, GraceDelay: DefaultGraceDelay, Sleep: noSleep}),
		WithImageOpener(func(path string) (Image, error) {
			opened = append(opened, path)
			if img == nil {
				return nil, fmt.Errorf("open %s: no such file or directory", path)
			}
			return img, nil
		}),
	)
	return svc, &opened
}

func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}
