package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient is an in-memory LibvirtClient.
type mockLibvirtClient struct {
	mu      sync.Mutex
	pools   map[string]*mockPool
	volumes map[string]map[string]*mockVolume // pool name -> volume name -> volume

	uploadErr  error
	refreshed  []string
	definedXML []string
}

type mockPool struct {
	name      string
	state     libvirt.StoragePoolState
	capacity  uint64
	available uint64
	xmlDesc   string
}

type mockVolume struct {
	name   string
	path   string
	xml    string
	data   []byte
	length uint64
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:   make(map[string]*mockPool),
		volumes: make(map[string]map[string]*mockVolume),
	}
}

// addPool registers a running dir pool with the given volume names.
func (m *mockLibvirtClient) addPool(name, path string, volumes ...string) {
	m.pools[name] = &mockPool{
		name:      name,
		state:     libvirt.StoragePoolRunning,
		capacity:  1 << 40,
		available: 1 << 39,
		xmlDesc:   fmt.Sprintf("<pool type='dir'><name>%s</name><target><path>%s</path></target></pool>", name, path),
	}
	m.volumes[name] = make(map[string]*mockVolume)
	for _, v := range volumes {
		m.volumes[name][v] = &mockVolume{name: v, path: path + "/" + v}
	}
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool not found: %s", name)
	}
	return libvirt.StoragePool{Name: name, UUID: libvirt.UUID{0x01, 0x02}}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xml); err != nil || def.Name == "" {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML")
	}
	if _, ok := m.pools[def.Name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", def.Name)
	}

	m.definedXML = append(m.definedXML, xml)
	m.pools[def.Name] = &mockPool{name: def.Name, state: libvirt.StoragePoolInactive, xmlDesc: xml}
	m.volumes[def.Name] = make(map[string]*mockVolume)
	return libvirt.StoragePool{Name: def.Name}, nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[pool.Name]
	if !ok {
		return fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	p.state = libvirt.StoragePoolRunning
	return nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error {
	return nil
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, pool.Name)
	delete(m.volumes, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[pool.Name]
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	return uint8(p.state), p.capacity, p.capacity - p.available, p.available, nil
}

func (m *mockLibvirtClient) StoragePoolGetXMLDesc(pool libvirt.StoragePool, flags libvirt.StorageXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[pool.Name]
	if !ok {
		return "", fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	return p.xmlDesc, nil
}

func (m *mockLibvirtClient) StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vols, ok := m.volumes[pool.Name]
	if !ok {
		return nil, 0, fmt.Errorf("storage pool not found: %s", pool.Name)
	}

	var result []libvirt.StorageVol
	for name := range vols {
		result = append(result, libvirt.StorageVol{Pool: pool.Name, Name: name})
	}
	return result, uint32(len(result)), nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[pool.Name][name]; !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume not found: %s", name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vols, ok := m.volumes[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage pool not found: %s", pool.Name)
	}

	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(xml); err != nil || def.Name == "" {
		return libvirt.StorageVol{}, fmt.Errorf("invalid volume XML")
	}
	if _, ok := vols[def.Name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", def.Name)
	}

	vols[def.Name] = &mockVolume{name: def.Name, path: "/pools/" + pool.Name + "/" + def.Name, xml: xml}
	return libvirt.StorageVol{Pool: pool.Name, Name: def.Name}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[vol.Pool][vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	delete(m.volumes[vol.Pool], vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return "", fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	return v.path, nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, reader io.Reader, offset uint64, length uint64, flags libvirt.StorageVolUploadFlags) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	v.data = data
	v.length = length
	return nil
}

func (m *mockLibvirtClient) volume(pool, name string) *mockVolume {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes[pool][name]
}
