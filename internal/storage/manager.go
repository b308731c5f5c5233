package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of libvirt used for storage management.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Manager coordinates storage operations for the images and machines pools.
type Manager struct {
	client LibvirtClient
	pools  Pools
	owner  owner
}

// NewManager creates a new storage manager. Volumes and pool directories
// are owned by the QEMU user detected on this host.
func NewManager(client LibvirtClient, pools Pools) *Manager {
	uid, gid, _ := GetQEMUUserGroup()
	return &Manager{
		client: client,
		pools:  pools,
		owner:  owner{uid: uid, gid: gid},
	}
}

// Pools returns the pool layout this manager was configured with.
func (m *Manager) Pools() Pools {
	return m.pools
}

// EnsurePools ensures that both the images and machines pools exist.
func (m *Manager) EnsurePools(ctx context.Context) error {
	if err := m.EnsurePool(ctx, m.pools.Images.Name, PoolTypeDir, m.pools.Images.Path); err != nil {
		return fmt.Errorf("failed to ensure images pool: %w", err)
	}
	if err := m.EnsurePool(ctx, m.pools.Machines.Name, PoolTypeDir, m.pools.Machines.Path); err != nil {
		return fmt.Errorf("failed to ensure machines pool: %w", err)
	}
	return nil
}

type owner struct {
	uid string
	gid string
}
