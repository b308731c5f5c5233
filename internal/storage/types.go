package storage

import "fmt"

// PoolType represents the type of storage pool backend.
type PoolType string

// PoolTypeDir is the only backend the appliance pools use.
const PoolTypeDir PoolType = "dir"

// VolumeFormat represents the disk format.
type VolumeFormat string

const (
	VolumeFormatVMDK  VolumeFormat = "vmdk"  // VMware disk, as shipped inside OVAs
	VolumeFormatQCOW2 VolumeFormat = "qcow2" // QCOW2 format
	VolumeFormatRaw   VolumeFormat = "raw"   // Raw format, also used for ISO media
)

// VolumeSpec specifies how to create a storage volume.
type VolumeSpec struct {
	Name     string       // Volume name (e.g., "alice_ave01_disk0.vmdk")
	Format   VolumeFormat // Disk format
	Capacity uint64       // Capacity in bytes
}

// Validate checks if the volume spec is valid.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	switch v.Format {
	case VolumeFormatVMDK, VolumeFormatQCOW2, VolumeFormatRaw:
	case "":
		return fmt.Errorf("volume format is required")
	default:
		return fmt.Errorf("invalid volume format: %s (must be vmdk, qcow2 or raw)", v.Format)
	}
	if v.Capacity == 0 {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	return nil
}

// PoolSpec names a directory pool and its target path.
type PoolSpec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Pools are the two pools the service depends on.
type Pools struct {
	Images   PoolSpec `yaml:"images"`
	Machines PoolSpec `yaml:"machines"`
}

// PoolInfo contains information about a storage pool.
type PoolInfo struct {
	Name       string
	Path       string
	UUID       string
	State      string
	Capacity   uint64
	Allocation uint64
	Available  uint64
}

// AvailableGB returns the pool available space in GB.
func (p *PoolInfo) AvailableGB() float64 {
	return float64(p.Available) / (1024 * 1024 * 1024)
}

// Default pool configuration.
const (
	DefaultImagesPool   = "vlab-images"
	DefaultMachinesPool = "vlab-machines"
	DefaultImagesPath   = "/var/lib/libvirt/images/vlab/images"
	DefaultMachinesPath = "/var/lib/libvirt/images/vlab/machines"
)

// DefaultPools returns the default pool layout.
func DefaultPools() Pools {
	return Pools{
		Images:   PoolSpec{Name: DefaultImagesPool, Path: DefaultImagesPath},
		Machines: PoolSpec{Name: DefaultMachinesPool, Path: DefaultMachinesPath},
	}
}
