package appliance

import (
	"context"
	"io"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/ova"
)

// Machine identifies a machine within an owner's namespace.
type Machine struct {
	// Owner is the user namespace holding the machine.
	Owner string

	// Name is the machine name as the owner sees it.
	Name string

	// ID is the platform's identifier for the machine.
	ID string
}

// Image is an opened appliance image artifact.
//
// In production, this is satisfied by *ova.Archive.
type Image interface {
	Networks() []string
	Disks() ([]ova.Disk, error)
	Hardware() (ova.Hardware, error)
	OpenDisk(d ova.Disk) (io.Reader, error)
	Close() error
}

// DeploySpec describes a machine to deploy from an image.
type DeploySpec struct {
	Owner string
	Name  string

	// Image supplies disks and hardware. The platform must not close it.
	Image Image

	// SourceNetwork is the image's declared network being mapped.
	SourceNetwork string

	// Network is the fully qualified platform network to attach to.
	Network string

	// MACAddress pins the primary adapter's MAC. Empty lets the platform pick.
	MACAddress string

	// Meta is stamped on the machine at definition time.
	Meta v1alpha1.MachineMeta
}

// Platform is the virtualization control plane the workflows drive.
//
// Every blocking operation returns only once the platform has confirmed
// the change. In production, this is satisfied by *libvirt.Platform.
type Platform interface {
	// Machines lists the machines in an owner's namespace.
	Machines(ctx context.Context, owner string) ([]Machine, error)

	// Info reads a machine's power state, addresses, networks and metadata.
	// With ensureIP set it waits for the guest to report an address.
	Info(ctx context.Context, m Machine, ensureIP bool) (v1alpha1.MachineInfo, error)

	// LookupNetwork reports whether a platform network exists.
	LookupNetwork(ctx context.Context, name string) (bool, error)

	// Deploy creates and starts a machine from an image.
	Deploy(ctx context.Context, spec DeploySpec) (Machine, error)

	// GuestReady reports whether the in-guest agent is up.
	GuestReady(ctx context.Context, m Machine) (bool, error)

	// PowerOn starts a machine and blocks until it runs.
	PowerOn(ctx context.Context, m Machine) error

	// PowerOff stops a machine and blocks until it is off.
	PowerOff(ctx context.Context, m Machine) error

	// Customize applies a static network identity to a powered-off machine
	// for its next boot.
	Customize(ctx context.Context, m Machine, cfg v1alpha1.NetworkConfig) error

	// Destroy removes a machine and its storage, blocking until it is gone.
	Destroy(ctx context.Context, m Machine) error

	// SetMeta replaces the machine's metadata block.
	SetMeta(ctx context.Context, m Machine, meta v1alpha1.MachineMeta) error
}

// ImageCatalog locates and lists appliance images.
//
// In production, this is satisfied by *catalog.Catalog.
type ImageCatalog interface {
	Path(ctx context.Context, kind v1alpha1.Kind, version string) (string, error)
	ListAvailable(ctx context.Context, kind v1alpha1.Kind) ([]string, error)
}
