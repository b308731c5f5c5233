package libvirt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/naming"
	"github.com/jbweber/vlab-avamar/internal/storage"
)

// domainClient defines the libvirt operations the platform needs.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type domainClient interface {
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainCreate(Dom libvirt.Domain) error
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainInterfaceAddresses(Dom libvirt.Domain, Source uint32, Flags uint32) ([]libvirt.DomainInterface, error)
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
	NetworkLookupByName(Name string) (libvirt.Network, error)
}

// storageManager defines the volume operations the platform needs.
//
// In production, this is satisfied by *storage.Manager.
type storageManager interface {
	Pools() storage.Pools
	ImportVolume(ctx context.Context, poolName string, spec storage.VolumeSpec, r io.Reader, length uint64) (string, error)
	DeleteVolume(ctx context.Context, poolName, volumeName string) error
}

// DiskConverter rewrites image disks QEMU cannot write in place as qcow2.
//
// In production, this is satisfied by *storage.QemuImg.
type DiskConverter interface {
	Convert(ctx context.Context, r io.Reader, format storage.VolumeFormat) (io.ReadCloser, uint64, error)
}

// Options tunes platform waits and disk import.
type Options struct {
	// PollInterval is the delay between state checks.
	PollInterval time.Duration

	// ShutdownTimeout is how long a graceful shutdown may take before the
	// domain is forcibly stopped.
	ShutdownTimeout time.Duration

	// StateTimeout bounds waits for a state change libvirt has accepted.
	StateTimeout time.Duration

	// IPWaitTimeout bounds the wait for a guest address. Zero waits forever.
	IPWaitTimeout time.Duration

	// Converter turns VMDK disks into qcow2 before upload. Nil uses
	// qemu-img from PATH.
	Converter DiskConverter
}

// DefaultOptions returns the standard platform waits.
func DefaultOptions() Options {
	return Options{
		PollInterval:    500 * time.Millisecond,
		ShutdownTimeout: 2 * time.Minute,
		StateTimeout:    30 * time.Second,
		IPWaitTimeout:   10 * time.Minute,
	}
}

// Platform drives appliance machines on a libvirt host.
type Platform struct {
	client  domainClient
	storage storageManager
	opts    Options
}

var _ appliance.Platform = (*Platform)(nil)

// NewPlatform returns a Platform over client and volumes.
func NewPlatform(client domainClient, volumes storageManager, opts Options) *Platform {
	def := DefaultOptions()
	if opts.PollInterval == 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = def.ShutdownTimeout
	}
	if opts.StateTimeout == 0 {
		opts.StateTimeout = def.StateTimeout
	}
	if opts.Converter == nil {
		opts.Converter = storage.NewQemuImg("", "")
	}
	return &Platform{client: client, storage: volumes, opts: opts}
}

func (p *Platform) lookup(m appliance.Machine) (libvirt.Domain, error) {
	id := m.ID
	if id == "" {
		id = naming.DomainName(m.Owner, m.Name)
	}
	dom, err := p.client.DomainLookupByName(id)
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("failed to look up domain %s: %w", id, err)
	}
	return dom, nil
}

func (p *Platform) machinesPool() string {
	return p.storage.Pools().Machines.Name
}

func isLibvirtCode(err error, code libvirt.ErrorNumber) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(code)
}

// wait polls cond every interval until it reports true, ctx ends, or timeout
// (when positive) elapses.
func wait(ctx context.Context, interval, timeout time.Duration, cond func() (bool, error)) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
