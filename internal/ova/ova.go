// Package ova reads appliance images packaged as OVA archives: a tar file
// holding an OVF descriptor and the disk files it references.
//
// An Archive keeps the file open for its whole lifetime so disk streams
// can be served from it; callers must Close it on every exit path.
package ova

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
)

// Disk is one virtual disk declared by the descriptor.
type Disk struct {
	ID       string // OVF disk id
	File     string // archive member holding the disk data
	Format   string // OVF format URI
	Capacity uint64 // virtual size in bytes
	Size     int64  // size of the archive member in bytes
}

// Hardware is the virtual hardware requested by the descriptor. Zero values
// mean the descriptor did not say.
type Hardware struct {
	CPUs      uint
	MemoryMiB uint64
}

// Archive is an opened OVA.
type Archive struct {
	path string

	mu      sync.Mutex
	f       *os.File
	members map[string]member

	env *envelope
}

type member struct {
	offset int64
	size   int64
}

// ErrClosed is returned by operations on a closed archive.
var ErrClosed = errors.New("ova: archive is closed")

// Open indexes the archive at path and parses its descriptor.
func Open(p string) (*Archive, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	a := &Archive{path: p, f: f, members: map[string]member{}}
	if err := a.index(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read image %s: %w", path.Base(p), err)
	}
	return a, nil
}

func (a *Archive) index() error {
	tr := tar.NewReader(a.f)
	var descriptor string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		offset, err := a.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		a.members[hdr.Name] = member{offset: offset, size: hdr.Size}

		if descriptor == "" && strings.EqualFold(path.Ext(hdr.Name), ".ovf") {
			descriptor = hdr.Name
		}
	}

	if descriptor == "" {
		return fmt.Errorf("no OVF descriptor in archive")
	}

	m := a.members[descriptor]
	data := make([]byte, m.size)
	if _, err := a.f.ReadAt(data, m.offset); err != nil {
		return fmt.Errorf("failed to read descriptor: %w", err)
	}

	env, err := parseDescriptor(data)
	if err != nil {
		return err
	}
	a.env = env
	return nil
}

// Path returns the archive's location on disk.
func (a *Archive) Path() string {
	return a.path
}

// Name returns the name of the virtual system the archive describes.
func (a *Archive) Name() string {
	vs := a.env.VirtualSystems[0]
	if vs.Name != "" {
		return vs.Name
	}
	return vs.ID
}

// Networks returns the network names the descriptor declares, in order.
func (a *Archive) Networks() []string {
	names := make([]string, 0, len(a.env.Networks))
	for _, n := range a.env.Networks {
		names = append(names, n.Name)
	}
	return names
}

// Disks returns the declared disks in descriptor order. The first disk is
// the boot disk.
func (a *Archive) Disks() ([]Disk, error) {
	files := map[string]string{}
	for _, ref := range a.env.References {
		files[ref.ID] = ref.Href
	}

	disks := make([]Disk, 0, len(a.env.Disks))
	for _, d := range a.env.Disks {
		href, ok := files[d.FileRef]
		if !ok {
			return nil, fmt.Errorf("disk %s references unknown file %q", d.DiskID, d.FileRef)
		}
		m, ok := a.members[href]
		if !ok {
			return nil, fmt.Errorf("disk %s: file %s missing from archive", d.DiskID, href)
		}

		capacity, err := diskCapacity(d)
		if err != nil {
			return nil, fmt.Errorf("disk %s: %w", d.DiskID, err)
		}

		disks = append(disks, Disk{
			ID:       d.DiskID,
			File:     href,
			Format:   d.Format,
			Capacity: capacity,
			Size:     m.size,
		})
	}
	return disks, nil
}

func diskCapacity(d diskDesc) (uint64, error) {
	var n uint64
	if _, err := fmt.Sscan(d.Capacity, &n); err != nil {
		return 0, fmt.Errorf("invalid capacity %q", d.Capacity)
	}
	mult, err := parseUnits(d.Units)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// Hardware returns the CPU count and memory size of the virtual system.
func (a *Archive) Hardware() (Hardware, error) {
	var hw Hardware
	for _, item := range a.env.VirtualSystems[0].Items {
		switch item.ResourceType {
		case resourceProcessor:
			hw.CPUs = uint(item.VirtualQuantity)
		case resourceMemory:
			units := item.AllocationUnits
			if units == "" {
				units = "byte * 2^20"
			}
			mult, err := parseUnits(units)
			if err != nil {
				return Hardware{}, fmt.Errorf("memory: %w", err)
			}
			hw.MemoryMiB = item.VirtualQuantity * mult / (1 << 20)
		}
	}
	return hw, nil
}

// OpenDisk returns a reader over the disk's data inside the archive. The
// reader is only valid until the archive is closed.
func (a *Archive) OpenDisk(d Disk) (io.Reader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		return nil, ErrClosed
	}
	m, ok := a.members[d.File]
	if !ok {
		return nil, fmt.Errorf("file %s missing from archive", d.File)
	}
	return io.NewSectionReader(a.f, m.offset, m.size), nil
}

// Close releases the archive. It is safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
