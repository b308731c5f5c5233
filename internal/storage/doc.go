// Package storage manages the libvirt storage pools and volumes behind
// appliance machines.
//
// Two directory pools are used:
//   - the images pool holds appliance OVA archives (AVE-<version>.ova,
//     NDMP-<version>.ova) and is read by the image catalog
//   - the machines pool holds per-machine volumes: the disks unpacked from
//     the OVA and the customization ISO
//
// Volume names are derived from the owning domain (see internal/naming).
// Machines are destroyed volume by volume, using the names attached in the
// domain definition.
//
// Disk data is streamed into volumes with StorageVolUpload; SniffFormat
// checks the magic bytes of the stream before the volume is created.
// Stream-optimized VMDK disks are converted to qcow2 with qemu-img first
// (QemuImg), since QEMU cannot write to their compressed extents.
//
// The LibvirtClient interface lists only the libvirt calls this package
// makes, so tests substitute an in-memory implementation.
package storage
