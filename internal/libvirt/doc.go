// Package libvirt runs appliance machines on a libvirt host.
//
// It wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping)
//   - Domain XML generation and editing via libvirt.org/go/libvirtxml
//   - Platform, the implementation of appliance.Platform
//
// Connection Management:
//
//	client, err := libvirt.ConnectWithContext(ctx, "", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Platform:
//
// A machine "ave01" owned by "alice" is the domain "alice_ave01". Its disks
// and customization ISO live in the machines pool under the same prefix,
// and its appliance metadata travels inside the domain definition (see
// internal/metadata).
//
//	sm := storage.NewManager(client.Libvirt(), storage.DefaultPools())
//	p := libvirt.NewPlatform(client.Libvirt(), sm, libvirt.DefaultOptions())
//
// Consumer-Side Interfaces:
//
// Platform depends on the narrow domainClient and storageManager interfaces
// declared in platform.go. *libvirt.Libvirt and *storage.Manager satisfy
// them implicitly; tests use mocks.
package libvirt
