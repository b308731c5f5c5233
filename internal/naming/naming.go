// Package naming holds the conventions that map appliance owners and
// machines onto libvirt object names: domains, networks and volumes, plus
// the deterministic MAC assigned to statically addressed machines.
package naming

import (
	"fmt"
	"net"
	"strings"
)

// Separator joins an owner namespace and an object name.
const Separator = "_"

// DomainName returns the libvirt domain name for an owner's machine.
//
// Example: ("alice", "ave01") → "alice_ave01"
func DomainName(owner, machine string) string {
	return owner + Separator + machine
}

// NetworkName returns the namespaced network name for an owner's network.
func NetworkName(owner, network string) string {
	return owner + Separator + network
}

// OwnerPrefix returns the prefix shared by every object in an owner's namespace.
func OwnerPrefix(owner string) string {
	return owner + Separator
}

// MachineName strips the owner namespace from a domain name. It reports
// false when the domain is not in the owner's namespace.
func MachineName(owner, domain string) (string, bool) {
	prefix := OwnerPrefix(owner)
	if owner == "" || !strings.HasPrefix(domain, prefix) || len(domain) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(domain, prefix), true
}

// MACFromIP calculates a deterministic MAC address from an IP address.
// Uses the RFC 2731 local assignment prefix be:ef:.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	addr := ip
	if strings.Contains(ip, "/") {
		parsed, _, err := net.ParseCIDR(ip)
		if err != nil {
			return "", fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		addr = parsed.String()
	}

	v4 := net.ParseIP(addr).To4()
	if v4 == nil {
		return "", fmt.Errorf("not an IPv4 address: %s", addr)
	}

	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x", v4[0], v4[1], v4[2], v4[3]), nil
}

// PrefixLength converts a dotted netmask into a CIDR prefix length.
//
// Example: "255.255.255.0" → 24
func PrefixLength(netmask string) (int, error) {
	v4 := net.ParseIP(netmask).To4()
	if v4 == nil {
		return 0, fmt.Errorf("invalid netmask: %s", netmask)
	}
	ones, bits := net.IPMask(v4).Size()
	if bits == 0 {
		return 0, fmt.Errorf("non-contiguous netmask: %s", netmask)
	}
	return ones, nil
}

// VolumeNameDisk returns the volume name for a machine's nth disk.
// Format: {domain}_disk{index}.{format}
func VolumeNameDisk(domain string, index int, format string) string {
	return fmt.Sprintf("%s_disk%d.%s", domain, index, format)
}

// VolumeNameCloudInit returns the volume name for a machine's
// customization ISO.
// Format: {domain}_cloudinit.iso
func VolumeNameCloudInit(domain string) string {
	return fmt.Sprintf("%s_cloudinit.iso", domain)
}

// IsMachineVolume reports whether volume is one of the names
// VolumeNameDisk or VolumeNameCloudInit produce for domain.
func IsMachineVolume(domain, volume string) bool {
	rest, ok := strings.CutPrefix(volume, domain+Separator)
	if !ok {
		return false
	}
	if rest == "cloudinit.iso" {
		return true
	}
	rest, ok = strings.CutPrefix(rest, "disk")
	if !ok {
		return false
	}
	idx, ext, ok := strings.Cut(rest, ".")
	if !ok || idx == "" || ext == "" || strings.Contains(ext, ".") {
		return false
	}
	for _, r := range idx {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateName checks an owner or machine name. Names are limited to
// letters, digits, '-' and '.', so joining two of them with Separator
// never produces the same domain name twice.
func ValidateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", what)
	}
	if len(name) > 63 {
		return fmt.Errorf("%s %q is longer than 63 characters", what, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return fmt.Errorf("%s %q contains invalid character %q", what, name, r)
		}
	}
	if name[0] == '-' || name[0] == '.' {
		return fmt.Errorf("%s %q must start with a letter or digit", what, name)
	}
	return nil
}
