package v1alpha1

import (
	"fmt"
	"net"
)

const (
	// GroupName is the API group for vlab resources.
	GroupName = "vlab.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"
)

// Network defaults applied by the request boundary.
const (
	DefaultNetmask = "255.255.255.0"
	DefaultGateway = "192.168.1.1"
	DefaultDomain  = "vlab.local"
)

// DefaultDNS returns the default DNS server list.
func DefaultDNS() []string {
	return []string{"192.168.1.1"}
}

// APIVersion returns the fully qualified apiVersion string.
func APIVersion() string {
	return GroupName + "/" + Version
}

// ApplyDefaults fills in any unset netmask, gateway, DNS and domain.
// StaticIP is never defaulted.
func (c *NetworkConfig) ApplyDefaults() {
	if c.Netmask == "" {
		c.Netmask = DefaultNetmask
	}
	if c.DefaultGateway == "" {
		c.DefaultGateway = DefaultGateway
	}
	if len(c.DNS) == 0 {
		c.DNS = DefaultDNS()
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
}

// Static reports whether the config requests a static address.
func (c NetworkConfig) Static() bool {
	return c.StaticIP != ""
}

// Validate checks that every address in a static config is a dotted IPv4
// address. DHCP configs are always valid.
func (c NetworkConfig) Validate() error {
	if !c.Static() {
		return nil
	}

	check := func(field, value string) error {
		ip := net.ParseIP(value)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("%s: %q is not an IPv4 address", field, value)
		}
		return nil
	}

	if err := check("static-ip", c.StaticIP); err != nil {
		return err
	}
	if err := check("netmask", c.Netmask); err != nil {
		return err
	}
	if ones, bits := net.IPMask(net.ParseIP(c.Netmask).To4()).Size(); ones == 0 && bits == 0 {
		return fmt.Errorf("netmask: %q is not a contiguous mask", c.Netmask)
	}
	if err := check("default-gateway", c.DefaultGateway); err != nil {
		return err
	}
	for _, d := range c.DNS {
		if err := check("dns", d); err != nil {
			return err
		}
	}
	return nil
}

// NewMachineMeta returns the metadata stamped on a fully provisioned machine.
func NewMachineMeta(kind Kind, version, owner string) MachineMeta {
	return MachineMeta{
		Component:  kind.Tag(),
		Created:    Now(),
		Version:    version,
		Configured: true,
		Generation: 1,
		Owner:      owner,
	}
}

// Validate checks a create request for the fields the workflow needs.
func (r *CreateRequest) Validate() error {
	if r.APIVersion != "" && r.APIVersion != APIVersion() {
		return fmt.Errorf("unsupported apiVersion %q (expected %s)", r.APIVersion, APIVersion())
	}
	if _, err := ParseKind(r.Kind); err != nil {
		return err
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Image == "" {
		return fmt.Errorf("image is required")
	}
	if r.Network == "" {
		return fmt.Errorf("network is required")
	}
	if err := r.IPConfig.Validate(); err != nil {
		return fmt.Errorf("ip-config: %w", err)
	}
	return nil
}
