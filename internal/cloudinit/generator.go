// Package cloudinit renders a machine's network identity as a cloud-init
// NoCloud seed: user-data carrying the hostname and domain, meta-data with a
// fresh instance-id, and a netplan v2 network-config for the primary adapter.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/naming"
)

// Spec is a complete customization for one machine.
type Spec struct {
	// Hostname is the machine's short host name.
	Hostname string

	// Domain is the DNS domain, used for the FQDN and DNS search list.
	Domain string

	// MACAddress selects the adapter the address is applied to.
	MACAddress string

	Address      string
	PrefixLength int
	Gateway      string
	DNS          []string

	// InstanceID changes on every customization so cloud-init reapplies it.
	InstanceID string
}

// NewSpec builds a customization for the adapter with the given MAC from a
// static network config.
func NewSpec(hostname, mac string, cfg v1alpha1.NetworkConfig) (Spec, error) {
	if !cfg.Static() {
		return Spec{}, fmt.Errorf("network config has no static IP")
	}
	if mac == "" {
		return Spec{}, fmt.Errorf("primary adapter MAC address is required")
	}

	prefix, err := naming.PrefixLength(cfg.Netmask)
	if err != nil {
		return Spec{}, err
	}

	return Spec{
		Hostname:     hostname,
		Domain:       cfg.Domain,
		MACAddress:   mac,
		Address:      cfg.StaticIP,
		PrefixLength: prefix,
		Gateway:      cfg.DefaultGateway,
		DNS:          cfg.DNS,
		InstanceID:   uuid.NewString(),
	}, nil
}

// FQDN returns hostname.domain, or the hostname alone when no domain is set.
func (s Spec) FQDN() string {
	if s.Domain == "" {
		return s.Hostname
	}
	return s.Hostname + "." + s.Domain
}

// UserData is the cloud-config user-data structure.
type UserData struct {
	Hostname       string  `yaml:"hostname"`
	FQDN           string  `yaml:"fqdn"`
	ManageEtcHosts bool    `yaml:"manage_etc_hosts"`
	Output         *Output `yaml:"output,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig is the netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig is a single ethernet interface configuration.
type EthernetConfig struct {
	Match       MatchConfig   `yaml:"match"`
	DHCP4       bool          `yaml:"dhcp4"`
	Addresses   []string      `yaml:"addresses"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// MatchConfig matches an interface by MAC address.
type MatchConfig struct {
	MACAddress string `yaml:"macaddress"`
}

// RouteConfig is a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers is the DNS configuration.
type Nameservers struct {
	Search    []string `yaml:"search,omitempty"`
	Addresses []string `yaml:"addresses"`
}

// GenerateUserData returns user-data including the "#cloud-config" header.
func GenerateUserData(s Spec) (string, error) {
	if s.Hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}

	out, err := yaml.Marshal(&UserData{
		Hostname:       s.Hostname,
		FQDN:           s.FQDN(),
		ManageEtcHosts: true,
		Output:         &Output{All: "| tee -a /var/log/cloud-init-output.log"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(out), nil
}

// GenerateMetaData returns meta-data for the spec's instance.
func GenerateMetaData(s Spec) (string, error) {
	if s.InstanceID == "" {
		return "", fmt.Errorf("instance-id is required")
	}

	out, err := yaml.Marshal(&MetaData{InstanceID: s.InstanceID, LocalHostname: s.Hostname})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}
	return string(out), nil
}

// GenerateNetworkConfig returns a netplan v2 config with a fixed address,
// default route and DNS on the adapter matched by MAC.
func GenerateNetworkConfig(s Spec) (string, error) {
	if s.Address == "" || s.MACAddress == "" {
		return "", fmt.Errorf("address and MAC address are required")
	}

	eth := EthernetConfig{
		Match:     MatchConfig{MACAddress: s.MACAddress},
		Addresses: []string{fmt.Sprintf("%s/%d", s.Address, s.PrefixLength)},
	}
	if s.Gateway != "" {
		eth.Routes = []RouteConfig{{To: "0.0.0.0/0", Via: s.Gateway}}
	}
	if len(s.DNS) > 0 {
		eth.Nameservers = &Nameservers{Addresses: s.DNS}
		if s.Domain != "" {
			eth.Nameservers.Search = []string{s.Domain}
		}
	}

	out, err := yaml.Marshal(&NetworkConfig{
		Version:   2,
		Ethernets: map[string]EthernetConfig{"primary": eth},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}
	return string(out), nil
}
