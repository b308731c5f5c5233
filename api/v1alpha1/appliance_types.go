package v1alpha1

// NetworkConfig is the IPv4 identity applied to a new appliance.
//
// An empty StaticIP means the machine obtains its configuration over DHCP
// and no customization is applied.
type NetworkConfig struct {
	// StaticIP is the IPv4 address to assign to the machine.
	StaticIP string `json:"static-ip,omitempty" yaml:"static-ip,omitempty"`

	// Netmask is the subnet mask for the network.
	Netmask string `json:"netmask,omitempty" yaml:"netmask,omitempty"`

	// DefaultGateway is the IPv4 address of the network default gateway.
	DefaultGateway string `json:"default-gateway,omitempty" yaml:"default-gateway,omitempty"`

	// DNS lists the IPv4 addresses of DNS servers.
	DNS []string `json:"dns,omitempty" yaml:"dns,omitempty"`

	// Domain is the DNS domain.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// MachineMeta is the metadata block stamped on every appliance machine.
type MachineMeta struct {
	// Component is the kind tag, see Kind.Tag.
	Component string `json:"component" yaml:"component"`

	// Created is when the machine finished provisioning.
	Created Time `json:"created" yaml:"created"`

	// Version is the appliance image version the machine was deployed from.
	Version string `json:"version" yaml:"version"`

	// Configured is false until the provisioning workflow has applied the
	// network identity and powered the machine back on.
	Configured bool `json:"configured" yaml:"configured"`

	// Generation counts metadata revisions.
	Generation int64 `json:"generation" yaml:"generation"`

	// Owner is the user namespace the machine belongs to.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// MachinePhase summarizes where a machine is in its lifecycle.
type MachinePhase string

const (
	// MachinePhaseProvisioning means the machine was deployed but the
	// provisioning workflow has not (or not successfully) finished.
	MachinePhaseProvisioning MachinePhase = "Provisioning"

	// MachinePhaseReady means the machine is configured and running.
	MachinePhaseReady MachinePhase = "Ready"

	// MachinePhaseStopped means the machine is configured but not running.
	MachinePhaseStopped MachinePhase = "Stopped"

	// MachinePhaseUnknown means the machine carries no appliance metadata.
	MachinePhaseUnknown MachinePhase = "Unknown"
)

// MachineInfo is the structured view of a machine returned by show and create.
type MachineInfo struct {
	State    string       `json:"state" yaml:"state"`
	Phase    MachinePhase `json:"phase" yaml:"phase"`
	IPs      []string     `json:"ips" yaml:"ips"`
	Networks []string     `json:"networks" yaml:"networks"`
	Meta     MachineMeta  `json:"meta" yaml:"meta"`
	UUID     string       `json:"uuid,omitempty" yaml:"uuid,omitempty"`
}

// CreateRequest describes a new appliance, as loaded from a request file.
type CreateRequest struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// Name is the name to give the appliance.
	Name string `json:"name" yaml:"name"`

	// Image is the appliance version to deploy.
	Image string `json:"image" yaml:"image"`

	// Network is the user's network to attach the appliance to. It is
	// namespaced with the owner before reaching the workflow.
	Network string `json:"network" yaml:"network"`

	// IPConfig is the network identity; omit StaticIP for DHCP.
	IPConfig NetworkConfig `json:"ip-config" yaml:"ip-config"`
}
