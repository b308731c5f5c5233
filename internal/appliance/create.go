package appliance

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/naming"
)

// CreateInput describes a machine to provision.
type CreateInput struct {
	Kind v1alpha1.Kind

	// Owner is the user namespace.
	Owner string

	// Name is the machine name within the namespace.
	Name string

	// Version selects the image artifact.
	Version string

	// Network is the fully qualified platform network name.
	Network string

	// IPConfig carries the network identity. Without a static IP the
	// machine keeps whatever address DHCP gives it.
	IPConfig v1alpha1.NetworkConfig
}

// Create provisions a new appliance and returns its info keyed by name.
//
// The steps run in a fixed order:
//  1. Resolve and open the image artifact
//  2. Confirm the target network exists
//  3. Deploy the machine from the image
//  4. Wait for the guest agent, then the grace delay
//  5. Power off
//  6. Apply the static network identity, if any
//  7. Power on
//  8. Stamp final metadata
//  9. Read back info, waiting for an address
//
// There is no rollback. A failure after deploy leaves the machine with
// configured=false.
func (s *Service) Create(ctx context.Context, in CreateInput) (map[string]v1alpha1.MachineInfo, error) {
	log := logging.FromContext(ctx).With("machine", in.Name, "owner", in.Owner, "kind", string(in.Kind))

	log.Infof("Resolving %s image version %s...", in.Kind.ImagePrefix(), in.Version)
	path, err := s.catalog.Path(ctx, in.Kind, in.Version)
	if err != nil {
		return nil, artifactError(fmt.Sprintf("failed to locate image version %s", in.Version), err)
	}

	log.Infof("Opening image %s...", path)
	img, err := s.open(path)
	if err != nil {
		return nil, artifactError(fmt.Sprintf("failed to open image %s", path), err)
	}
	release := sync.OnceFunc(func() {
		if err := img.Close(); err != nil {
			log.Warnf("Failed to close image %s: %v", path, err)
		}
	})
	defer release()

	log.Infof("Checking network %s...", in.Network)
	ok, err := s.platform.LookupNetwork(ctx, in.Network)
	if err != nil {
		return nil, platformError(err)
	}
	if !ok {
		return nil, invalidNetwork(in.Network)
	}

	networks := img.Networks()
	if len(networks) == 0 {
		return nil, artifactError(fmt.Sprintf("image %s declares no network", path), nil)
	}

	spec := DeploySpec{
		Owner:         in.Owner,
		Name:          in.Name,
		Image:         img,
		SourceNetwork: networks[0],
		Network:       in.Network,
		Meta: v1alpha1.MachineMeta{
			Component: in.Kind.Tag(),
			Created:   v1alpha1.Now(),
			Version:   in.Version,
			Owner:     in.Owner,
		},
	}
	if in.IPConfig.Static() {
		if mac, err := naming.MACFromIP(in.IPConfig.StaticIP); err == nil {
			spec.MACAddress = mac
		}
	}

	log.Infof("Deploying machine from %s...", path)
	m, err := s.platform.Deploy(ctx, spec)
	release()
	if err != nil {
		return nil, platformError(err)
	}

	log.Infof("Waiting for guest agent...")
	if err := s.gate.WaitUntilBooted(ctx, s.platform, m); err != nil {
		return nil, err
	}

	log.Infof("Powering off for customization...")
	if err := s.platform.PowerOff(ctx, m); err != nil {
		return nil, platformError(err)
	}

	if in.IPConfig.Static() {
		log.Infof("Applying static address %s...", in.IPConfig.StaticIP)
		if err := s.platform.Customize(ctx, m, in.IPConfig); err != nil {
			return nil, platformError(err)
		}
	} else {
		log.Infof("Skipping network customization (no static address)")
	}

	log.Infof("Powering on...")
	if err := s.platform.PowerOn(ctx, m); err != nil {
		return nil, platformError(err)
	}

	log.Infof("Stamping metadata...")
	if err := s.platform.SetMeta(ctx, m, v1alpha1.NewMachineMeta(in.Kind, in.Version, in.Owner)); err != nil {
		return nil, platformError(err)
	}

	log.Infof("Waiting for machine address...")
	info, err := s.platform.Info(ctx, m, true)
	if err != nil {
		return nil, platformError(err)
	}

	log.Infof("Machine '%s' created successfully", in.Name)
	return map[string]v1alpha1.MachineInfo{m.Name: info}, nil
}
