package appliance

import (
	"context"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/logging"
)

// Delete powers off and destroys the owner's machine of the given kind.
//
// A machine with the right name but a different component tag is treated
// as absent.
func (s *Service) Delete(ctx context.Context, owner, name string, kind v1alpha1.Kind) error {
	log := logging.FromContext(ctx).With("machine", name, "owner", owner, "kind", string(kind))

	log.Infof("Looking up machine...")
	m, found, err := s.find(ctx, owner, name, kind)
	if err != nil {
		return err
	}
	if !found {
		return notFound(kind.Noun(), name)
	}

	log.Infof("Powering off...")
	if err := s.platform.PowerOff(ctx, m); err != nil {
		return platformError(err)
	}

	log.Infof("Destroying machine...")
	if err := s.platform.Destroy(ctx, m); err != nil {
		return platformError(err)
	}

	log.Infof("Machine '%s' deleted", name)
	return nil
}

func (s *Service) find(ctx context.Context, owner, name string, kind v1alpha1.Kind) (Machine, bool, error) {
	machines, err := s.platform.Machines(ctx, owner)
	if err != nil {
		return Machine{}, false, platformError(err)
	}

	for _, m := range machines {
		if m.Name != name {
			continue
		}
		info, err := s.platform.Info(ctx, m, false)
		if err != nil {
			return Machine{}, false, platformError(err)
		}
		if info.Meta.Component == kind.Tag() {
			return m, true, nil
		}
	}
	return Machine{}, false, nil
}
