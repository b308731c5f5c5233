package appliance

import (
	"context"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/logging"
)

// Show returns info for every machine of kind in the owner's namespace,
// keyed by machine name.
func (s *Service) Show(ctx context.Context, owner string, kind v1alpha1.Kind) (map[string]v1alpha1.MachineInfo, error) {
	log := logging.FromContext(ctx)

	machines, err := s.platform.Machines(ctx, owner)
	if err != nil {
		return nil, platformError(err)
	}
	log.Debugf("Found %d machines for %s", len(machines), owner)

	out := make(map[string]v1alpha1.MachineInfo)
	for _, m := range machines {
		info, err := s.platform.Info(ctx, m, false)
		if err != nil {
			return nil, platformError(err)
		}
		if info.Meta.Component != kind.Tag() {
			continue
		}
		out[m.Name] = info
	}
	return out, nil
}
