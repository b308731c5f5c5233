package libvirt

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"go.uber.org/zap"

	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/status"
)

// stateString maps a libvirt domain state to its MachineInfo name.
func stateString(state int32) string {
	switch libvirt.DomainState(state) {
	case libvirt.DomainNostate:
		return status.StateNoState
	case libvirt.DomainRunning:
		return status.StateRunning
	case libvirt.DomainBlocked:
		return status.StateBlocked
	case libvirt.DomainPaused:
		return status.StatePaused
	case libvirt.DomainShutdown:
		return status.StateShutdown
	case libvirt.DomainShutoff:
		return status.StateShutoff
	case libvirt.DomainCrashed:
		return status.StateCrashed
	case libvirt.DomainPmsuspended:
		return status.StatePMSuspended
	default:
		return status.StateUnknown
	}
}

func (p *Platform) state(dom libvirt.Domain) (string, error) {
	state, _, err := p.client.DomainGetState(dom, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get state of domain %s: %w", dom.Name, err)
	}
	return stateString(state), nil
}

// PowerOn starts a stopped domain and waits until it runs.
func (p *Platform) PowerOn(ctx context.Context, m appliance.Machine) error {
	log := logging.FromContext(ctx)

	dom, err := p.lookup(m)
	if err != nil {
		return err
	}

	state, err := p.state(dom)
	if err != nil {
		return err
	}
	if status.IsRunning(state) {
		return nil
	}
	if !status.IsOff(state) {
		return fmt.Errorf("cannot start domain %s in state %s", dom.Name, state)
	}

	log.Debugf("Starting domain %s...", dom.Name)
	if err := p.client.DomainCreate(dom); err != nil {
		return fmt.Errorf("failed to start domain %s: %w", dom.Name, err)
	}

	err = wait(ctx, p.opts.PollInterval, p.opts.StateTimeout, func() (bool, error) {
		s, err := p.state(dom)
		return status.IsRunning(s), err
	})
	if err != nil {
		return fmt.Errorf("domain %s did not start: %w", dom.Name, err)
	}
	return nil
}

// PowerOff stops a domain and waits until it is off. A graceful ACPI
// shutdown is tried first; the domain is destroyed if that fails or takes
// longer than ShutdownTimeout.
func (p *Platform) PowerOff(ctx context.Context, m appliance.Machine) error {
	log := logging.FromContext(ctx)

	dom, err := p.lookup(m)
	if err != nil {
		return err
	}
	return p.powerOff(ctx, log, dom)
}

func (p *Platform) powerOff(ctx context.Context, log *zap.SugaredLogger, dom libvirt.Domain) error {
	state, err := p.state(dom)
	if err != nil {
		return err
	}
	if status.IsOff(state) {
		return nil
	}

	isOff := func() (bool, error) {
		s, err := p.state(dom)
		return status.IsOff(s), err
	}

	log.Debugf("Shutting down domain %s...", dom.Name)
	if err := p.client.DomainShutdown(dom); err != nil {
		log.Warnf("Graceful shutdown of %s failed: %v", dom.Name, err)
	} else {
		err := wait(ctx, p.opts.PollInterval, p.opts.ShutdownTimeout, isOff)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Warnf("Graceful shutdown of %s timed out after %s", dom.Name, p.opts.ShutdownTimeout)
	}

	log.Debugf("Force stopping domain %s...", dom.Name)
	if err := p.client.DomainDestroy(dom); err != nil {
		if off, serr := isOff(); serr != nil || !off {
			return fmt.Errorf("failed to force stop domain %s: %w", dom.Name, err)
		}
	}

	if err := wait(ctx, p.opts.PollInterval, p.opts.StateTimeout, isOff); err != nil {
		return fmt.Errorf("domain %s did not stop: %w", dom.Name, err)
	}
	return nil
}
