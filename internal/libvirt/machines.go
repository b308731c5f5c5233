package libvirt

import (
	"context"
	"fmt"
	"sort"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/metadata"
	"github.com/jbweber/vlab-avamar/internal/naming"
	"github.com/jbweber/vlab-avamar/internal/status"
)

// Machines lists the domains in owner's namespace: those named
// "<owner>_<machine>" whose metadata, when present, names the same owner.
func (p *Platform) Machines(_ context.Context, owner string) ([]appliance.Machine, error) {
	domains, _, err := p.client.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	machines := []appliance.Machine{}
	for _, dom := range domains {
		name, ok := naming.MachineName(owner, dom.Name)
		if !ok {
			continue
		}
		meta, found, err := metadata.Load(p.client, dom)
		if err != nil {
			return nil, err
		}
		if found && meta.Owner != "" && meta.Owner != owner {
			continue
		}
		machines = append(machines, appliance.Machine{Owner: owner, Name: name, ID: dom.Name})
	}

	sort.Slice(machines, func(i, j int) bool { return machines[i].Name < machines[j].Name })
	return machines, nil
}

// SetMeta replaces a domain's metadata in its persistent definition and,
// when running, in the live domain too.
func (p *Platform) SetMeta(_ context.Context, m appliance.Machine, meta v1alpha1.MachineMeta) error {
	dom, err := p.lookup(m)
	if err != nil {
		return err
	}

	state, err := p.state(dom)
	if err != nil {
		return err
	}

	impact := libvirt.DomainAffectConfig
	if status.IsRunning(state) {
		impact |= libvirt.DomainAffectLive
	}
	return metadata.Store(p.client, dom, meta, impact)
}
