package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool ensures a storage pool exists, creating it if necessary.
func (m *Manager) EnsurePool(ctx context.Context, name string, poolType PoolType, path string) error {
	if _, err := m.client.StoragePoolLookupByName(name); err == nil {
		return nil
	}
	return m.CreatePool(ctx, name, poolType, path)
}

// CreatePool defines, builds, starts and autostarts a storage pool.
func (m *Manager) CreatePool(ctx context.Context, name string, poolType PoolType, path string) error {
	if poolType != PoolTypeDir {
		return fmt.Errorf("unsupported pool type: %s", poolType)
	}

	poolXML, err := m.dirPoolXML(name, path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool: %w", err)
	}

	if err := m.client.StoragePoolBuild(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to build pool: %w", err)
	}

	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to start pool: %w", err)
	}

	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		return fmt.Errorf("pool created but failed to set autostart: %w", err)
	}

	return nil
}

// GetPoolInfo gets state and capacity for a storage pool.
func (m *Manager) GetPoolInfo(ctx context.Context, name string) (*PoolInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	state, capacity, allocation, available, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool info: %w", err)
	}

	xmlDesc, err := m.client.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool XML: %w", err)
	}

	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse pool XML: %w", err)
	}

	info := &PoolInfo{
		Name:       pool.Name,
		UUID:       uuid.UUID(pool.UUID).String(),
		State:      poolStateString(libvirt.StoragePoolState(state)),
		Capacity:   capacity,
		Allocation: allocation,
		Available:  available,
	}
	if def.Target != nil {
		info.Path = def.Target.Path
	}
	return info, nil
}

// RefreshPool rescans a pool so files copied in out of band become volumes.
func (m *Manager) RefreshPool(ctx context.Context, name string) error {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
		return fmt.Errorf("failed to refresh pool: %w", err)
	}

	return nil
}

func poolStateString(state libvirt.StoragePoolState) string {
	switch state {
	case libvirt.StoragePoolInactive:
		return "inactive"
	case libvirt.StoragePoolBuilding:
		return "building"
	case libvirt.StoragePoolRunning:
		return "running"
	case libvirt.StoragePoolDegraded:
		return "degraded"
	case libvirt.StoragePoolInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

func (m *Manager) dirPoolXML(name, path string) (string, error) {
	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Owner: m.owner.uid,
				Group: m.owner.gid,
				Mode:  "0755",
			},
		},
	}

	return marshalXML(pool.Marshal)
}

// marshalXML strips the XML declaration libvirtxml emits.
func marshalXML(marshal func() (string, error)) (string, error) {
	doc, err := marshal()
	if err != nil {
		return "", err
	}
	doc = strings.TrimPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(doc), nil
}
