package storage

import (
	"context"
	"fmt"
	"io"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a new volume in the specified pool and returns its path.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return "", fmt.Errorf("pool not found: %w", err)
	}

	volumeXML, err := m.volumeXML(spec)
	if err != nil {
		return "", fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXML(pool, volumeXML, 0)
	if err != nil {
		return "", fmt.Errorf("failed to create volume: %w", err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}

	return path, nil
}

// UploadVolume streams length bytes from r into an existing volume.
func (m *Manager) UploadVolume(ctx context.Context, poolName, volumeName string, r io.Reader, length uint64) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}

	if err := m.client.StorageVolUpload(vol, r, 0, length, 0); err != nil {
		return fmt.Errorf("failed to upload data to volume: %w", err)
	}

	return nil
}

// ImportVolume creates a volume of spec.Capacity bytes and streams length
// bytes of r into it. The volume is removed again if the upload fails.
func (m *Manager) ImportVolume(ctx context.Context, poolName string, spec VolumeSpec, r io.Reader, length uint64) (string, error) {
	path, err := m.CreateVolume(ctx, poolName, spec)
	if err != nil {
		return "", err
	}

	if err := m.UploadVolume(ctx, poolName, spec.Name, r, length); err != nil {
		_ = m.DeleteVolume(ctx, poolName, spec.Name)
		return "", err
	}

	return path, nil
}

// DeleteVolume deletes a volume from the specified pool.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}

	return nil
}

// ListVolumeNames lists the names of all volumes in the specified pool.
func (m *Manager) ListVolumeNames(ctx context.Context, poolName string) ([]string, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	names := make([]string, 0, len(volumes))
	for _, vol := range volumes {
		names = append(names, vol.Name)
	}
	return names, nil
}

// VolumePath gets the full filesystem path for a volume.
func (m *Manager) VolumePath(ctx context.Context, poolName, volumeName string) (string, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return "", fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return "", fmt.Errorf("volume not found: %w", err)
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}

	return path, nil
}

func (m *Manager) volumeXML(spec VolumeSpec) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.Capacity,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: m.owner.uid,
				Group: m.owner.gid,
				Mode:  "0644",
			},
		},
	}

	return marshalXML(vol.Marshal)
}
