package storage

import (
	"context"
	"fmt"
)

// ListImages refreshes the images pool and returns the names of the
// archives it holds.
func (m *Manager) ListImages(ctx context.Context) ([]string, error) {
	if err := m.RefreshPool(ctx, m.pools.Images.Name); err != nil {
		return nil, fmt.Errorf("failed to refresh images pool: %w", err)
	}
	return m.ListVolumeNames(ctx, m.pools.Images.Name)
}

// ImagePath returns the filesystem path of an archive in the images pool.
func (m *Manager) ImagePath(ctx context.Context, name string) (string, error) {
	return m.VolumePath(ctx, m.pools.Images.Name, name)
}
