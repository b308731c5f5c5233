package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirStore is a Store over a plain directory of archives, for hosts where
// images are not managed through a libvirt pool.
type DirStore struct {
	Dir string
}

// ListImages returns the names of regular files in the directory.
func (d DirStore) ListImages(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ImagePath returns the path of name inside the directory if it exists.
func (d DirStore) ImagePath(ctx context.Context, name string) (string, error) {
	if filepath.Base(name) != name {
		return "", fmt.Errorf("invalid image name: %s", name)
	}
	path := filepath.Join(d.Dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
