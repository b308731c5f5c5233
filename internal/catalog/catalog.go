// Package catalog maps appliance versions to image archive names and lists
// the versions an image store holds.
//
// Archives are named <prefix>-<version>.ova where the prefix is fixed per
// appliance kind (AVE for the server, NDMP for the accelerator). Versions
// are free-form and may contain dots or dashes, so names are converted back
// by stripping the known prefix and extension rather than by splitting.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

// Extension is the archive extension of every appliance image.
const Extension = ".ova"

// Store lists and locates image archives.
type Store interface {
	ListImages(ctx context.Context) ([]string, error)
	ImagePath(ctx context.Context, name string) (string, error)
}

// Catalog resolves appliance versions against an image store.
type Catalog struct {
	store Store
}

// New returns a catalog backed by store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Resolve returns the archive name for a version. Any version is accepted.
//
// Example: (KindServer, "19.2.0.155b") → "AVE-19.2.0.155b.ova"
func Resolve(kind v1alpha1.Kind, version string) string {
	return kind.ImagePrefix() + "-" + version + Extension
}

// Unresolve returns the version encoded in an archive name. It reports false
// when the name does not follow the kind's convention.
func Unresolve(kind v1alpha1.Kind, name string) (string, bool) {
	prefix := kind.ImagePrefix() + "-"
	if kind.ImagePrefix() == "" || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, Extension) {
		return "", false
	}
	version := strings.TrimSuffix(strings.TrimPrefix(name, prefix), Extension)
	if version == "" {
		return "", false
	}
	return version, true
}

// ListAvailable returns the versions of kind present in the store. Order
// is unspecified; an empty store yields an empty, non-nil slice.
func (c *Catalog) ListAvailable(ctx context.Context, kind v1alpha1.Kind) ([]string, error) {
	names, err := c.store.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	versions := []string{}
	for _, name := range names {
		if v, ok := Unresolve(kind, name); ok {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// Path returns the on-disk location of the archive for version.
func (c *Catalog) Path(ctx context.Context, kind v1alpha1.Kind, version string) (string, error) {
	name := Resolve(kind, version)
	path, err := c.store.ImagePath(ctx, name)
	if err != nil {
		return "", fmt.Errorf("image %s not found: %w", name, err)
	}
	return path, nil
}
