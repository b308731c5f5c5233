package appliance

import (
	"context"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

// ImageListKey is the content key for image listings.
const ImageListKey = "image"

// ListImages returns the available versions of kind as {"image": [...]}.
func (s *Service) ListImages(ctx context.Context, kind v1alpha1.Kind) (map[string][]string, error) {
	versions, err := s.catalog.ListAvailable(ctx, kind)
	if err != nil {
		return nil, artifactError("failed to list images", err)
	}
	if versions == nil {
		versions = []string{}
	}
	return map[string][]string{ImageListKey: versions}, nil
}
