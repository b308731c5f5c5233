package appliance

import (
	"github.com/jbweber/vlab-avamar/internal/ova"
)

// ImageOpener opens an image artifact by path.
type ImageOpener func(path string) (Image, error)

// Service runs appliance workflows against a platform and image catalog.
type Service struct {
	platform Platform
	catalog  ImageCatalog
	gate     Gate
	open     ImageOpener
}

// Option configures a Service.
type Option func(*Service)

// WithGate overrides the boot-readiness gate.
func WithGate(g Gate) Option {
	return func(s *Service) {
		s.gate = g
	}
}

// WithImageOpener overrides how image artifacts are opened.
func WithImageOpener(open ImageOpener) Option {
	return func(s *Service) {
		s.open = open
	}
}

// NewService returns a Service using the default gate and OVA loader.
func NewService(platform Platform, catalog ImageCatalog, opts ...Option) *Service {
	s := &Service{
		platform: platform,
		catalog:  catalog,
		gate:     DefaultGate(),
		open:     openOVA,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func openOVA(path string) (Image, error) {
	a, err := ova.Open(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}
