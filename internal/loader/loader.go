// Package loader provides functions for loading appliance create requests
// from YAML files.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

// LoadFromFile loads a CreateRequest from a YAML file.
func LoadFromFile(path string) (*v1alpha1.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML loads a CreateRequest from YAML bytes. The kind field names
// the appliance: "server" or "ndmp" (or the metadata tags "Avamar" and
// "AvamarNDMP").
func LoadFromYAML(data []byte) (*v1alpha1.CreateRequest, error) {
	var req v1alpha1.CreateRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if req.Kind == "" {
		return nil, fmt.Errorf("missing required field: kind")
	}

	applyDefaults(&req)

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &req, nil
}

// SaveToFile writes req to path as YAML.
func SaveToFile(req *v1alpha1.CreateRequest, path string) error {
	if req.APIVersion == "" {
		req.APIVersion = v1alpha1.APIVersion()
	}

	data, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// applyDefaults normalizes the request and fills in network defaults.
func applyDefaults(req *v1alpha1.CreateRequest) {
	if req.APIVersion == "" {
		req.APIVersion = v1alpha1.APIVersion()
	}

	// The kind is stored as its task suffix.
	if kind, err := v1alpha1.ParseKind(req.Kind); err == nil {
		req.Kind = string(kind)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Image = strings.TrimSpace(req.Image)
	req.Network = strings.TrimSpace(req.Network)
	req.IPConfig.StaticIP = strings.TrimSpace(req.IPConfig.StaticIP)

	if req.IPConfig.Static() {
		req.IPConfig.ApplyDefaults()
	}
}
