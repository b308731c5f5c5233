package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

// YAMLFormatter formats task outcomes as YAML.
type YAMLFormatter struct{}

// FormatMachines formats machines as a YAML mapping keyed by name.
func (f *YAMLFormatter) FormatMachines(machines map[string]v1alpha1.MachineInfo) (string, error) {
	if len(machines) == 0 {
		return "{}\n", nil
	}
	return marshalYAML(machines, "machines")
}

// FormatImages formats the image listing as YAML.
func (f *YAMLFormatter) FormatImages(images map[string][]string) (string, error) {
	if len(images) == 0 {
		return "{}\n", nil
	}
	return marshalYAML(images, "images")
}

// FormatRecord formats a task record as YAML, with its handle.
func (f *YAMLFormatter) FormatRecord(handle string, rec *tasks.Record) (string, error) {
	wrapper := struct {
		Handle       string `yaml:"handle"`
		tasks.Record `yaml:",inline"`
	}{Handle: handle, Record: *rec}
	return marshalYAML(wrapper, "task record")
}

func marshalYAML(v any, what string) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}
