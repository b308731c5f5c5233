package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

// JSONFormatter formats task outcomes as JSON.
type JSONFormatter struct{}

// FormatMachines formats machines as a JSON object keyed by name.
func (f *JSONFormatter) FormatMachines(machines map[string]v1alpha1.MachineInfo) (string, error) {
	if machines == nil {
		machines = map[string]v1alpha1.MachineInfo{}
	}
	return marshalJSON(machines, "machines")
}

// FormatImages formats the image listing as JSON.
func (f *JSONFormatter) FormatImages(images map[string][]string) (string, error) {
	if images == nil {
		images = map[string][]string{}
	}
	return marshalJSON(images, "images")
}

// FormatRecord formats a task record as JSON, with its handle.
func (f *JSONFormatter) FormatRecord(handle string, rec *tasks.Record) (string, error) {
	wrapper := struct {
		Handle string `json:"handle"`
		*tasks.Record
	}{Handle: handle, Record: rec}
	return marshalJSON(wrapper, "task record")
}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
