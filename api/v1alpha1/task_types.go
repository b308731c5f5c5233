package v1alpha1

import (
	"encoding/json"
	"fmt"
)

// TaskResult is the outcome of a dispatched task.
//
// Exactly one of Content and Error is meaningful. Error is nil on success and
// Content is empty on failure.
type TaskResult struct {
	Content any            `json:"content" yaml:"content"`
	Error   *string        `json:"error" yaml:"error"`
	Params  map[string]any `json:"params" yaml:"params"`
}

// Succeeded returns a successful result carrying content.
func Succeeded(content any) TaskResult {
	if content == nil {
		content = map[string]any{}
	}
	return TaskResult{Content: content, Params: map[string]any{}}
}

// Failed returns a failed result carrying the error message.
func Failed(err error) TaskResult {
	msg := err.Error()
	return TaskResult{Content: map[string]any{}, Error: &msg, Params: map[string]any{}}
}

// Failure returns the error message, or "" for a successful result.
func (r TaskResult) Failure() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// DecodeContent converts the result content into v. Content that crossed
// the wire arrives as generic JSON values; v gives it back its shape.
func (r TaskResult) DecodeContent(v any) error {
	data, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("failed to encode task content: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode task content: %w", err)
	}
	return nil
}
