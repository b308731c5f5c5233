package tasks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

// Namespace prefixes every task name.
const Namespace = "avamar"

// Op is a workflow operation.
type Op string

const (
	OpShow   Op = "show"
	OpCreate Op = "create"
	OpDelete Op = "delete"
	OpImage  Op = "image"
)

// Ops returns every operation.
func Ops() []Op {
	return []Op{OpShow, OpCreate, OpDelete, OpImage}
}

// Name returns the task name of op for kind, e.g. "avamar.show_server".
func Name(op Op, kind v1alpha1.Kind) string {
	return fmt.Sprintf("%s.%s_%s", Namespace, op, kind.TaskSuffix())
}

// ParseName splits a task name into its operation and kind.
func ParseName(name string) (Op, v1alpha1.Kind, error) {
	rest, ok := strings.CutPrefix(name, Namespace+".")
	if !ok {
		return "", "", fmt.Errorf("unknown task %s", name)
	}
	op, suffix, ok := strings.Cut(rest, "_")
	if !ok {
		return "", "", fmt.Errorf("unknown task %s", name)
	}
	kind, err := v1alpha1.ParseKind(suffix)
	if err != nil {
		return "", "", fmt.Errorf("unknown task %s: %w", name, err)
	}
	for _, o := range Ops() {
		if Op(op) == o {
			return o, kind, nil
		}
	}
	return "", "", fmt.Errorf("unknown task %s", name)
}

// Request is a task invocation.
type Request struct {
	// ID is assigned by the worker on submit. Any value sent by a client
	// is replaced.
	ID string `json:"id,omitempty"`

	// Name is the registered task name.
	Name string `json:"name"`

	// Args are the task's positional arguments.
	Args []json.RawMessage `json:"args"`

	// TxnID is a client-supplied correlation id, used only in logs.
	TxnID string `json:"txn_id,omitempty"`
}

// NewRequest builds a request, encoding args as JSON.
func NewRequest(name, txnID string, args ...any) (Request, error) {
	req := Request{Name: name, TxnID: txnID, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		req.Args = append(req.Args, data)
	}
	return req, nil
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Record is the stored state of one task.
type Record struct {
	ID       string               `json:"id" yaml:"id"`
	Name     string               `json:"name" yaml:"name"`
	TxnID    string               `json:"txn_id,omitempty" yaml:"txn_id,omitempty"`
	Status   Status               `json:"status" yaml:"status"`
	Result   *v1alpha1.TaskResult `json:"result,omitempty" yaml:"result,omitempty"`
	Created  v1alpha1.Time        `json:"created" yaml:"created"`
	Started  *v1alpha1.Time       `json:"started,omitempty" yaml:"started,omitempty"`
	Finished *v1alpha1.Time       `json:"finished,omitempty" yaml:"finished,omitempty"`
}

// HandleSeparator joins worker id and task id in a handle.
const HandleSeparator = "/"

// Handle returns the client-facing handle for a task on a worker.
func Handle(workerID, taskID string) string {
	return workerID + HandleSeparator + taskID
}

// ParseHandle splits a handle into worker id and task id.
func ParseHandle(handle string) (workerID, taskID string, err error) {
	workerID, taskID, ok := strings.Cut(handle, HandleSeparator)
	if !ok || workerID == "" || taskID == "" {
		return "", "", fmt.Errorf("invalid task handle %q", handle)
	}
	return workerID, taskID, nil
}
