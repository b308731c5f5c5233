package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/appliance"
	"github.com/jbweber/vlab-avamar/internal/logging"
	"github.com/jbweber/vlab-avamar/internal/naming"
)

// Workflows is the set of appliance operations tasks dispatch to.
//
// In production, this is satisfied by *appliance.Service.
type Workflows interface {
	Show(ctx context.Context, owner string, kind v1alpha1.Kind) (map[string]v1alpha1.MachineInfo, error)
	Create(ctx context.Context, in appliance.CreateInput) (map[string]v1alpha1.MachineInfo, error)
	Delete(ctx context.Context, owner, name string, kind v1alpha1.Kind) error
	ListImages(ctx context.Context, kind v1alpha1.Kind) (map[string][]string, error)
}

// Handler runs one task and returns its content.
type Handler func(ctx context.Context, args []json.RawMessage) (any, error)

// Registry maps task names to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a Registry with the four workflows registered for
// every appliance kind.
func NewRegistry(w Workflows) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, kind := range v1alpha1.Kinds() {
		r.Register(Name(OpShow, kind), showHandler(w, kind))
		r.Register(Name(OpCreate, kind), createHandler(w, kind))
		r.Register(Name(OpDelete, kind), deleteHandler(w, kind))
		r.Register(Name(OpImage, kind), imageHandler(w, kind))
	}
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Run executes req and renders the outcome as a TaskResult. It never
// returns an error; failures are carried in the result.
func (r *Registry) Run(ctx context.Context, req Request) v1alpha1.TaskResult {
	log := logging.FromContext(ctx).With("txn_id", req.TxnID, "task_id", req.ID, "task", req.Name)
	ctx = logging.WithLogger(ctx, log)

	log.Info("Task starting")

	h, ok := r.handlers[req.Name]
	if !ok {
		err := fmt.Errorf("unknown task %s", req.Name)
		log.Errorf("Task failed: %v", err)
		return v1alpha1.Failed(err)
	}

	content, err := h(ctx, req.Args)
	if err != nil {
		log.Errorf("Task failed: %v", err)
		return v1alpha1.Failed(err)
	}

	log.Info("Task complete")
	return v1alpha1.Succeeded(content)
}

// decodeArgs unmarshals positional args into dest, requiring an exact count.
func decodeArgs(args []json.RawMessage, dest ...any) error {
	if len(args) != len(dest) {
		return fmt.Errorf("expected %d arguments, got %d", len(dest), len(args))
	}
	for i, raw := range args {
		if err := json.Unmarshal(raw, dest[i]); err != nil {
			return fmt.Errorf("invalid argument %d: %w", i, err)
		}
	}
	return nil
}

// validateNames rejects owner and machine names that would not map to a
// unique domain name.
func validateNames(owner, machine string) error {
	if err := naming.ValidateName("username", owner); err != nil {
		return err
	}
	return naming.ValidateName("machine name", machine)
}

func showHandler(w Workflows, kind v1alpha1.Kind) Handler {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var username string
		if err := decodeArgs(args, &username); err != nil {
			return nil, err
		}
		if err := naming.ValidateName("username", username); err != nil {
			return nil, err
		}
		return w.Show(ctx, username, kind)
	}
}

func createHandler(w Workflows, kind v1alpha1.Kind) Handler {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var (
			in       = appliance.CreateInput{Kind: kind}
			ipConfig *v1alpha1.NetworkConfig
		)
		if err := decodeArgs(args, &in.Owner, &in.Name, &in.Version, &in.Network, &ipConfig); err != nil {
			return nil, err
		}
		if err := validateNames(in.Owner, in.Name); err != nil {
			return nil, err
		}
		if ipConfig != nil {
			in.IPConfig = *ipConfig
		}
		if in.IPConfig.Static() {
			in.IPConfig.ApplyDefaults()
		}
		if err := in.IPConfig.Validate(); err != nil {
			return nil, err
		}
		return w.Create(ctx, in)
	}
}

func deleteHandler(w Workflows, kind v1alpha1.Kind) Handler {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var username, machineName string
		if err := decodeArgs(args, &username, &machineName); err != nil {
			return nil, err
		}
		if err := validateNames(username, machineName); err != nil {
			return nil, err
		}
		return nil, w.Delete(ctx, username, machineName, kind)
	}
}

func imageHandler(w Workflows, kind v1alpha1.Kind) Handler {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		if err := decodeArgs(args); err != nil {
			return nil, err
		}
		return w.ListImages(ctx, kind)
	}
}
