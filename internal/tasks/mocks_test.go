package tasks

import (
	"context"
	"sync"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/appliance"
)

// mockWorkflows is a mock implementation of Workflows for testing.
type mockWorkflows struct {
	mu sync.Mutex

	// Configurable behavior
	showFunc   func(owner string, kind v1alpha1.Kind) (map[string]v1alpha1.MachineInfo, error)
	createFunc func(ctx context.Context, in appliance.CreateInput) (map[string]v1alpha1.MachineInfo, error)
	deleteFunc func(owner, name string, kind v1alpha1.Kind) error
	imagesFunc func(kind v1alpha1.Kind) (map[string][]string, error)

	// Call tracking
	createCalls []appliance.CreateInput
	deleteCalls [][2]string
	kinds       []v1alpha1.Kind
}

func newMockWorkflows() *mockWorkflows {
	return &mockWorkflows{
		showFunc: func(owner string, kind v1alpha1.Kind) (map[string]v1alpha1.MachineInfo, error) {
			return map[string]v1alpha1.MachineInfo{}, nil
		},
		createFunc: func(ctx context.Context, in appliance.CreateInput) (map[string]v1alpha1.MachineInfo, error) {
			return map[string]v1alpha1.MachineInfo{in.Name: {State: "running"}}, nil
		},
		deleteFunc: func(owner, name string, kind v1alpha1.Kind) error {
			return nil
		},
		imagesFunc: func(kind v1alpha1.Kind) (map[string][]string, error) {
			return map[string][]string{"image": {"19.2.0.155"}}, nil
		},
	}
}

func (m *mockWorkflows) Show(_ context.Context, owner string, kind v1alpha1.Kind) (map[string]v1alpha1.MachineInfo, error) {
	m.mu.Lock()
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	return m.showFunc(owner, kind)
}

func (m *mockWorkflows) Create(ctx context.Context, in appliance.CreateInput) (map[string]v1alpha1.MachineInfo, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, in)
	m.kinds = append(m.kinds, in.Kind)
	m.mu.Unlock()
	return m.createFunc(ctx, in)
}

func (m *mockWorkflows) Delete(_ context.Context, owner, name string, kind v1alpha1.Kind) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, [2]string{owner, name})
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	return m.deleteFunc(owner, name, kind)
}

func (m *mockWorkflows) ListImages(_ context.Context, kind v1alpha1.Kind) (map[string][]string, error) {
	m.mu.Lock()
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	return m.imagesFunc(kind)
}
