// Package status derives the lifecycle phase reported for a machine from
// its power state and appliance metadata.
package status

import (
	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

// Power states reported in MachineInfo.State.
const (
	StateNoState     = "nostate"
	StateRunning     = "running"
	StateBlocked     = "blocked"
	StatePaused      = "paused"
	StateShutdown    = "shutdown"
	StateShutoff     = "shutoff"
	StateCrashed     = "crashed"
	StatePMSuspended = "pmsuspended"
	StateUnknown     = "unknown"
)

// Phase returns the machine's lifecycle phase.
//
// A machine with no component tag is Unknown. A machine whose metadata is
// not yet marked configured was left mid-provisioning and stays
// Provisioning whatever its power state, so it can be told apart from a
// healthy one.
func Phase(state string, meta v1alpha1.MachineMeta) v1alpha1.MachinePhase {
	switch {
	case meta.Component == "":
		return v1alpha1.MachinePhaseUnknown
	case !meta.Configured:
		return v1alpha1.MachinePhaseProvisioning
	case IsRunning(state):
		return v1alpha1.MachinePhaseReady
	default:
		return v1alpha1.MachinePhaseStopped
	}
}

// IsRunning reports whether the power state counts as powered on.
func IsRunning(state string) bool {
	return state == StateRunning || state == StateBlocked
}

// IsOff reports whether the power state is fully powered off.
func IsOff(state string) bool {
	return state == StateShutoff || state == StateCrashed
}
