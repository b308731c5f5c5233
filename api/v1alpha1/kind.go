package v1alpha1

import (
	"fmt"
	"strings"
)

// Kind identifies which appliance a request or machine concerns.
//
// A kind determines the image naming convention, the metadata tag stamped on
// machines and the task-name suffix used by the dispatch layer. These three
// values must stay in lockstep, so they are only exposed through methods.
type Kind string

const (
	// KindServer is the Avamar Virtual Edition backup server.
	KindServer Kind = "server"

	// KindNDMP is the Avamar NDMP accelerator.
	KindNDMP Kind = "ndmp"
)

// Kinds returns every supported appliance kind.
func Kinds() []Kind {
	return []Kind{KindServer, KindNDMP}
}

// Tag returns the metadata component tag identifying machines of this kind.
func (k Kind) Tag() string {
	switch k {
	case KindServer:
		return "Avamar"
	case KindNDMP:
		return "AvamarNDMP"
	default:
		return ""
	}
}

// ImagePrefix returns the prefix of image artifact names for this kind.
func (k Kind) ImagePrefix() string {
	switch k {
	case KindServer:
		return "AVE"
	case KindNDMP:
		return "NDMP"
	default:
		return ""
	}
}

// TaskSuffix returns the suffix appended to task names for this kind.
func (k Kind) TaskSuffix() string {
	return string(k)
}

// Noun returns the human name used in user-facing messages.
func (k Kind) Noun() string {
	switch k {
	case KindNDMP:
		return "avamar ndmp accelerator"
	default:
		return "avamar"
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindServer || k == KindNDMP
}

// ParseKind accepts a task suffix ("server", "ndmp") or a metadata tag
// ("Avamar", "AvamarNDMP") and returns the matching Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(s, k.TaskSuffix()) || s == k.Tag() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown appliance kind %q (expected one of: server, ndmp)", s)
}
