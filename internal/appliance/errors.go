package appliance

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrNotFound means the requested machine does not exist for this kind.
	ErrNotFound = errors.New("not found")

	// ErrInvalidNetwork means the requested network does not exist.
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrArtifact means the image artifact could not be located or read.
	ErrArtifact = errors.New("artifact error")

	// ErrPlatform means a platform operation failed.
	ErrPlatform = errors.New("platform failure")
)

// Error is a workflow failure tagged with its kind.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Msg is the user-facing message. Empty means Err's message is used
	// unchanged.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.Error()
	}
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func notFound(noun, name string) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("No %s named %s found", noun, name)}
}

func invalidNetwork(name string) error {
	return &Error{Kind: ErrInvalidNetwork, Msg: fmt.Sprintf("No such network named %s", name)}
}

func artifactError(msg string, err error) error {
	return &Error{Kind: ErrArtifact, Msg: msg, Err: err}
}

func platformError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrPlatform, Err: err}
}
