// Package registry defines the narrow set of registry operations the mirror
// needs, independent of whether they run through an external tool or in process.
package registry

import (
	"context"
	"errors"
	"fmt"

	"ecrmirror/pkg/reference"
)

const (
	// DefaultAuthFile is the credential bundle every login, inspect and copy references explicitly.
	DefaultAuthFile = "/tmp/auth.json"

	// CodeUsage is returned for malformed arguments.
	CodeUsage = 1
	// CodeFailure is used when a failure carries no process exit code (API calls, decoding).
	CodeFailure = 2
)

// Client performs registry operations against a shared auth-file.
type Client interface {
	// Login stores credentials for host. The password must never reach argv or logs.
	Login(ctx context.Context, host, username, password string) error
	// Digest returns the manifest digest of ref.
	Digest(ctx context.Context, ref reference.Reference) (reference.Digest, error)
	// Copy copies src to dst including every manifest of an index.
	Copy(ctx context.Context, src, dst reference.Reference) error
}

// ExitError carries the exit code of a failed operation.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps err to a process exit code: 0 for nil, the carried code for
// anything wrapping an exit coder, CodeFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return CodeFailure
}

func (e *ExitError) ExitCode() int {
	return e.Code
}
