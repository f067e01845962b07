package cmd

import (
	"errors"

	"ecrmirror/pkg/registry"
)

// usageError marks bad arguments, flags or config; the process exits with 1.
func usageError(err error) error {
	return &registry.ExitError{Code: registry.CodeUsage, Err: err}
}

// failure marks an API or credential failure that carries no tool exit code.
func failure(err error) error {
	if err == nil {
		return nil
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return err
	}
	return &registry.ExitError{Code: registry.CodeFailure, Err: err}
}

// exitCode maps an error from the command tree to a process exit code.
// Errors raised by cobra itself (unknown command, wrong arguments) carry no
// code and count as usage errors.
func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return registry.CodeUsage
}
