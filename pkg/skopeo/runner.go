package skopeo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"ecrmirror/pkg/registry"
)

// Runner executes the skopeo binary.
type Runner interface {
	// Run executes the tool with args and returns its stdout. stdin may be nil.
	Run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error)
}

// ExecRunner runs a local binary, streaming stderr to Stderr.
type ExecRunner struct {
	Binary string
	Stderr io.Writer

	closer io.Closer
}

// Close releases the log writer set up by NewExecRunner. The runner must not
// be used afterwards.
func (r *ExecRunner) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *ExecRunner) Run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	var stdout bytes.Buffer

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = r.Stderr
	// an empty reader keeps the tool from ever waiting on the terminal
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.Stdin = stdin

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return stdout.Bytes(), &registry.ExitError{
			Code: exitErr.ExitCode(),
			Err:  fmt.Errorf("%s %s: %w", r.Binary, strings.Join(args, " "), err),
		}
	}

	return stdout.Bytes(), &registry.ExitError{
		Code: registry.CodeFailure,
		Err:  fmt.Errorf("failed to run %s: %w", r.Binary, err),
	}
}
