// Package skopeo implements registry.Client by shelling out to skopeo.
package skopeo

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ecrmirror/pkg/reference"
	"ecrmirror/pkg/registry"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBinary         = "skopeo"
	DefaultCommandTimeout = 10 * time.Second
	DefaultInspectRetries = 5
	DefaultCopyRetries    = 3

	// LoginUsername is the fixed user ECR tokens are issued for.
	LoginUsername = "AWS"

	transport = "docker://"
)

// Options tune the skopeo invocations.
type Options struct {
	AuthFile       string
	CommandTimeout time.Duration
	InspectRetries int
	CopyRetries    int
}

// Client runs skopeo login/inspect/copy against a shared auth-file.
type Client struct {
	runner Runner
	opts   Options
	log    logrus.FieldLogger
}

// NewClient builds a skopeo client. Zero options fall back to the defaults.
func NewClient(runner Runner, opts Options, log logrus.FieldLogger) *Client {
	if opts.AuthFile == "" {
		opts.AuthFile = registry.DefaultAuthFile
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.InspectRetries == 0 {
		opts.InspectRetries = DefaultInspectRetries
	}
	if opts.CopyRetries == 0 {
		opts.CopyRetries = DefaultCopyRetries
	}

	return &Client{runner: runner, opts: opts, log: log}
}

// Login runs `skopeo login` with the password piped on stdin.
func (c *Client) Login(ctx context.Context, host, username, password string) error {
	if username == "" {
		username = LoginUsername
	}

	_, err := c.runner.Run(ctx, strings.NewReader(password),
		"login",
		"--authfile", c.opts.AuthFile,
		"-u", username,
		"--password-stdin",
		host,
	)
	if err != nil {
		return fmt.Errorf("failed to login to %s: %w", host, err)
	}

	c.log.WithFields(logrus.Fields{"host": host}).Debug("Logged in")
	return nil
}

// Digest runs `skopeo inspect` and returns the normalized digest it prints.
func (c *Client) Digest(ctx context.Context, ref reference.Reference) (reference.Digest, error) {
	out, err := c.runner.Run(ctx, nil,
		"--command-timeout", c.opts.CommandTimeout.String(),
		"inspect",
		"--authfile", c.opts.AuthFile,
		"--retry-times", strconv.Itoa(c.opts.InspectRetries),
		"--format", "{{ .Digest }}",
		transport+ref.String(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", ref, err)
	}

	return reference.NormalizeDigest(string(out)), nil
}

// Copy runs `skopeo copy --all` from src to dst.
func (c *Client) Copy(ctx context.Context, src, dst reference.Reference) error {
	_, err := c.runner.Run(ctx, nil,
		"copy",
		"--all",
		"--retry-times", strconv.Itoa(c.opts.CopyRetries),
		"--authfile", c.opts.AuthFile,
		transport+src.String(),
		transport+dst.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Close closes the runner when it holds resources, such as an ExecRunner's log writer.
func (c *Client) Close() error {
	if closer, ok := c.runner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewExecRunner returns a Runner for binary whose stderr is logged line by line.
// Close it when done to stop the log writer.
func NewExecRunner(binary string, log *logrus.Logger) *ExecRunner {
	if binary == "" {
		binary = DefaultBinary
	}
	if log == nil {
		return &ExecRunner{Binary: binary, Stderr: io.Discard}
	}
	w := log.WriterLevel(logrus.InfoLevel)
	return &ExecRunner{Binary: binary, Stderr: w, closer: w}
}
