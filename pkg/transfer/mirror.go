// Package transfer implements registry.Client in process with go-containerregistry,
// so no external tool needs to be installed inside the job image.
package transfer

import (
	"context"
	"fmt"
	"time"

	"ecrmirror/pkg/reference"
	"ecrmirror/pkg/registry"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sirupsen/logrus"
)

const defaultRetries = 3

// Client copies images directly between registries. Credentials come from the
// auth-file written by Login.
type Client struct {
	authFile string
	retries  int
	log      logrus.FieldLogger
}

func NewClient(authFile string, retries int, log logrus.FieldLogger) *Client {
	if authFile == "" {
		authFile = registry.DefaultAuthFile
	}
	if retries <= 0 {
		retries = defaultRetries
	}
	return &Client{authFile: authFile, retries: retries, log: log}
}

// Login records the credentials for host in the auth-file.
func (c *Client) Login(_ context.Context, host, username, password string) error {
	if err := storeCredentials(c.authFile, host, username, password); err != nil {
		return &registry.ExitError{Code: registry.CodeFailure, Err: fmt.Errorf("failed to login to %s: %w", host, err)}
	}
	c.log.WithFields(logrus.Fields{"host": host}).Debug("Stored registry credentials")
	return nil
}

// Digest returns the digest of the manifest (or index) ref points at.
func (c *Client) Digest(ctx context.Context, ref reference.Reference) (reference.Digest, error) {
	d, err := crane.Digest(ref.String(), c.options(ctx)...)
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", ref, err)
	}
	return reference.Digest(d), nil
}

// Copy copies src to dst registry-to-registry. Manifest lists are preserved.
func (c *Client) Copy(ctx context.Context, src, dst reference.Reference) error {
	if err := crane.Copy(src.String(), dst.String(), c.options(ctx)...); err != nil {
		return &registry.ExitError{Code: registry.CodeFailure, Err: fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)}
	}
	return nil
}

func (c *Client) options(ctx context.Context) []crane.Option {
	return []crane.Option{
		crane.WithContext(ctx),
		crane.WithAuthFromKeychain(fileKeychain{path: c.authFile}),
		func(o *crane.Options) {
			o.Remote = append(o.Remote, remote.WithRetryBackoff(remote.Backoff{
				Duration: time.Second,
				Factor:   2.0,
				Jitter:   0.1,
				Steps:    c.retries,
			}))
		},
	}
}
