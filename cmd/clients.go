package cmd

import (
	"context"
	"fmt"
	"io"

	"ecrmirror/pkg/auth"
	"ecrmirror/pkg/digest"
	"ecrmirror/pkg/ecr"
	"ecrmirror/pkg/registry"
	"ecrmirror/pkg/secrets"
	"ecrmirror/pkg/skopeo"
	"ecrmirror/pkg/transfer"

	"github.com/sirupsen/logrus"
)

const (
	engineSkopeo = "skopeo"
	engineCrane  = "crane"
)

// clients holds what both subcommands share.
type clients struct {
	ecr      *ecr.Client
	registry registry.Client
}

// newClients seeds the auth-file when a secret is configured, then builds the
// ECR and registry clients. Seeding happens before any registry operation.
func newClients(ctx context.Context) (*clients, error) {
	region := cfg.GetString(flagRegion)
	authFile := cfg.GetString(flagAuthFile)

	if name := cfg.GetString(flagAuthSecret); name != "" {
		getter, err := secrets.NewAWSGetter(ctx, region)
		if err != nil {
			return nil, failure(err)
		}
		if err := secrets.Seed(ctx, getter, name, authFile, log); err != nil {
			return nil, failure(err)
		}
	}

	rc, err := newRegistryClient(cfg.GetString(flagEngine), authFile)
	if err != nil {
		return nil, err
	}

	ecrClient, err := ecr.NewClient(ctx, region)
	if err != nil {
		return nil, failure(err)
	}

	return &clients{ecr: ecrClient, registry: rc}, nil
}

func newRegistryClient(engine, authFile string) (registry.Client, error) {
	switch engine {
	case engineSkopeo:
		runner := skopeo.NewExecRunner(cfg.GetString(flagSkopeo), log)
		return skopeo.NewClient(runner, skopeo.Options{AuthFile: authFile}, log), nil
	case engineCrane:
		return transfer.NewClient(authFile, 0, log), nil
	default:
		return nil, usageError(fmt.Errorf("unknown engine %q (valid: %s, %s)", engine, engineSkopeo, engineCrane))
	}
}

// Close releases the registry client; the skopeo engine holds a log writer.
func (c *clients) Close() {
	if closer, ok := c.registry.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (c *clients) broker() *auth.Broker {
	return auth.NewBroker(c.ecr, c.registry, nil, log)
}

func (c *clients) resolver() *digest.Resolver {
	return digest.NewResolver(c.ecr, c.registry, log.WithFields(logrus.Fields{"component": "resolver"}))
}
