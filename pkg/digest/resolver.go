// Package digest resolves content digests for image references.
package digest

import (
	"context"

	"ecrmirror/pkg/reference"

	"github.com/sirupsen/logrus"
)

// ImageDescriber looks up digests through the private ECR API.
type ImageDescriber interface {
	ImageDigest(ctx context.Context, ref reference.Reference) (reference.Digest, error)
}

// Inspector looks up digests through a generic registry client.
type Inspector interface {
	Digest(ctx context.Context, ref reference.Reference) (reference.Digest, error)
}

// Resolver picks the ECR API for private ECR references and the generic
// inspector for everything else.
type Resolver struct {
	ecr       ImageDescriber
	inspector Inspector
	log       logrus.FieldLogger
}

func NewResolver(ecr ImageDescriber, inspector Inspector, log logrus.FieldLogger) *Resolver {
	return &Resolver{ecr: ecr, inspector: inspector, log: log}
}

// Resolve returns the digest of ref. An unresolved digest is not an error:
// missing images and inspect failures both come back as "". Only private ECR
// API failures other than not-found are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, ref reference.Reference) (reference.Digest, error) {
	log := r.log.WithFields(logrus.Fields{"ref": ref.String()})

	if ref.IsPrivate() {
		d, err := r.ecr.ImageDigest(ctx, ref)
		if err != nil {
			return "", err
		}
		log.WithFields(logrus.Fields{"digest": d.String()}).Debug("Resolved digest via ECR API")
		return d, nil
	}

	d, err := r.inspector.Digest(ctx, ref)
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Debug("Inspect failed, treating digest as unresolved")
		return "", nil
	}
	if !d.Resolved() {
		log.WithFields(logrus.Fields{"output": d.String()}).Debug("Inspect returned no usable digest")
		return "", nil
	}

	log.WithFields(logrus.Fields{"digest": d.String()}).Debug("Resolved digest via inspect")
	return d, nil
}
