// Package executor performs the copies of a dispatched mirror job.
package executor

import (
	"context"
	"fmt"

	"ecrmirror/pkg/reference"

	"github.com/sirupsen/logrus"
)

// Authenticator logs into registry hosts, once per host.
type Authenticator interface {
	LoginAll(ctx context.Context, hosts []string) error
}

// Copier copies one image reference to another.
type Copier interface {
	Copy(ctx context.Context, src, dst reference.Reference) error
}

// CopyError is a failed copy to Target. Its exit code is the copier's.
type CopyError struct {
	Source reference.Reference
	Target reference.Reference
	Err    error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("failed to copy %s to %s: %v", e.Source, e.Target, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

type Executor struct {
	auth   Authenticator
	copier Copier
	log    logrus.FieldLogger
}

func New(auth Authenticator, copier Copier, log logrus.FieldLogger) *Executor {
	return &Executor{auth: auth, copier: copier, log: log}
}

// LoginHosts returns the distinct ECR hosts among source and destinations
// that need credentials, in first-seen order.
func LoginHosts(source reference.Reference, destinations []reference.Reference) []string {
	var needsLogin []reference.Reference
	for _, ref := range append([]reference.Reference{source}, destinations...) {
		if ref.RequiresLogin() {
			needsLogin = append(needsLogin, ref)
		}
	}
	return reference.Hosts(needsLogin...)
}

// Execute logs into every ECR host involved, then copies source to each
// destination in order. A login failure aborts before any copy; a copy
// failure stops the remaining copies. registry.ExitCode on the returned error
// yields the exit code to propagate.
func (e *Executor) Execute(ctx context.Context, source reference.Reference, destinations []reference.Reference) error {
	if err := e.auth.LoginAll(ctx, LoginHosts(source, destinations)); err != nil {
		return err
	}

	for _, dest := range destinations {
		log := e.log.WithFields(logrus.Fields{
			"source": source.String(),
			"target": dest.String(),
		})

		log.Info("Copying image")
		if err := e.copier.Copy(ctx, source, dest); err != nil {
			log.WithFields(logrus.Fields{"error": err}).Error("Copy failed")
			return &CopyError{Source: source, Target: dest, Err: err}
		}
		log.Info("Copied image")
	}

	return nil
}
