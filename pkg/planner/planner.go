// Package planner decides which destinations of a mirror rule need a copy.
package planner

import (
	"context"
	"fmt"

	"ecrmirror/pkg/reference"

	"github.com/sirupsen/logrus"
)

// DigestResolver returns the digest of a reference; "" means unresolved.
type DigestResolver interface {
	Resolve(ctx context.Context, ref reference.Reference) (reference.Digest, error)
}

// Plan is the outcome of comparing a rule's destinations with its source.
type Plan struct {
	SourceDigest reference.Digest
	// Destinations still need a copy, in rule order.
	Destinations []reference.Reference
	// UpToDate already carry the source digest.
	UpToDate []reference.Reference
}

// SourceResolved reports whether the source digest could be resolved at all.
func (p Plan) SourceResolved() bool {
	return p.SourceDigest.Resolved()
}

type Planner struct {
	resolver DigestResolver
	log      logrus.FieldLogger
}

func New(resolver DigestResolver, log logrus.FieldLogger) *Planner {
	return &Planner{resolver: resolver, log: log}
}

// Plan resolves the source first. With an unresolved source nothing can be
// compared, so the plan is empty and no destination is looked up. Otherwise a
// destination is dropped only when its digest equals the source digest.
func (p *Planner) Plan(ctx context.Context, rule reference.Rule) (Plan, error) {
	sourceDigest, err := p.resolver.Resolve(ctx, rule.Source)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to resolve source %s: %w", rule.Source, err)
	}

	plan := Plan{SourceDigest: sourceDigest}
	if !sourceDigest.Resolved() {
		return plan, nil
	}

	for _, dest := range rule.Destinations {
		destDigest, err := p.resolver.Resolve(ctx, dest)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to resolve destination %s: %w", dest, err)
		}

		if destDigest.Equal(sourceDigest) {
			p.log.WithFields(logrus.Fields{
				"source": rule.Source.String(),
				"target": dest.String(),
				"digest": sourceDigest.String(),
			}).Info("Unneeded, destination up to date")
			plan.UpToDate = append(plan.UpToDate, dest)
			continue
		}

		plan.Destinations = append(plan.Destinations, dest)
	}

	return plan, nil
}
