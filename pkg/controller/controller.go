// Package controller drives planning and dispatch over a table of mappings.
package controller

import (
	"context"
	"errors"
	"fmt"

	"ecrmirror/pkg/dispatch"
	"ecrmirror/pkg/planner"
	"ecrmirror/pkg/reference"
	"ecrmirror/pkg/store"
	"ecrmirror/pkg/utils"

	"github.com/sirupsen/logrus"
)

var ErrUnresolvedSource = errors.New("source digest could not be resolved")

type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusPlanned    Status = "planned"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Kind says which step decided a Skipped or Failed result.
type Kind string

const (
	KindNone       Kind = ""
	KindRecord     Kind = "record"
	KindParse      Kind = "parse"
	KindResolve    Kind = "resolve"
	KindUnresolved Kind = "unresolved"
	KindFiltered   Kind = "filtered"
	KindDispatch   Kind = "dispatch"
)

// Result is the outcome of a single row.
type Result struct {
	Source       string
	Status       Status
	Kind         Kind
	Err          error
	Destinations []string
	Job          *dispatch.Job
}

type Summary struct {
	Results []Result

	Skipped    int
	Planned    int
	Dispatched int
	Failed     int
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)

	switch r.Status {
	case StatusSkipped:
		s.Skipped++
	case StatusPlanned:
		s.Planned++
	case StatusDispatched:
		s.Dispatched++
	case StatusFailed:
		s.Failed++
	}
}

// Err joins the errors of every failed row.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", r.Source, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Source yields mapping rows; store.Store.Scan has this shape.
type Source func(ctx context.Context, fn store.RowFunc) error

type Planner interface {
	Plan(ctx context.Context, rule reference.Rule) (planner.Plan, error)
}

type Dispatcher interface {
	Submit(ctx context.Context, queue, definition, source string, destinations []string) (*dispatch.Job, error)
}

type Options struct {
	Queue         string
	JobDefinition string
	// DryRun plans every row but never submits a job.
	DryRun bool
	// Strict reports an unresolved source as a failure instead of a skip.
	Strict bool
	Filter *utils.Filter
}

type Driver struct {
	planner    Planner
	dispatcher Dispatcher
	opts       Options
	log        logrus.FieldLogger
}

func NewDriver(p Planner, d Dispatcher, opts Options, log logrus.FieldLogger) *Driver {
	return &Driver{planner: p, dispatcher: d, opts: opts, log: log}
}

// Run processes rows one at a time. A failing row is recorded and logged and
// the next row is processed; only a failure to read rows or a cancelled
// context ends the run early.
func (d *Driver) Run(ctx context.Context, rows Source) (*Summary, error) {
	summary := &Summary{}

	err := rows(ctx, func(rec store.Record, recErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := d.process(ctx, rec, recErr)
		d.report(result)
		summary.add(result)
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("failed to read mappings: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"dispatched": summary.Dispatched,
		"planned":    summary.Planned,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
	}).Info("Controller run complete")

	return summary, nil
}

func (d *Driver) process(ctx context.Context, rec store.Record, recErr error) Result {
	result := Result{Source: rec.Source}

	if recErr != nil {
		return failed(result, KindRecord, recErr)
	}

	if !d.opts.Filter.Allows(rec.Source) {
		result.Status, result.Kind = StatusSkipped, KindFiltered
		return result
	}

	rule, err := reference.NewRule(rec.Source, rec.Destinations)
	if err != nil {
		return failed(result, KindParse, err)
	}

	d.log.WithFields(logrus.Fields{"source": rec.Source}).Info("Evaluating mirror")

	plan, err := d.planner.Plan(ctx, rule)
	if err != nil {
		return failed(result, KindResolve, err)
	}

	if !plan.SourceResolved() {
		if d.opts.Strict {
			return failed(result, KindUnresolved, ErrUnresolvedSource)
		}
		result.Status, result.Kind = StatusSkipped, KindUnresolved
		return result
	}

	result.Destinations = reference.Strings(plan.Destinations)
	if len(result.Destinations) == 0 {
		result.Status = StatusSkipped
		return result
	}

	if d.opts.DryRun {
		result.Status = StatusPlanned
		return result
	}

	job, err := d.dispatcher.Submit(ctx, d.opts.Queue, d.opts.JobDefinition, rec.Source, result.Destinations)
	if err != nil {
		return failed(result, KindDispatch, err)
	}

	result.Status, result.Job = StatusDispatched, job
	return result
}

func failed(r Result, kind Kind, err error) Result {
	r.Status, r.Kind, r.Err = StatusFailed, kind, err
	return r
}

func (d *Driver) report(r Result) {
	log := d.log.WithFields(logrus.Fields{"source": r.Source})

	switch {
	case r.Status == StatusFailed:
		log.WithFields(logrus.Fields{"kind": string(r.Kind), "error": r.Err}).Error("Mirror evaluation failed")
	case r.Kind == KindFiltered:
		log.Debug("Filtered out")
	case r.Kind == KindUnresolved:
		log.Warn("Source digest unresolved, no mirroring required")
	case r.Status == StatusSkipped:
		log.Info("No mirroring required")
	case r.Status == StatusPlanned:
		log.WithFields(logrus.Fields{"dest": r.Destinations}).Info("Mirror required (dry run)")
	}
}
