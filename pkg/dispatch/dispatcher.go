// Package dispatch submits mirror jobs to AWS Batch.
package dispatch

import (
	"context"
	"crypto/sha1" //nolint:gosec // job names only need to be stable, not secure
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/sirupsen/logrus"
)

const (
	ParamSource = "source"
	ParamDest   = "dest"
)

var ErrDispatch = errors.New("job submission failed")

// Error is returned when Batch rejects a job.
type Error struct {
	Source string
	Queue  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to submit job for %s to queue %s: %v", e.Source, e.Queue, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrDispatch, e.Err} }

// BatchAPI is the subset of the Batch client used here.
type BatchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
}

// Job identifies a submitted Batch job.
type Job struct {
	ID         string
	Name       string
	ARN        string
	Queue      string
	Definition string
	Parameters map[string]string
}

type Dispatcher struct {
	api BatchAPI
	log logrus.FieldLogger
}

func NewDispatcher(ctx context.Context, region string, log logrus.FieldLogger) (*Dispatcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return New(batch.NewFromConfig(cfg), log), nil
}

func New(api BatchAPI, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{api: api, log: log}
}

// JobName is the hex SHA-1 of the source reference. Identical sources always
// produce identical names.
func JobName(source string) string {
	sum := sha1.Sum([]byte(source)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Parameters builds the job parameters: the source and the destinations
// joined by commas in order.
func Parameters(source string, destinations []string) map[string]string {
	return map[string]string{
		ParamSource: source,
		ParamDest:   strings.Join(destinations, ","),
	}
}

// Submit enqueues one job for source. Submission is not idempotent; a rerun
// enqueues a new job with the same name.
func (d *Dispatcher) Submit(ctx context.Context, queue, definition, source string, destinations []string) (*Job, error) {
	name := JobName(source)
	params := Parameters(source, destinations)

	out, err := d.api.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(name),
		JobQueue:      aws.String(queue),
		JobDefinition: aws.String(definition),
		Parameters:    params,
	})
	if err != nil {
		return nil, &Error{Source: source, Queue: queue, Err: err}
	}

	job := &Job{
		ID:         aws.ToString(out.JobId),
		Name:       name,
		ARN:        aws.ToString(out.JobArn),
		Queue:      queue,
		Definition: definition,
		Parameters: params,
	}

	d.log.WithFields(logrus.Fields{
		"job":    job.Name,
		"jobId":  job.ID,
		"queue":  queue,
		"source": source,
		"dest":   params[ParamDest],
	}).Info("Submitted mirror job")

	return job, nil
}
