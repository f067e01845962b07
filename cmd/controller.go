/*
Copyright © 2025 ECR Mirror menbiyagoral@gmail.com
*/
package cmd

import (
	"context"
	"fmt"

	"ecrmirror/pkg/controller"
	"ecrmirror/pkg/dispatch"
	"ecrmirror/pkg/planner"
	"ecrmirror/pkg/store"
	"ecrmirror/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ControllerOptions holds the arguments and flags of the controller command.
type ControllerOptions struct {
	Table         string
	Queue         string
	JobDefinition string
	// Repository and Tag select a single row keyed in the home registry.
	Repository string
	Tag        string

	DryRun          bool
	Strict          bool
	IncludePatterns []string
	ExcludePatterns []string
	PageSize        int32
	Endpoint        string
}

// Validate validates controller options and returns error if invalid.
func (opts *ControllerOptions) Validate() error {
	if opts.PageSize < 0 {
		return fmt.Errorf("invalid page size: %d", opts.PageSize)
	}
	return nil
}

func (opts *ControllerOptions) singleKey() bool {
	return opts.Repository != ""
}

func newControllerCmd() *cobra.Command {
	opts := &ControllerOptions{}
	cmd := &cobra.Command{
		Use:   "controller <table> <queue> <jobDefinition> [repository tag]",
		Short: "Plan mirrors from a DynamoDB table and submit Batch jobs",
		Long: `Read mirror mappings from a DynamoDB table and submit one AWS Batch job
per source with out of date destinations.

With repository and tag only the row whose source is
<account>.dkr.ecr.<region>.amazonaws.com/<repository>:<tag> is evaluated;
otherwise the whole table is scanned.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 3 && len(args) != 5 {
				return usageError(fmt.Errorf("expected 3 or 5 arguments, got %d", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Table, opts.Queue, opts.JobDefinition = args[0], args[1], args[2]
			if len(args) == 5 {
				opts.Repository, opts.Tag = args[3], args[4]
			}
			return runController(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "d", false, "Plan mirrors without submitting jobs")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Fail rows whose source digest cannot be resolved and exit non-zero")
	cmd.Flags().StringSliceVarP(&opts.IncludePatterns, "include", "i", nil, "Only evaluate sources matching these patterns (prefix or regex; if regex compiles, it's used)")
	cmd.Flags().StringSliceVarP(&opts.ExcludePatterns, "exclude", "e", nil, "Skip sources matching these patterns (prefix or regex; if regex compiles, it's used)")
	cmd.Flags().Int32Var(&opts.PageSize, "page-size", 0, "Items read per DynamoDB request (default: service maximum)")
	cmd.Flags().StringVar(&opts.Endpoint, "dynamodb-endpoint", "", "DynamoDB endpoint override")

	return cmd
}

func runController(ctx context.Context, opts *ControllerOptions) error {
	if err := opts.Validate(); err != nil {
		return usageError(fmt.Errorf("invalid options: %w", err))
	}

	c, err := newClients(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	region := cfg.GetString(flagRegion)

	st, err := store.NewStore(ctx, region, store.Options{
		Table:    opts.Table,
		PageSize: opts.PageSize,
		Endpoint: opts.Endpoint,
	})
	if err != nil {
		return failure(err)
	}

	rows := controller.Source(st.Scan)
	if opts.singleKey() {
		registryURL, err := c.ecr.RegistryURL(ctx)
		if err != nil {
			return failure(err)
		}
		key := fmt.Sprintf("%s/%s:%s", registryURL, opts.Repository, opts.Tag)
		log.WithFields(logrus.Fields{"source": key}).Info("Evaluating single mapping")

		rows = func(ctx context.Context, fn store.RowFunc) error {
			return st.Get(ctx, key, fn)
		}
	}

	dispatcher, err := dispatch.NewDispatcher(ctx, region, log)
	if err != nil {
		return failure(err)
	}

	driver := controller.NewDriver(
		planner.New(c.resolver(), log),
		dispatcher,
		controller.Options{
			Queue:         opts.Queue,
			JobDefinition: opts.JobDefinition,
			DryRun:        opts.DryRun,
			Strict:        opts.Strict,
			Filter:        utils.NewFilter(opts.IncludePatterns, opts.ExcludePatterns),
		},
		log,
	)

	summary, err := driver.Run(ctx, rows)
	if err != nil {
		return failure(err)
	}

	if opts.Strict && summary.Failed > 0 {
		return failure(fmt.Errorf("%d row(s) failed: %w", summary.Failed, summary.Err()))
	}

	return nil
}
