/*
Copyright © 2025 ECR Mirror menbiyagoral@gmail.com
*/
package cmd

import (
	"context"
	"fmt"

	"ecrmirror/pkg/executor"
	"ecrmirror/pkg/reference"

	"github.com/spf13/cobra"
)

// MirrorOptions holds the arguments of the mirror command.
type MirrorOptions struct {
	Source       reference.Reference
	Destinations []reference.Reference
}

// parseMirrorArgs takes the source followed by one or more destination
// arguments, each of which may hold a comma-separated list.
func parseMirrorArgs(args []string) (*MirrorOptions, error) {
	if len(args) < 2 {
		return nil, usageError(fmt.Errorf("expected <source> <dest1[,dest2,...]>, got %d argument(s)", len(args)))
	}

	source, err := reference.Parse(args[0])
	if err != nil {
		return nil, usageError(err)
	}

	destinations, err := reference.ParseList(args[1:]...)
	if err != nil {
		return nil, usageError(err)
	}
	if len(destinations) == 0 {
		return nil, usageError(fmt.Errorf("no destinations in %v", args[1:]))
	}

	return &MirrorOptions{Source: source, Destinations: destinations}, nil
}

func newMirrorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror <source> <dest1[,dest2,...]> [dest...]",
		Short: "Copy one image to every destination",
		Long: `Copy a source image to each destination in order.

Every private or public ECR registry involved is logged into once before the
first copy. The first failing copy stops the run and its exit code becomes the
exit code of this command.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 2 {
				return usageError(fmt.Errorf("expected at least 2 arguments, got %d", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseMirrorArgs(args)
			if err != nil {
				return err
			}
			return runMirror(cmd.Context(), opts)
		},
	}
}

func runMirror(ctx context.Context, opts *MirrorOptions) error {
	c, err := newClients(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	exec := executor.New(c.broker(), c.registry, log)
	if err := exec.Execute(ctx, opts.Source, opts.Destinations); err != nil {
		return failure(err)
	}

	log.Info("Mirror complete")
	return nil
}
