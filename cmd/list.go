/*
Copyright © 2025 ECR Mirror menbiyagoral@gmail.com
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"ecrmirror/pkg/store"
	"ecrmirror/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ListOptions holds flag values for the list command.
type ListOptions struct {
	Table           string
	Format          string
	IncludePatterns []string
	ExcludePatterns []string
	PageSize        int32
	Endpoint        string
}

// Validate validates list command options and returns error if invalid.
func (opts *ListOptions) Validate() error {
	validFormats := map[string]bool{"table": true, "json": true, "yaml": true}
	if !validFormats[opts.Format] {
		return fmt.Errorf("invalid format: %s (valid: table, json, yaml)", opts.Format)
	}
	return nil
}

// newListCmd constructs the list command with its own options.
func newListCmd() *cobra.Command {
	opts := &ListOptions{Format: "table"}
	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List mirror mappings from a DynamoDB table",
		Long: `List every source and its destinations as stored in the mapping table.

Destinations are shown normalized, whether the row stores them as a string
set, a list or a comma-separated string. Rows without a usable Source are
counted as invalid.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError(fmt.Errorf("expected 1 argument, got %d", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Table = args[0]
			return runList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringSliceVarP(&opts.IncludePatterns, "include", "i", nil, "Only include sources matching these patterns (prefix or regex; if regex compiles, it's used)")
	cmd.Flags().StringSliceVarP(&opts.ExcludePatterns, "exclude", "e", nil, "Exclude sources matching these patterns (prefix or regex; if regex compiles, it's used)")
	cmd.Flags().Int32Var(&opts.PageSize, "page-size", 0, "Items read per DynamoDB request (default: service maximum)")
	cmd.Flags().StringVar(&opts.Endpoint, "dynamodb-endpoint", "", "DynamoDB endpoint override")

	return cmd
}

// runList executes the list command with the given options.
func runList(ctx context.Context, out io.Writer, opts *ListOptions) error {
	if err := opts.Validate(); err != nil {
		return usageError(fmt.Errorf("invalid options: %w", err))
	}

	st, err := store.NewStore(ctx, cfg.GetString(flagRegion), store.Options{
		Table:    opts.Table,
		PageSize: opts.PageSize,
		Endpoint: opts.Endpoint,
	})
	if err != nil {
		return failure(err)
	}

	list, err := collectMappings(ctx, st.Scan, utils.NewFilter(opts.IncludePatterns, opts.ExcludePatterns))
	if err != nil {
		return failure(err)
	}

	return failure(printMappings(out, opts.Format, list))
}

// Mapping is one row of the table as printed.
type Mapping struct {
	Source       string   `json:"source" yaml:"source"`
	Destinations []string `json:"destinations" yaml:"destinations"`
}

// MappingList represents the structure for JSON and YAML output.
type MappingList struct {
	Mappings []Mapping `json:"mappings" yaml:"mappings"`
	Total    int       `json:"total" yaml:"total"`
	Invalid  int       `json:"invalid" yaml:"invalid"`
}

func collectMappings(ctx context.Context, rows func(context.Context, store.RowFunc) error, filter *utils.Filter) (*MappingList, error) {
	list := &MappingList{}

	err := rows(ctx, func(rec store.Record, err error) error {
		if err != nil {
			log.WithFields(logrus.Fields{"error": err}).Warn("Invalid mapping row")
			list.Invalid++
			return nil
		}
		if !filter.Allows(rec.Source) {
			return nil
		}
		list.Mappings = append(list.Mappings, Mapping{Source: rec.Source, Destinations: rec.Destinations})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(list.Mappings, func(i, j int) bool { return list.Mappings[i].Source < list.Mappings[j].Source })
	list.Total = len(list.Mappings)
	return list, nil
}

func printMappings(out io.Writer, format string, list *MappingList) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = fmt.Fprint(out, string(data))
		return err
	default:
		printTable(out, list)
		return nil
	}
}

// printTable prints mappings in a simple table format.
func printTable(out io.Writer, list *MappingList) {
	fmt.Fprintln(out, "MIRROR MAPPINGS:")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for i, m := range list.Mappings {
		fmt.Fprintf(out, "%d. %s\n", i+1, m.Source)
		for _, dest := range m.Destinations {
			fmt.Fprintf(out, "   -> %s\n", dest)
		}
	}
	fmt.Fprintf(out, "\nTotal: %d mappings", list.Total)
	if list.Invalid > 0 {
		fmt.Fprintf(out, " (%d invalid rows)", list.Invalid)
	}
	fmt.Fprintln(out)
}
