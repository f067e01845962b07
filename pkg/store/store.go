// Package store reads mirror mappings from a DynamoDB table.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecrmirror/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	SourceAttribute      = "Source"
	DestinationAttribute = "Destination"
)

var ErrInvalidRecord = errors.New("invalid mapping record")

// Record is one mapping row with its destinations normalized.
type Record struct {
	Source       string
	Destinations []string
}

// RowFunc receives each row in table order. A non-nil err means the row could
// not be decoded; rec is then partially filled. Returning an error stops the
// iteration and is returned from Scan or Get.
type RowFunc func(rec Record, err error) error

// API is the subset of the DynamoDB client used here.
type API interface {
	dynamodb.ScanAPIClient
	dynamodb.QueryAPIClient
}

type Options struct {
	Table string
	// PageSize bounds the items read per request; 0 leaves it to the service.
	PageSize int32
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

type Store struct {
	api  API
	opts Options
}

func NewStore(ctx context.Context, region string, opts Options) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*dynamodb.Options)
	if opts.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}

	return New(dynamodb.NewFromConfig(cfg, clientOptions...), opts), nil
}

func New(api API, opts Options) *Store {
	return &Store{api: api, opts: opts}
}

func (s *Store) limit() *int32 {
	if s.opts.PageSize > 0 {
		return aws.Int32(s.opts.PageSize)
	}
	return nil
}

// Scan visits every row of the table, following LastEvaluatedKey across pages.
func (s *Store) Scan(ctx context.Context, fn RowFunc) error {
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName: aws.String(s.opts.Table),
		Limit:     s.limit(),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan table %s: %w", s.opts.Table, err)
		}

		if err := visit(page.Items, fn); err != nil {
			return err
		}
	}

	return nil
}

// Get visits the rows whose Source key equals source.
func (s *Store) Get(ctx context.Context, source string, fn RowFunc) error {
	paginator := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(s.opts.Table),
		KeyConditionExpression: aws.String("#src = :src"),
		ExpressionAttributeNames: map[string]string{
			"#src": SourceAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":src": &types.AttributeValueMemberS{Value: source},
		},
		Limit: s.limit(),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to query table %s for %s: %w", s.opts.Table, source, err)
		}

		if err := visit(page.Items, fn); err != nil {
			return err
		}
	}

	return nil
}

func visit(items []map[string]types.AttributeValue, fn RowFunc) error {
	for _, item := range items {
		rec, err := Decode(item)
		if err := fn(rec, err); err != nil {
			return err
		}
	}
	return nil
}

// Decode converts an item into a Record. Destination may be a string set, a
// comma-separated string or a list of strings; all forms yield the same
// ordered, de-duplicated slice. A missing Destination yields no destinations.
// Source is kept exactly as stored since it names the dispatched job.
func Decode(item map[string]types.AttributeValue) (Record, error) {
	var rec Record

	src, ok := item[SourceAttribute].(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(src.Value) == "" {
		return rec, fmt.Errorf("%w: missing %s attribute", ErrInvalidRecord, SourceAttribute)
	}
	rec.Source = src.Value

	av, ok := item[DestinationAttribute]
	if !ok {
		return rec, nil
	}

	var raw []string
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		raw = strings.Split(v.Value, ",")
	case *types.AttributeValueMemberSS, *types.AttributeValueMemberL:
		if err := attributevalue.Unmarshal(v, &raw); err != nil {
			return rec, fmt.Errorf("%w: %s of %s: %w", ErrInvalidRecord, DestinationAttribute, rec.Source, err)
		}
	case *types.AttributeValueMemberNULL:
		return rec, nil
	default:
		return rec, fmt.Errorf("%w: unsupported %s type %T for %s", ErrInvalidRecord, DestinationAttribute, av, rec.Source)
	}

	rec.Destinations = normalize(raw)
	return rec, nil
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return utils.RemoveDuplicates(out)
}
