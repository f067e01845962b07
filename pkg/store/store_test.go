package store_test

import (
	"context"
	"errors"
	"testing"

	"ecrmirror/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dynamoMock struct {
	ScanFn  func(ctx context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	QueryFn func(ctx context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
}

func (m *dynamoMock) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, in)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *dynamoMock) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, in)
	}
	return &dynamodb.QueryOutput{}, nil
}

func item(source string, dest types.AttributeValue) map[string]types.AttributeValue {
	it := map[string]types.AttributeValue{
		"Source": &types.AttributeValueMemberS{Value: source},
	}
	if dest != nil {
		it["Destination"] = dest
	}
	return it
}

type collected struct {
	records []store.Record
	errs    []error
}

func (c *collected) add(rec store.Record, err error) error {
	if err != nil {
		c.errs = append(c.errs, err)
		return nil
	}
	c.records = append(c.records, rec)
	return nil
}

func TestDecode_DestinationFormsAreEquivalent(t *testing.T) {
	t.Parallel()

	want := []string{"a.io/app:1", "b.io/app:1"}

	forms := map[string]types.AttributeValue{
		"string set":   &types.AttributeValueMemberSS{Value: []string{"a.io/app:1", "b.io/app:1"}},
		"comma string": &types.AttributeValueMemberS{Value: "a.io/app:1, b.io/app:1,,a.io/app:1"},
		"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "a.io/app:1"},
			&types.AttributeValueMemberS{Value: "b.io/app:1"},
		}},
	}

	for name, av := range forms {
		rec, err := store.Decode(item("src.io/app:1", av))
		require.NoError(t, err, name)
		assert.Equal(t, "src.io/app:1", rec.Source, name)
		assert.Equal(t, want, rec.Destinations, name)
	}
}

func TestDecode_SourceKeptAsStored(t *testing.T) {
	t.Parallel()

	rec, err := store.Decode(item("quay.io/org/app:1 ", &types.AttributeValueMemberS{Value: " a.io/app:1 "}))
	require.NoError(t, err)

	assert.Equal(t, "quay.io/org/app:1 ", rec.Source)
	assert.Equal(t, []string{"a.io/app:1"}, rec.Destinations)
}

func TestDecode_MissingDestination(t *testing.T) {
	t.Parallel()

	rec, err := store.Decode(item("src.io/app:1", nil))
	require.NoError(t, err)
	assert.Empty(t, rec.Destinations)
}

func TestDecode_InvalidRecords(t *testing.T) {
	t.Parallel()

	_, err := store.Decode(map[string]types.AttributeValue{
		"Destination": &types.AttributeValueMemberS{Value: "a.io/app:1"},
	})
	require.ErrorIs(t, err, store.ErrInvalidRecord)

	_, err = store.Decode(map[string]types.AttributeValue{
		"Source": &types.AttributeValueMemberN{Value: "12"},
	})
	require.ErrorIs(t, err, store.ErrInvalidRecord)

	rec, err := store.Decode(item("src.io/app:1", &types.AttributeValueMemberN{Value: "1"}))
	require.ErrorIs(t, err, store.ErrInvalidRecord)
	assert.Equal(t, "src.io/app:1", rec.Source)
}

func TestScan_FollowsPagesAndReportsBadRows(t *testing.T) {
	t.Parallel()

	var inputs []*dynamodb.ScanInput
	mock := &dynamoMock{ScanFn: func(_ context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		inputs = append(inputs, in)
		if in.ExclusiveStartKey == nil {
			return &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{
					item("src.io/one:1", &types.AttributeValueMemberS{Value: "a.io/one:1"}),
					{"Destination": &types.AttributeValueMemberS{Value: "a.io/x:1"}},
				},
				LastEvaluatedKey: map[string]types.AttributeValue{
					"Source": &types.AttributeValueMemberS{Value: "src.io/one:1"},
				},
			}, nil
		}
		return &dynamodb.ScanOutput{
			Items: []map[string]types.AttributeValue{
				item("src.io/two:1", &types.AttributeValueMemberSS{Value: []string{"a.io/two:1"}}),
			},
		}, nil
	}}

	var got collected
	err := store.New(mock, store.Options{Table: "mirrors", PageSize: 2}).Scan(context.Background(), got.add)
	require.NoError(t, err)

	require.Len(t, inputs, 2)
	assert.Equal(t, "mirrors", aws.ToString(inputs[0].TableName))
	assert.Equal(t, int32(2), aws.ToInt32(inputs[0].Limit))

	require.Len(t, got.records, 2)
	assert.Equal(t, "src.io/one:1", got.records[0].Source)
	assert.Equal(t, "src.io/two:1", got.records[1].Source)
	require.Len(t, got.errs, 1)
	assert.ErrorIs(t, got.errs[0], store.ErrInvalidRecord)
}

func TestScan_StopsWhenCallbackFails(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	mock := &dynamoMock{ScanFn: func(context.Context, *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
			item("src.io/one:1", nil),
			item("src.io/two:1", nil),
		}}, nil
	}}

	calls := 0
	err := store.New(mock, store.Options{Table: "mirrors"}).Scan(context.Background(), func(store.Record, error) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestScan_APIError(t *testing.T) {
	t.Parallel()

	denied := errors.New("AccessDeniedException")
	mock := &dynamoMock{ScanFn: func(context.Context, *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		return nil, denied
	}}

	err := store.New(mock, store.Options{Table: "mirrors"}).Scan(context.Background(), (&collected{}).add)
	require.ErrorIs(t, err, denied)
}

func TestGet_QueriesSingleKey(t *testing.T) {
	t.Parallel()

	var input *dynamodb.QueryInput
	mock := &dynamoMock{QueryFn: func(_ context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		input = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			item("111111111111.dkr.ecr.eu-west-1.amazonaws.com/app:1",
				&types.AttributeValueMemberS{Value: "b.io/app:1"}),
		}}, nil
	}}

	var got collected
	source := "111111111111.dkr.ecr.eu-west-1.amazonaws.com/app:1"
	err := store.New(mock, store.Options{Table: "mirrors"}).Get(context.Background(), source, got.add)
	require.NoError(t, err)

	require.NotNil(t, input)
	assert.Equal(t, "mirrors", aws.ToString(input.TableName))
	assert.Equal(t, "#src = :src", aws.ToString(input.KeyConditionExpression))
	assert.Equal(t, "Source", input.ExpressionAttributeNames["#src"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: source}, input.ExpressionAttributeValues[":src"])
	assert.Nil(t, input.Limit)

	require.Len(t, got.records, 1)
	assert.Equal(t, []string{"b.io/app:1"}, got.records[0].Destinations)
}
