package planner_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ecrmirror/pkg/planner"
	"ecrmirror/pkg/reference"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sourceDigest = reference.Digest(strings.Repeat("d1", 32))
	otherDigest  = reference.Digest(strings.Repeat("e2", 32))

	errThrottled = errors.New("throttled")
)

// fakeResolver serves digests from a map and records lookup order.
type fakeResolver struct {
	digests map[string]reference.Digest
	errs    map[string]error
	calls   []string
}

func (f *fakeResolver) Resolve(_ context.Context, ref reference.Reference) (reference.Digest, error) {
	f.calls = append(f.calls, ref.String())
	return f.digests[ref.String()], f.errs[ref.String()]
}

func newPlanner(resolver planner.DigestResolver) *planner.Planner {
	logger, _ := test.NewNullLogger()
	return planner.New(resolver, logger)
}

func rule(t *testing.T, source string, destinations ...string) reference.Rule {
	t.Helper()

	r, err := reference.NewRule(source, destinations)
	require.NoError(t, err)
	return r
}

func TestPlan_DropsUpToDateDestinations(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{digests: map[string]reference.Digest{
		"src.io/app:1": sourceDigest,
		"a.io/app:1":   sourceDigest,
		"b.io/app:1":   otherDigest,
	}}

	plan, err := newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1", "a.io/app:1", "b.io/app:1"))
	require.NoError(t, err)

	assert.True(t, plan.SourceResolved())
	assert.Equal(t, []string{"b.io/app:1"}, reference.Strings(plan.Destinations))
	assert.Equal(t, []string{"a.io/app:1"}, reference.Strings(plan.UpToDate))
	assert.Equal(t, []string{"src.io/app:1", "a.io/app:1", "b.io/app:1"}, resolver.calls, "source resolves before destinations")
}

func TestPlan_UnresolvedSourceSkipsEverything(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{digests: map[string]reference.Digest{"a.io/app:1": sourceDigest}}

	plan, err := newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1", "a.io/app:1", "b.io/app:1"))
	require.NoError(t, err)

	assert.False(t, plan.SourceResolved())
	assert.Empty(t, plan.Destinations)
	assert.Equal(t, []string{"src.io/app:1"}, resolver.calls, "no destination is looked up")
}

func TestPlan_UnresolvedDestinationIsKept(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{digests: map[string]reference.Digest{
		"src.io/app:1": sourceDigest,
		"c.io/app:1":   sourceDigest,
		"d.io/app:1":   "sha256:short",
	}}

	plan, err := newPlanner(resolver).Plan(context.Background(),
		rule(t, "src.io/app:1", "a.io/app:1", "c.io/app:1", "d.io/app:1", "b.io/app:1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.io/app:1", "d.io/app:1", "b.io/app:1"}, reference.Strings(plan.Destinations))
}

func TestPlan_DigestComparisonIsCaseSensitive(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{digests: map[string]reference.Digest{
		"src.io/app:1": reference.Digest("sha256:" + strings.Repeat("ab", 32)),
		"a.io/app:1":   reference.Digest("sha256:" + strings.Repeat("AB", 32)),
	}}

	plan, err := newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1", "a.io/app:1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.io/app:1"}, reference.Strings(plan.Destinations))
}

func TestPlan_NoDestinations(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{digests: map[string]reference.Digest{"src.io/app:1": sourceDigest}}

	plan, err := newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1"))
	require.NoError(t, err)

	assert.True(t, plan.SourceResolved())
	assert.Empty(t, plan.Destinations)
}

func TestPlan_ResolveErrors(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		digests: map[string]reference.Digest{"src.io/app:1": sourceDigest},
		errs:    map[string]error{"b.io/app:1": errThrottled},
	}

	_, err := newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1", "a.io/app:1", "b.io/app:1"))
	require.ErrorIs(t, err, errThrottled)

	resolver = &fakeResolver{errs: map[string]error{"src.io/app:1": errThrottled}}
	_, err = newPlanner(resolver).Plan(context.Background(), rule(t, "src.io/app:1", "a.io/app:1"))
	require.ErrorIs(t, err, errThrottled)
	assert.Equal(t, []string{"src.io/app:1"}, resolver.calls)
}
