package digest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ecrmirror/pkg/digest"
	"ecrmirror/pkg/reference"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errAccessDenied = errors.New("access denied")
	errToolFailed   = errors.New("skopeo exited 1")

	resolved = reference.Digest("sha256:" + strings.Repeat("7e", 32))
)

type fakeLookup struct {
	calls  []string
	digest reference.Digest
	err    error
}

func (f *fakeLookup) ImageDigest(_ context.Context, ref reference.Reference) (reference.Digest, error) {
	f.calls = append(f.calls, ref.String())
	return f.digest, f.err
}

func (f *fakeLookup) Digest(_ context.Context, ref reference.Reference) (reference.Digest, error) {
	f.calls = append(f.calls, ref.String())
	return f.digest, f.err
}

func newResolver(ecr, inspector *fakeLookup) *digest.Resolver {
	logger, _ := test.NewNullLogger()
	return digest.NewResolver(ecr, inspector, logger)
}

func TestResolve_PrivateUsesECRAPI(t *testing.T) {
	t.Parallel()

	ecr := &fakeLookup{digest: resolved}
	inspector := &fakeLookup{}
	ref := reference.MustParse("123456789012.dkr.ecr.eu-west-1.amazonaws.com/app:1")

	got, err := newResolver(ecr, inspector).Resolve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, resolved, got)
	assert.Equal(t, []string{ref.String()}, ecr.calls)
	assert.Empty(t, inspector.calls)
}

func TestResolve_PrivateAPIErrorPropagates(t *testing.T) {
	t.Parallel()

	ecr := &fakeLookup{err: errAccessDenied}
	ref := reference.MustParse("123456789012.dkr.ecr.eu-west-1.amazonaws.com/app:1")

	_, err := newResolver(ecr, &fakeLookup{}).Resolve(context.Background(), ref)
	require.ErrorIs(t, err, errAccessDenied)
}

func TestResolve_GenericUsesInspector(t *testing.T) {
	t.Parallel()

	ecr := &fakeLookup{}
	inspector := &fakeLookup{digest: resolved}

	for _, s := range []string{"docker.io/library/nginx:1", "public.ecr.aws/docker/library/alpine:3"} {
		got, err := newResolver(ecr, inspector).Resolve(context.Background(), reference.MustParse(s))
		require.NoError(t, err)
		assert.Equal(t, resolved, got)
	}

	assert.Empty(t, ecr.calls)
	assert.Len(t, inspector.calls, 2)
}

func TestResolve_InspectFailureIsUnresolved(t *testing.T) {
	t.Parallel()

	inspector := &fakeLookup{err: errToolFailed}

	got, err := newResolver(&fakeLookup{}, inspector).Resolve(context.Background(), reference.MustParse("quay.io/org/app:1"))
	require.NoError(t, err)
	assert.False(t, got.Resolved())
}

func TestResolve_ShortOutputIsUnresolved(t *testing.T) {
	t.Parallel()

	inspector := &fakeLookup{digest: "sha256:abc"}

	got, err := newResolver(&fakeLookup{}, inspector).Resolve(context.Background(), reference.MustParse("quay.io/org/app:1"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
