package executor_test

import (
	"context"
	"errors"
	"testing"

	"ecrmirror/pkg/auth"
	"ecrmirror/pkg/executor"
	"ecrmirror/pkg/reference"
	"ecrmirror/pkg/registry"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	privateA = "111111111111.dkr.ecr.eu-west-1.amazonaws.com"
	privateB = "222222222222.dkr.ecr.us-east-1.amazonaws.com"
)

type fakeAuth struct {
	hosts [][]string
	err   error
}

func (f *fakeAuth) LoginAll(_ context.Context, hosts []string) error {
	f.hosts = append(f.hosts, hosts)
	return f.err
}

type fakeCopier struct {
	copies   []string
	failures map[string]error
}

func (f *fakeCopier) Copy(_ context.Context, _, dst reference.Reference) error {
	f.copies = append(f.copies, dst.String())
	return f.failures[dst.String()]
}

func refs(values ...string) []reference.Reference {
	out := make([]reference.Reference, 0, len(values))
	for _, v := range values {
		out = append(out, reference.MustParse(v))
	}
	return out
}

func newExecutor(a executor.Authenticator, c executor.Copier) *executor.Executor {
	logger, _ := test.NewNullLogger()
	return executor.New(a, c, logger)
}

func TestLoginHosts(t *testing.T) {
	t.Parallel()

	source := reference.MustParse("public.ecr.aws/docker/library/nginx:1")
	dests := refs(
		privateA+"/nginx:1",
		"docker.io/library/nginx:1",
		privateA+"/mirror/nginx:1",
		privateB+"/nginx:1",
	)

	assert.Equal(t, []string{"public.ecr.aws", privateA, privateB}, executor.LoginHosts(source, dests))
	assert.Empty(t, executor.LoginHosts(reference.MustParse("quay.io/org/app:1"), refs("ghcr.io/org/app:1")))
}

func TestExecute_CopiesInOrder(t *testing.T) {
	t.Parallel()

	a := &fakeAuth{}
	c := &fakeCopier{}
	source := reference.MustParse("quay.io/org/app:1")
	dests := refs(privateA+"/app:1", privateB+"/app:1")

	err := newExecutor(a, c).Execute(context.Background(), source, dests)
	require.NoError(t, err)
	assert.Equal(t, 0, registry.ExitCode(err))

	assert.Equal(t, [][]string{{privateA, privateB}}, a.hosts)
	assert.Equal(t, reference.Strings(dests), c.copies)
}

func TestExecute_FailFastPropagatesExitCode(t *testing.T) {
	t.Parallel()

	a := &fakeAuth{}
	c := &fakeCopier{failures: map[string]error{
		privateA + "/app:1": &registry.ExitError{Code: 3, Err: errors.New("manifest unknown")},
	}}
	source := reference.MustParse("quay.io/org/app:1")
	dests := refs(privateA+"/app:1", privateB+"/app:1")

	err := newExecutor(a, c).Execute(context.Background(), source, dests)
	require.Error(t, err)

	assert.Equal(t, 3, registry.ExitCode(err))
	assert.Equal(t, []string{privateA + "/app:1"}, c.copies, "B must never be attempted")

	var copyErr *executor.CopyError
	require.ErrorAs(t, err, &copyErr)
	assert.Equal(t, privateA+"/app:1", copyErr.Target.String())
}

func TestExecute_LoginFailureSkipsCopies(t *testing.T) {
	t.Parallel()

	a := &fakeAuth{err: &auth.Error{Host: privateA, Code: registry.CodeFailure, Err: errors.New("expired token")}}
	c := &fakeCopier{}

	err := newExecutor(a, c).Execute(context.Background(),
		reference.MustParse("quay.io/org/app:1"), refs(privateA+"/app:1"))
	require.Error(t, err)

	assert.ErrorIs(t, err, auth.ErrLogin)
	assert.Equal(t, registry.CodeFailure, registry.ExitCode(err))
	assert.Empty(t, c.copies)
}

func TestExecute_NoDestinations(t *testing.T) {
	t.Parallel()

	a := &fakeAuth{}
	c := &fakeCopier{}

	require.NoError(t, newExecutor(a, c).Execute(context.Background(), reference.MustParse("quay.io/org/app:1"), nil))
	assert.Empty(t, c.copies)
}
