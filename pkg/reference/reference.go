package reference

import (
	"errors"
	"fmt"
	"strings"

	"ecrmirror/pkg/utils"
)

const (
	// PrivateMarker identifies a private ECR host, e.g. 123456789012.dkr.ecr.eu-west-1.amazonaws.com.
	PrivateMarker = "dkr.ecr"
	// PublicMarker identifies a reference hosted on ECR Public.
	PublicMarker = "public.ecr.aws"

	// privateHostParts is the number of dot separated parts in account.dkr.ecr.region.amazonaws.com.
	privateHostParts = 6
)

var (
	ErrMissingRepository = errors.New("missing repository path separator")
	ErrMissingTag        = errors.New("missing tag separator")
	ErrEmptyComponent    = errors.New("empty reference component")
	ErrNotPrivate        = errors.New("not a private ECR host")
)

// ParseError reports a reference that could not be decomposed.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid image reference %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Reference is a registry/repository:tag triple.
type Reference struct {
	Registry   string
	Repository string
	Tag        string
}

// Parse splits s into registry host (everything before the first "/") and a
// repository/tag pair split on the last ":".
func Parse(s string) (Reference, error) {
	host, path, ok := strings.Cut(s, "/")
	if !ok {
		return Reference{}, &ParseError{Input: s, Err: ErrMissingRepository}
	}

	idx := strings.LastIndex(path, ":")
	if idx < 0 {
		return Reference{}, &ParseError{Input: s, Err: ErrMissingTag}
	}

	ref := Reference{
		Registry:   host,
		Repository: path[:idx],
		Tag:        path[idx+1:],
	}
	if ref.Registry == "" || ref.Repository == "" || ref.Tag == "" {
		return Reference{}, &ParseError{Input: s, Err: ErrEmptyComponent}
	}

	return ref, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Reference {
	ref, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r Reference) String() string {
	return r.Registry + "/" + r.Repository + ":" + r.Tag
}

// IsPrivate reports whether the reference lives on a private ECR registry.
func (r Reference) IsPrivate() bool {
	return strings.Contains(r.Registry, PrivateMarker)
}

// IsPublic reports whether the reference lives on ECR Public.
func (r Reference) IsPublic() bool {
	return strings.HasPrefix(r.String(), PublicMarker)
}

// RequiresLogin reports whether the host needs a broker login before use.
func (r Reference) RequiresLogin() bool {
	return r.IsPrivate() || r.IsPublic()
}

// AccountRegion extracts the account ID and region from a private ECR host
// (account.dkr.ecr.region.amazonaws.com).
func AccountRegion(host string) (string, string, error) {
	parts := strings.Split(host, ".")
	if !strings.Contains(host, PrivateMarker) || len(parts) < privateHostParts {
		return "", "", fmt.Errorf("%w: %s", ErrNotPrivate, host)
	}
	return parts[0], parts[3], nil
}

// ParseList splits every value on commas, parses each entry and returns the
// distinct references in first-seen order.
func ParseList(values ...string) ([]Reference, error) {
	var raw []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				raw = append(raw, s)
			}
		}
	}

	var refs []Reference
	for _, s := range utils.RemoveDuplicates(raw) {
		ref, err := Parse(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Strings renders refs back to their string form.
func Strings(refs []Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.String())
	}
	return out
}

// Hosts returns the distinct registry hosts of refs in first-seen order.
func Hosts(refs ...Reference) []string {
	hosts := make([]string, 0, len(refs))
	for _, r := range refs {
		hosts = append(hosts, r.Registry)
	}
	return utils.RemoveDuplicates(hosts)
}
