package reference

import "errors"

var ErrEmptySource = errors.New("mirror rule has no source")

// Rule maps one source to an ordered set of destinations.
type Rule struct {
	Source       Reference
	Destinations []Reference
}

// NewRule parses the source and destinations of a mapping row. Destinations are
// de-duplicated in insertion order and may be empty.
func NewRule(source string, destinations []string) (Rule, error) {
	if source == "" {
		return Rule{}, ErrEmptySource
	}

	src, err := Parse(source)
	if err != nil {
		return Rule{}, err
	}

	dests, err := ParseList(destinations...)
	if err != nil {
		return Rule{}, err
	}

	return Rule{Source: src, Destinations: dests}, nil
}
