package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCursor is recovered inside Curate; callers only see it from
	// DecodeCursor.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrSearchProvider marks a curation call that failed because the search
	// collaborator (or its authentication) failed.
	ErrSearchProvider = errors.New("search provider failure")
)

// SearchError is the single call-level error returned by Curate.
type SearchError struct {
	Query string // empty when authentication failed
	Err   error
}

func (e *SearchError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("%s: authenticate: %v", ErrSearchProvider, e.Err)
	}
	return fmt.Sprintf("%s: query %q: %v", ErrSearchProvider, e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSearchProvider) match any SearchError.
func (e *SearchError) Is(target error) bool { return target == ErrSearchProvider }
