// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrElementNotFound is returned by DOMQuery.FindOne when a locator matches
// nothing. Strategy iteration treats it as "try the next candidate".
var ErrElementNotFound = errors.New("element not found")

// ErrNotLearned is returned when resolve() is called for a logical name that
// has no memory entry and no heuristic candidate matched either.
var ErrNotLearned = errors.New("element was never learned")

// ExtractionError reports that an element handle was stale or detached while
// its fingerprint was being read. During a global scan the node is skipped;
// during direct resolution the attempt is aborted.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fingerprint extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fingerprint extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AmbiguousMatchError reports that a candidate locator resolved to more than
// one live element. This is a non-match for that strategy; the resolver never
// silently picks the first element.
type AmbiguousMatchError struct {
	Locator Locator
	Count   int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("locator %s matched %d elements, expected exactly one", e.Locator, e.Count)
}

// NotFoundError is the terminal resolution failure. It names the logical
// element and the last stage the resolver reached before giving up.
type NotFoundError struct {
	LogicalName string
	Stage       Stage
	Err         error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not resolve element %q (last stage: %s)", e.LogicalName, e.Stage)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// OracleError reports that the external suggestion call raised, timed out, or
// returned unparseable text. It is recovered locally by proceeding straight
// to FAILED; there is no further fallback beyond the oracle.
type OracleError struct {
	Reason string
	Err    error
}

func (e *OracleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("suggestion oracle failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("suggestion oracle failed: %s", e.Reason)
}

func (e *OracleError) Unwrap() error { return e.Err }
