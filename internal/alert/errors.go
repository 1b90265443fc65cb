package alert

import (
	"errors"
	"fmt"
)

// Error categories for a poll cycle. Wrapped errors are matched with errors.Is.
var (
	ErrInvalidTerm = errors.New("invalid search term")
	ErrFetch       = errors.New("fetch failed")
	ErrPersistence = errors.New("link cache persistence failed")
	ErrDispatch    = errors.New("webhook dispatch rejected")
)

// Serve-mode plumbing errors.
var (
	ErrQueueClosed   = errors.New("queue closed")
	ErrCycleNotFound = errors.New("cycle not found")
)

// TermError reports a search term that could not be compiled.
type TermError struct {
	Term string
	Err  error
}

func (e *TermError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrInvalidTerm, e.Term, e.Err)
}

// Unwrap exposes both the category and the compile error.
func (e *TermError) Unwrap() []error {
	return []error{ErrInvalidTerm, e.Err}
}

// BoardFetchError reports a catalog fetch failure for one board.
type BoardFetchError struct {
	Board string
	Err   error
}

func (e *BoardFetchError) Error() string {
	return fmt.Sprintf("fetch catalog for board %q: %v", e.Board, e.Err)
}

// Unwrap exposes both the category and the underlying error.
func (e *BoardFetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}
