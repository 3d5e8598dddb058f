package eu

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUpstreamFetch matches every *UpstreamFetchError.
	ErrUpstreamFetch = errors.New("eu: upstream fetch failed")
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("eu: dataset parse failed")
)

// UpstreamFetchError reports an unreachable endpoint, a timeout, or a non-2xx
// response while downloading a dataset.
type UpstreamFetchError struct {
	Dataset    Dataset
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	msg := fmt.Sprintf("eu: fetch %s dataset", e.Dataset)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http status %d", msg, e.StatusCode)
	}
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		msg += ": timed out"
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

func (e *UpstreamFetchError) Is(target error) bool { return target == ErrUpstreamFetch }

// ParseError reports a dataset line that is not valid JSON for its schema.
type ParseError struct {
	Dataset Dataset
	Line    int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("eu: parse %s dataset line %d: %v", e.Dataset, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
