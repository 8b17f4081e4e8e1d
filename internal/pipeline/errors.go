package pipeline

import (
	"errors"
	"fmt"
)

// ErrDiscard marks a row that lacks the minimum required fields. Discarded
// rows are not persisted and not retried.
var ErrDiscard = errors.New("row discarded")

// EnrichmentError is a recoverable failure in document fetch, text
// extraction, or field extraction. It is attached to the record and does not
// block persistence.
type EnrichmentError struct {
	Stage string
	Err   error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// StoreError wraps an insert/update failure. The row is skipped for this run
// and remains eligible on the next run since nothing was partially written.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
