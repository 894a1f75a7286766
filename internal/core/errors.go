package core

import (
	"errors"
	"fmt"
)

// ListingError means the listing as a whole was unavailable: unreachable
// endpoint, malformed response, rate limit or auth failure. Fatal for the run.
type ListingError struct {
	Source string
	Err    error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing unavailable from %s: %v", e.Source, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

func IsListingError(err error) bool {
	var le *ListingError
	return errors.As(err, &le)
}

// FetchError is a per-item download failure. Status is the HTTP status when
// one was received, 0 for transport-level failures.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retriable reports whether a later run is likely to succeed: rate limits and
// server-side errors are, 4xx like 404 are not. The engine never retries
// within a run either way; this only drives log wording.
func (e *FetchError) Retriable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// DeliveryError is a per-item failure of the external delivery transport.
type DeliveryError struct {
	Target string
	ID     string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.ID, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// PersistenceError means the ledger could not be made durable. Fatal: the run
// stops processing further items, already-committed ones stay committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
