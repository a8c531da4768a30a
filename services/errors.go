// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Error taxonomy. Tool handlers translate these into structured responses;
// everything else in the services layer wraps one of them with %w so
// errors.Is works at the boundary.
var (
	// ErrSourceUnavailable: transport or HTTP failure after the transient retry.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrValidation: a downloaded artifact failed shape checks. Never cached.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound: valid query, no matching entity.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument: caller-supplied identifier or filter not recognized.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTopicNotRecognized: unknown topic name passed to dataset discovery.
	ErrTopicNotRecognized = errors.New("topic not recognized")
)

// ErrInvalidPostcode distinguishes a malformed or unrecognized postcode from
// a geocoding transport failure. It is a kind of invalid argument.
var ErrInvalidPostcode = fmt.Errorf("%w: invalid postcode", ErrInvalidArgument)
