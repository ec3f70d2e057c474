package model

import "errors"

// Domain error taxonomy. Callers match with errors.Is; the API layer maps
// each sentinel to an HTTP status.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the caller does not own the entity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState means the operation is not legal from the entity's
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrExpired means a deadline has passed.
	ErrExpired = errors.New("expired")

	// ErrAlreadyClosed signals the loser of an acceptance race: the RFQ
	// was closed by a concurrent accept.
	ErrAlreadyClosed = errors.New("rfq already closed")

	// ErrAlreadyConverted signals that an order already references the
	// quote (idempotent conversion retry).
	ErrAlreadyConverted = errors.New("quote already converted")
)
