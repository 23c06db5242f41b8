package endpoint

import "errors"

// Send errors, surfaced to callers per §6/§7 of the error taxonomy. None of
// these abort the endpoint.
var (
	ErrIdentity = errors.New("endpoint: identity not linked, cannot send")
	ErrLength   = errors.New("endpoint: body must be non-empty")
	ErrChannel  = errors.New("endpoint: invalid or unconfigured channel")
	ErrSocket   = errors.New("endpoint: socket not bound")
	ErrFragment = errors.New("endpoint: fragmentation failed")
	ErrUnknown  = errors.New("endpoint: send failed")
)

// Receive errors.
var (
	ErrUnknownIdentity = errors.New("endpoint: unknown identity")
)
