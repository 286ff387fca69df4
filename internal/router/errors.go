package router

import "errors"

// Routing failure taxonomy. All of these are converted into user- or
// operator-facing notices at the router boundary; none escape as faults.
var (
	ErrNoActiveSession   = errors.New("no active session")
	ErrUnresolvableReply = errors.New("unresolvable reply")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDeliveryFailure   = errors.New("delivery failure")
)
