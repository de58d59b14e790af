package lifecycle

import "errors"

// State-machine violations are raised immediately and never partially mutate
// the contract record. Verification outcomes are not errors; see pkg/certify.
var (
	ErrNotFound      = errors.New("contract not found")
	ErrForbidden     = errors.New("actor is not authorized for this contract action")
	ErrInvalidState  = errors.New("transition not legal from current contract status")
	ErrAlreadySigned = errors.New("signature already recorded for this party")
	ErrValidation    = errors.New("invalid request")
)
