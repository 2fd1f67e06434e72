package settlement

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrPactNotFound        = errors.New("pact not found")
	ErrParticipantNotFound = errors.New("participant not found")
)
