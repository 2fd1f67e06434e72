package pacts

import "errors"

var (
	ErrPactNotFound   = errors.New("pact not found")
	ErrNoParticipants = errors.New("pact requires at least one participant")
)
