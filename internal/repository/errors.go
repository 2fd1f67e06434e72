package repository

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadySettled  = errors.New("intent already settled")
	ErrAlreadyRedeemed = errors.New("ticket already redeemed")
)
