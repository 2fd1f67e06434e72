package orders

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEventNotFound = errors.New("event not found")
	ErrSoldOut       = errors.New("event sold out")
)
