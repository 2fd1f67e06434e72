package redemption

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrAlreadyRedeemed = errors.New("ticket already redeemed")
	ErrInvalidSecret   = errors.New("invalid redemption secret")
)
