package verification

import "errors"

// Reason classifies a definitive verification rejection. Rejections are
// deterministic functions of confirmed ledger state and safe to persist;
// anything else (timeouts, node errors) is transient and must leave the
// intent pending.
type Reason string

const (
	ReasonNotFound            Reason = "not-found"
	ReasonDestinationMismatch Reason = "destination-mismatch"
	ReasonAmountMismatch      Reason = "amount-mismatch"
)

type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return "verification rejected: " + string(e.Reason)
}

// AsRejection reports whether err is (or wraps) a definitive rejection.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
