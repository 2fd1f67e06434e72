package ledger

import (
	"errors"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// nativeDecimals is the number of fractional digits of the native currency
// (1 SOL = 1e9 lamports).
const nativeDecimals = 9

// PaymentRequest describes a payment-link URL of the form
// solana:<recipient>?amount=..&reference=..&spl-token=..&label=..&message=..
// Amounts are decimal strings with at most nine fractional digits; the
// reference key is carried as a non-signing account so it shows up verbatim
// in the resulting transaction's account list.
type PaymentRequest struct {
	Recipient string
	// Amount in the smallest unit of the currency (lamports, or raw token
	// units for SPL transfers).
	Amount int64
	// TokenDecimals is used to render Amount as a decimal string. Zero
	// means native (nine digits).
	TokenDecimals int32
	Reference     string
	SplToken      string
	Label         string
	Message       string
}

func (r PaymentRequest) Encode() (string, error) {
	if r.Recipient == "" {
		return "", errors.New("ledger: payment request requires a recipient")
	}
	if r.Amount <= 0 {
		return "", errors.New("ledger: payment request requires a positive amount")
	}

	decimals := r.TokenDecimals
	if decimals <= 0 {
		decimals = nativeDecimals
	}

	amount := decimal.NewFromInt(r.Amount).Shift(-decimals)

	q := url.Values{}
	q.Set("amount", amount.String())
	if r.Reference != "" {
		q.Set("reference", r.Reference)
	}
	if r.SplToken != "" {
		q.Set("spl-token", r.SplToken)
	}
	if r.Label != "" {
		q.Set("label", r.Label)
	}
	if r.Message != "" {
		q.Set("message", r.Message)
	}

	var sb strings.Builder
	sb.WriteString("solana:")
	sb.WriteString(r.Recipient)
	sb.WriteString("?")
	sb.WriteString(q.Encode())

	return sb.String(), nil
}
