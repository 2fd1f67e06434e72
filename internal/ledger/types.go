package ledger

import "errors"

// ErrNotFound is returned when a transaction is unknown to the RPC node,
// not yet confirmed, or of a version the node refuses to decode. Callers
// must not treat it as a transport failure.
var ErrNotFound = errors.New("ledger: transaction not found")

// Transaction is the subset of a confirmed ledger transaction that payment
// verification needs: the account list and the balance movements around it.
type Transaction struct {
	Signature         string
	Succeeded         bool
	AccountKeys       []string
	PreBalances       []int64
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is a fungible-token account balance snapshot, in the token's
// smallest units.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       int64
}

// SignatureInfo is one entry of a signatures-for-address listing, newest
// first.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Failed    bool
}
