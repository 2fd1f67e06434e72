package ledger

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestEncode_Native(t *testing.T) {
	u, err := PaymentRequest{
		Recipient: "merchantWallet",
		Amount:    1_500_000_000,
		Reference: "refKey123",
		Label:     "MintGate",
		Message:   "Order #42",
	}.Encode()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(u, "solana:merchantWallet?"), u)

	q, err := url.ParseQuery(strings.SplitN(u, "?", 2)[1])
	require.NoError(t, err)

	assert.Equal(t, "1.5", q.Get("amount"))
	assert.Equal(t, "refKey123", q.Get("reference"))
	assert.Equal(t, "MintGate", q.Get("label"))
	assert.Equal(t, "Order #42", q.Get("message"))
	assert.Empty(t, q.Get("spl-token"))
}

func TestPaymentRequestEncode_AmountRendering(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		decimals int32
		want     string
	}{
		{"one lamport", 1, 0, "0.000000001"},
		{"whole sol", 2_000_000_000, 0, "2"},
		{"sub-sol", 250_000_000, 0, "0.25"},
		{"six-decimal token", 1_000_000, 6, "1"},
		{"fractional token", 1_234_567, 6, "1.234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := PaymentRequest{
				Recipient:     "merchantWallet",
				Amount:        tt.amount,
				TokenDecimals: tt.decimals,
			}.Encode()
			require.NoError(t, err)

			q, err := url.ParseQuery(strings.SplitN(u, "?", 2)[1])
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Get("amount"))
		})
	}
}

func TestPaymentRequestEncode_Token(t *testing.T) {
	u, err := PaymentRequest{
		Recipient:     "merchantWallet",
		Amount:        5_000_000,
		TokenDecimals: 6,
		Reference:     "refKey123",
		SplToken:      "usdcMint",
	}.Encode()
	require.NoError(t, err)

	q, err := url.ParseQuery(strings.SplitN(u, "?", 2)[1])
	require.NoError(t, err)

	assert.Equal(t, "5", q.Get("amount"))
	assert.Equal(t, "usdcMint", q.Get("spl-token"))
}

func TestPaymentRequestEncode_Invalid(t *testing.T) {
	_, err := PaymentRequest{Amount: 1}.Encode()
	assert.Error(t, err, "missing recipient")

	_, err = PaymentRequest{Recipient: "merchantWallet"}.Encode()
	assert.Error(t, err, "missing amount")

	_, err = PaymentRequest{Recipient: "merchantWallet", Amount: -5}.Encode()
	assert.Error(t, err, "negative amount")
}
