package httpgin

import (
	"time"

	"github.com/mintgate/mintgate/internal/domain"
)

type CreateOrderRequest struct {
	EventID        int64  `json:"event_id" binding:"required"`
	BuyerWallet    string `json:"buyer_wallet"`
	ReceiverWallet string `json:"receiver_wallet" binding:"required"`
	AmountLamports int64  `json:"amount_lamports" binding:"required,gt=0"`
	SplToken       string `json:"spl_token"`
	Quantity       int    `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderResponse struct {
	OrderID    string `json:"order_id"`
	Reference  string `json:"reference"`
	PaymentURL string `json:"payment_url"`
}

type VerifyOrderRequest struct {
	OrderID     string `json:"order_id" binding:"required,uuid"`
	TxSignature string `json:"tx_signature" binding:"required"`
	BuyerWallet string `json:"buyer_wallet"`
}

type VerifyOrderResponse struct {
	Status         string   `json:"status"`
	AlreadySettled bool     `json:"already_settled,omitempty"`
	TicketIDs      []string `json:"ticket_ids"`
}

type RedeemRequest struct {
	TicketID string `json:"ticket_id" binding:"required,uuid"`
	Nonce    string `json:"nonce" binding:"required"`
}

type RedeemResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PactParticipantInput struct {
	Wallet         string `json:"wallet"`
	AmountLamports int64  `json:"amount_lamports" binding:"required,gt=0"`
}

type CreatePactRequest struct {
	Title          string                 `json:"title" binding:"required"`
	ReceiverWallet string                 `json:"receiver_wallet" binding:"required"`
	Participants   []PactParticipantInput `json:"participants" binding:"required,min=1,dive"`
}

type PactParticipantResponse struct {
	Idx        int    `json:"idx"`
	Reference  string `json:"reference"`
	PaymentURL string `json:"payment_url"`
}

type CreatePactResponse struct {
	PactID       string                    `json:"pact_id"`
	Participants []PactParticipantResponse `json:"participants"`
}

type CreateEventRequest struct {
	Title    string `json:"title" binding:"required"`
	Venue    string `json:"venue"`
	StartsAt string `json:"starts_at" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,gt=0"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type TicketView struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	EventID          int64      `json:"event_id"`
	OwnerWallet      string     `json:"owner_wallet"`
	Status           string     `json:"status"`
	RedemptionSecret string     `json:"redemption_secret"`
	RedeemedAt       *time.Time `json:"redeemed_at,omitempty"`
}

type OrderView struct {
	ID             string       `json:"id"`
	EventID        int64        `json:"event_id"`
	BuyerWallet    string       `json:"buyer_wallet,omitempty"`
	ReceiverWallet string       `json:"receiver_wallet"`
	AmountLamports int64        `json:"amount_lamports"`
	SplToken       string       `json:"spl_token,omitempty"`
	Reference      string       `json:"reference"`
	Quantity       int          `json:"quantity"`
	Status         string       `json:"status"`
	TxSignature    string       `json:"tx_signature,omitempty"`
	CheckedIn      bool         `json:"checked_in"`
	CheckInTime    *time.Time   `json:"check_in_time,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Tickets        []TicketView `json:"tickets"`
}

type PactParticipantView struct {
	Idx            int    `json:"idx"`
	Wallet         string `json:"wallet,omitempty"`
	AmountLamports int64  `json:"amount_lamports"`
	Reference      string `json:"reference"`
	Paid           bool   `json:"paid"`
	PaidSignature  string `json:"paid_signature,omitempty"`
}

type PactView struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	ReceiverWallet string                `json:"receiver_wallet"`
	CreatedAt      time.Time             `json:"created_at"`
	Participants   []PactParticipantView `json:"participants"`
}

func toOrderView(o *domain.OrderWithTickets) OrderView {
	v := OrderView{
		ID:             o.Order.ID.String(),
		EventID:        o.Order.EventID,
		BuyerWallet:    o.Order.BuyerWallet,
		ReceiverWallet: o.Order.ReceiverWallet,
		AmountLamports: o.Order.AmountLamports,
		SplToken:       o.Order.SplToken,
		Reference:      o.Order.Reference,
		Quantity:       o.Order.Quantity,
		Status:         string(o.Order.Status),
		TxSignature:    o.Order.TxSignature,
		CheckedIn:      o.Order.CheckedIn,
		CheckInTime:    o.Order.CheckInTime,
		CreatedAt:      o.Order.CreatedAt,
		Tickets:        []TicketView{},
	}

	for _, t := range o.Tickets {
		v.Tickets = append(v.Tickets, TicketView{
			ID:               t.ID.String(),
			OrderID:          t.OrderID.String(),
			EventID:          t.EventID,
			OwnerWallet:      t.OwnerWallet,
			Status:           string(t.Status),
			RedemptionSecret: t.RedemptionSecret,
			RedeemedAt:       t.RedeemedAt,
		})
	}

	return v
}

func toPactView(p *domain.Pact) PactView {
	v := PactView{
		ID:             p.ID.String(),
		Title:          p.Title,
		ReceiverWallet: p.ReceiverWallet,
		CreatedAt:      p.CreatedAt,
		Participants:   []PactParticipantView{},
	}

	for _, part := range p.Participants {
		v.Participants = append(v.Participants, PactParticipantView{
			Idx:            part.Idx,
			Wallet:         part.Wallet,
			AmountLamports: part.AmountLamports,
			Reference:      part.Reference,
			Paid:           part.Paid,
			PaidSignature:  part.PaidSignature,
		})
	}

	return v
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
