package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

type TicketStatus string

const (
	TicketIssued   TicketStatus = "issued"
	TicketRedeemed TicketStatus = "redeemed"
)

type Event struct {
	ID         int64
	Title      string
	Venue      string
	StartsAt   time.Time
	Capacity   int
	SalesCount int
}

type EventAvailability struct {
	EventID    int64 `json:"event_id"`
	Capacity   int   `json:"capacity"`
	SalesCount int   `json:"sales_count"`
	Remaining  int   `json:"remaining"`
}

// Order is a payment intent: it records what a buyer is expected to pay
// on-chain before any transaction exists. TxSignature is set exactly once,
// when the order leaves pending.
type Order struct {
	ID             uuid.UUID
	EventID        int64
	BuyerWallet    string // empty until payment is observed
	ReceiverWallet string
	AmountLamports int64
	SplToken       string // empty means native SOL
	Reference      string
	Quantity       int
	Status         OrderStatus
	TxSignature    string
	CheckedIn      bool
	CheckInTime    *time.Time
	CreatedAt      time.Time
}

type Ticket struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	EventID          int64
	OwnerWallet      string
	Status           TicketStatus
	RedemptionSecret string
	RedeemedAt       *time.Time
	CreatedAt        time.Time
}

type OrderWithTickets struct {
	Order   Order
	Tickets []Ticket
}

// Pact is a group payment: several participants pay independently into the
// same receiver wallet, correlated by per-participant reference keys.
type Pact struct {
	ID             uuid.UUID
	Title          string
	ReceiverWallet string
	CreatedAt      time.Time
	Participants   []Participant
}

type Participant struct {
	PactID         uuid.UUID
	Idx            int
	Wallet         string // empty until payment is observed
	AmountLamports int64
	Reference      string
	Paid           bool
	PaidSignature  string
}

type ReferenceKind string

const (
	ReferenceOrder       ReferenceKind = "order"
	ReferenceParticipant ReferenceKind = "participant"
)

// ReferenceTarget is what an on-chain reference key resolves to.
type ReferenceTarget struct {
	Kind           ReferenceKind
	OrderID        uuid.UUID
	PactID         uuid.UUID
	ParticipantIdx int
}
