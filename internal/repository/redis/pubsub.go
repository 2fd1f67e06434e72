package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementsPubSub broadcasts settlement results so interested processes
// (UI backends, notification workers) can react without polling the store.
// Publishers call it only after a committed transition.
type SettlementsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSettlementsPubSub(rdb *redis.Client) *SettlementsPubSub {
	return &SettlementsPubSub{
		rdb:     rdb,
		channel: ChannelSettlements(),
	}
}

type settlementMsg struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id,omitempty"`
	PactID  string `json:"pact_id,omitempty"`
	Idx     int    `json:"idx,omitempty"`
	EventID int64  `json:"event_id,omitempty"`
	TsUnix  int64  `json:"ts_unix"`
}

func (p *SettlementsPubSub) PublishOrderPaid(ctx context.Context, orderID string, eventID int64) error {
	msg := settlementMsg{
		Type:    "order_paid",
		OrderID: orderID,
		EventID: eventID,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *SettlementsPubSub) PublishParticipantPaid(ctx context.Context, pactID string, idx int) error {
	msg := settlementMsg{
		Type:   "participant_paid",
		PactID: pactID,
		Idx:    idx,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}
