package httpgin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/monitoring"
	"github.com/mintgate/mintgate/internal/service/registry"
	"github.com/mintgate/mintgate/internal/service/settlement"
	"github.com/mintgate/mintgate/internal/service/verification"
)

// ReferenceResolver turns an observed on-chain reference key into a
// settlement target.
type ReferenceResolver interface {
	Resolve(ctx context.Context, reference string) (*domain.ReferenceTarget, error)
}

// Settler is the settlement coordinator surface the webhook needs.
type Settler interface {
	SettleOrder(ctx context.Context, orderID uuid.UUID, signature, payerWallet string) (*settlement.OrderOutcome, error)
	SettleParticipant(ctx context.Context, pactID uuid.UUID, idx int, signature, payerWallet string) (*settlement.ParticipantOutcome, error)
}

type WebhookConfig struct {
	// Secret is the shared secret the ledger watcher sends in the
	// Authorization header. Explicit configuration, never ambient state.
	Secret string
}

// WebhookHandler receives batches of ledger-watcher events. Each event is
// resolved and settled independently: one bad event must not abort the
// batch, and replayed deliveries are absorbed by the settlement guard.
type WebhookHandler struct {
	resolver ReferenceResolver
	settler  Settler
	cfg      WebhookConfig
	logger   *slog.Logger
}

func NewWebhookHandler(
	resolver ReferenceResolver,
	settler Settler,
	cfg WebhookConfig,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		resolver: resolver,
		settler:  settler,
		cfg:      cfg,
		logger:   logger,
	}
}

type WatcherTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

type WatcherEvent struct {
	Signature   string `json:"signature"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	NativeTransfers []WatcherTransfer `json:"nativeTransfers"`
}

type WebhookResponse struct {
	Processed int `json:"processed"`
	Settled   int `json:"settled"`
	Skipped   int `json:"skipped"`
}

// Liveness responds 200 so the watcher can probe the endpoint.
func (h *WebhookHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var events []WatcherEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var resp WebhookResponse
	for _, ev := range events {
		resp.Processed++
		if h.processEvent(c.Request.Context(), ev) {
			resp.Settled++
		} else {
			resp.Skipped++
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *WebhookHandler) authorized(c *gin.Context) bool {
	if h.cfg.Secret == "" {
		return false
	}

	got := c.GetHeader("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.Secret)) == 1
}

// processEvent scans the event's account keys for a registered reference
// and settles its target. Reports whether a settlement was applied.
func (h *WebhookHandler) processEvent(ctx context.Context, ev WatcherEvent) bool {
	if ev.Signature == "" {
		monitoring.IncWebhookEvent("malformed")
		return false
	}

	payer := ""
	if len(ev.NativeTransfers) > 0 {
		payer = ev.NativeTransfers[0].FromUserAccount
	}

	for _, key := range ev.Transaction.Message.AccountKeys {
		target, err := h.resolver.Resolve(ctx, key)
		if err != nil {
			if errors.Is(err, registry.ErrReferenceNotFound) {
				continue
			}

			h.logger.Error("webhook: reference lookup failed",
				"signature", ev.Signature, "error", err)
			monitoring.IncWebhookEvent("error")
			return false
		}

		settled, err := h.settleTarget(ctx, target, ev.Signature, payer)
		if err != nil {
			// A rejection here is definitive for an order (it is now
			// failed); anything else stays retryable on the watcher's
			// next delivery.
			if _, ok := verification.AsRejection(err); ok {
				h.logger.Warn("webhook: verification rejected",
					"signature", ev.Signature, "error", err)
				monitoring.IncWebhookEvent("rejected")
			} else {
				h.logger.Error("webhook: settlement failed",
					"signature", ev.Signature, "error", err)
				monitoring.IncWebhookEvent("error")
			}
			return false
		}

		if settled {
			monitoring.IncWebhookEvent("settled")
		} else {
			monitoring.IncWebhookEvent("already_settled")
		}
		return settled
	}

	monitoring.IncWebhookEvent("no_reference")
	return false
}

func (h *WebhookHandler) settleTarget(
	ctx context.Context,
	target *domain.ReferenceTarget,
	signature, payer string,
) (bool, error) {
	switch target.Kind {
	case domain.ReferenceOrder:
		out, err := h.settler.SettleOrder(ctx, target.OrderID, signature, payer)
		if err != nil {
			return false, err
		}
		return !out.AlreadySettled, nil

	case domain.ReferenceParticipant:
		out, err := h.settler.SettleParticipant(ctx, target.PactID, target.ParticipantIdx, signature, payer)
		if err != nil {
			return false, err
		}
		return !out.AlreadySettled, nil
	}

	return false, nil
}
