package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	redisrepo "github.com/mintgate/mintgate/internal/repository/redis"
	"github.com/mintgate/mintgate/internal/service"
	"github.com/mintgate/mintgate/internal/service/admin"
	"github.com/mintgate/mintgate/internal/service/orders"
	"github.com/mintgate/mintgate/internal/service/pacts"
	"github.com/mintgate/mintgate/internal/service/query"
	"github.com/mintgate/mintgate/internal/service/redemption"
	"github.com/mintgate/mintgate/internal/service/settlement"
	"github.com/mintgate/mintgate/internal/service/verification"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// LedgerProbe reports whether the ledger node answers queries; the health
// endpoint uses it as a readiness signal.
type LedgerProbe interface {
	LatestBlockhash(ctx context.Context) (string, error)
}

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	webhook *WebhookHandler,
	probe LedgerProbe,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health + metrics
	r.GET("/healthz", func(c *gin.Context) {
		ledgerStatus := "ok"
		if probe != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if _, err := probe.LatestBlockhash(ctx); err != nil {
				ledgerStatus = "unreachable"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ledger": ledgerStatus})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Ledger-watcher webhook lives at the root, the way the watcher is
	// configured to deliver.
	r.POST("/", webhook.Receive)
	r.GET("/", webhook.Liveness)

	// Public API
	r.GET("/events/:id/availability", handleGetAvailability(svcs))

	r.POST("/orders", handleCreateOrder(svcs, idem))
	r.POST("/orders/verify", handleVerifyOrder(svcs, limiter))
	r.GET("/orders/:id", handleGetOrder(svcs))

	r.POST("/pacts", handleCreatePact(svcs))
	r.GET("/pacts/:id", handleGetPact(svcs))

	r.POST("/tickets/redeem", handleRedeemTicket(svcs))

	// Admin-API
	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/events", handleCreateEvent(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get availability counters
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventAvailability
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=15", true)
	}
}

// @Summary  Create order (pending payment intent, idempotent)
// @Param    req body  CreateOrderRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} CreateOrderResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "event unknown"
// @Failure  409 {object} ErrorResponse "sold out / idem in progress"
// @Router   /orders [post]
func handleCreateOrder(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemOrder(req.EventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		res, err := svcs.Orders.Create(c.Request.Context(), orders.CreateParams{
			EventID:        req.EventID,
			BuyerWallet:    req.BuyerWallet,
			ReceiverWallet: req.ReceiverWallet,
			AmountLamports: req.AmountLamports,
			SplToken:       req.SplToken,
			Quantity:       req.Quantity,
		})
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CreateOrderResponse{
			OrderID:    res.OrderID.String(),
			Reference:  res.Reference,
			PaymentURL: res.PaymentURL,
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Verify payment and settle order
// @Param    req body  VerifyOrderRequest true "payload"
// @Success  200 {object} VerifyOrderResponse
// @Failure  400 {object} ErrorResponse "verification rejected"
// @Failure  404 {object} ErrorResponse "order unknown"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  500 {object} ErrorResponse "transient, order stays pending"
// @Router   /orders/verify [post]
func handleVerifyOrder(
	svcs *service.Services,
	limiter *redisrepo.SlidingWindowLimiter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			badRequest(c, "invalid order_id")
			return
		}

		if limiter != nil {
			ok, _, retry, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err != nil {
				respondErr(c, err)
				return
			}
			if !ok {
				c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		out, err := svcs.Settlement.SettleOrder(
			c.Request.Context(),
			orderID,
			req.TxSignature,
			req.BuyerWallet,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := VerifyOrderResponse{
			Status:         string(out.Status),
			AlreadySettled: out.AlreadySettled,
			TicketIDs:      []string{},
		}
		for _, id := range out.TicketIDs {
			resp.TicketIDs = append(resp.TicketIDs, id.String())
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Get order with tickets
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200 {object} OrderView
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}

		o, err := svcs.Orders.GetWithTickets(c.Request.Context(), orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderView(o))
	}
}

// @Summary  Create pact (group payment)
// @Param    req body  CreatePactRequest true "payload"
// @Success  201 {object} CreatePactResponse
// @Router   /pacts [post]
func handleCreatePact(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		params := pacts.CreateParams{
			Title:          req.Title,
			ReceiverWallet: req.ReceiverWallet,
		}
		for _, p := range req.Participants {
			params.Participants = append(params.Participants, pacts.ParticipantParams{
				Wallet:         p.Wallet,
				AmountLamports: p.AmountLamports,
			})
		}

		res, err := svcs.Pacts.Create(c.Request.Context(), params)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := CreatePactResponse{PactID: res.PactID.String()}
		for _, p := range res.Participants {
			resp.Participants = append(resp.Participants, PactParticipantResponse{
				Idx:        p.Idx,
				Reference:  p.Reference,
				PaymentURL: p.PaymentURL,
			})
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get pact with participant paid states
// @Param    id  path  string  true  "Pact ID (uuid)"
// @Success  200 {object} PactView
// @Router   /pacts/{id} [get]
func handleGetPact(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		pactID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid pact id")
			return
		}

		p, err := svcs.Pacts.Get(c.Request.Context(), pactID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toPactView(p))
	}
}

// @Summary  Redeem ticket
// @Param    req body  RedeemRequest true "payload"
// @Success  200 {object} RedeemResponse
// @Failure  400 {object} RedeemResponse
// @Failure  404 {object} RedeemResponse
// @Router   /tickets/redeem [post]
func handleRedeemTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RedeemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, RedeemResponse{Success: false, Message: err.Error()})
			return
		}

		ticketID, err := uuid.Parse(req.TicketID)
		if err != nil {
			c.JSON(http.StatusBadRequest, RedeemResponse{Success: false, Message: "invalid ticket_id"})
			return
		}

		err = svcs.Redemption.Redeem(c.Request.Context(), ticketID, req.Nonce)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, RedeemResponse{Success: true, Message: "ticket redeemed"})
		case errors.Is(err, redemption.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, RedeemResponse{Success: false, Message: "ticket not found"})
		case errors.Is(err, redemption.ErrAlreadyRedeemed):
			c.JSON(http.StatusBadRequest, RedeemResponse{Success: false, Message: "ticket already redeemed"})
		case errors.Is(err, redemption.ErrInvalidSecret):
			c.JSON(http.StatusBadRequest, RedeemResponse{Success: false, Message: "invalid redemption secret"})
		default:
			c.JSON(http.StatusInternalServerError, RedeemResponse{Success: false, Message: "internal error"})
		}
	}
}

// @Summary  Create event with capacity
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateEvent(
			c.Request.Context(),
			req.Title,
			req.Venue,
			starts,
			req.Capacity,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	// Verification rejections are client-visible 400s carrying the reason;
	// transient failures below fall through to 500 so the intent stays
	// retryable.
	if rej, ok := verification.AsRejection(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "verification rejected: " + string(rej.Reason)})
		return
	}

	switch {
	// admin service
	case errors.Is(err, admin.ErrEventConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event conflict"})
		return
	// orders service
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
		return
	case errors.Is(err, orders.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, orders.ErrSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event sold out"})
		return
	// pacts service
	case errors.Is(err, pacts.ErrPactNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "pact not found"})
		return
	case errors.Is(err, pacts.ErrNoParticipants):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "pact requires at least one participant"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	// settlement service
	case errors.Is(err, settlement.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
		return
	case errors.Is(err, settlement.ErrPactNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "pact not found"})
		return
	case errors.Is(err, settlement.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "participant not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
