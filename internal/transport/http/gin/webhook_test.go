package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/service/registry"
	"github.com/mintgate/mintgate/internal/service/settlement"
	"github.com/mintgate/mintgate/internal/service/verification"
)

type fakeResolver struct {
	targets map[string]*domain.ReferenceTarget
}

func (f *fakeResolver) Resolve(_ context.Context, reference string) (*domain.ReferenceTarget, error) {
	if t, ok := f.targets[reference]; ok {
		return t, nil
	}
	return nil, registry.ErrReferenceNotFound
}

type settleCall struct {
	orderID   uuid.UUID
	signature string
	payer     string
}

type fakeSettler struct {
	orderErr  error
	errFor    map[uuid.UUID]error
	settled   map[uuid.UUID]bool
	calls     []settleCall
	partCalls int
}

func (f *fakeSettler) SettleOrder(_ context.Context, orderID uuid.UUID, signature, payer string) (*settlement.OrderOutcome, error) {
	f.calls = append(f.calls, settleCall{orderID: orderID, signature: signature, payer: payer})
	if err := f.errFor[orderID]; err != nil {
		return nil, err
	}
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.settled[orderID] {
		return &settlement.OrderOutcome{AlreadySettled: true, Status: domain.OrderPaid}, nil
	}
	if f.settled == nil {
		f.settled = make(map[uuid.UUID]bool)
	}
	f.settled[orderID] = true
	return &settlement.OrderOutcome{Status: domain.OrderPaid}, nil
}

func (f *fakeSettler) SettleParticipant(_ context.Context, _ uuid.UUID, _ int, _, _ string) (*settlement.ParticipantOutcome, error) {
	f.partCalls++
	return &settlement.ParticipantOutcome{}, nil
}

func newWebhookRig(t *testing.T, resolver ReferenceResolver, settler Settler, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewWebhookHandler(resolver, settler, WebhookConfig{Secret: secret}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	r := gin.New()
	r.POST("/", h.Receive)
	r.GET("/", h.Liveness)
	return r
}

func postEvents(t *testing.T, r *gin.Engine, secret string, events []WatcherEvent) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(events)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func watcherEvent(signature, payer string, accountKeys ...string) WatcherEvent {
	var ev WatcherEvent
	ev.Signature = signature
	ev.Transaction.Message.AccountKeys = accountKeys
	if payer != "" {
		ev.NativeTransfers = []WatcherTransfer{{FromUserAccount: payer, Amount: 1}}
	}
	return ev
}

func TestWebhook_RejectsMissingSecret(t *testing.T) {
	r := newWebhookRig(t, &fakeResolver{}, &fakeSettler{}, "hook-secret")

	w := postEvents(t, r, "", []WatcherEvent{watcherEvent("sig", "", "key")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	settler := &fakeSettler{}
	r := newWebhookRig(t, &fakeResolver{}, settler, "hook-secret")

	w := postEvents(t, r, "not-the-secret", []WatcherEvent{watcherEvent("sig", "", "key")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, settler.calls)
}

func TestWebhook_EmptySecretRefusesEverything(t *testing.T) {
	// An unset secret must fail closed, not open.
	r := newWebhookRig(t, &fakeResolver{}, &fakeSettler{}, "")

	w := postEvents(t, r, "", []WatcherEvent{watcherEvent("sig", "", "key")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_MalformedBody(t *testing.T) {
	r := newWebhookRig(t, &fakeResolver{}, &fakeSettler{}, "hook-secret")

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "hook-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_SettlesMatchedReference(t *testing.T) {
	orderID := uuid.New()
	resolver := &fakeResolver{targets: map[string]*domain.ReferenceTarget{
		"refKey": {Kind: domain.ReferenceOrder, OrderID: orderID},
	}}
	settler := &fakeSettler{}
	r := newWebhookRig(t, resolver, settler, "hook-secret")

	w := postEvents(t, r, "hook-secret", []WatcherEvent{
		watcherEvent("sig123", "payerWallet", "payerWallet", "merchant", "refKey"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, WebhookResponse{Processed: 1, Settled: 1, Skipped: 0}, resp)

	require.Len(t, settler.calls, 1)
	assert.Equal(t, orderID, settler.calls[0].orderID)
	assert.Equal(t, "sig123", settler.calls[0].signature)
	assert.Equal(t, "payerWallet", settler.calls[0].payer)
}

func TestWebhook_UnknownReferencesAreSkipped(t *testing.T) {
	settler := &fakeSettler{}
	r := newWebhookRig(t, &fakeResolver{}, settler, "hook-secret")

	// Foreign ledger traffic: none of the keys resolve.
	w := postEvents(t, r, "hook-secret", []WatcherEvent{
		watcherEvent("sig1", "", "a", "b"),
		watcherEvent("sig2", "", "c"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, WebhookResponse{Processed: 2, Settled: 0, Skipped: 2}, resp)
	assert.Empty(t, settler.calls)
}

func TestWebhook_OneBadEventDoesNotAbortBatch(t *testing.T) {
	badOrder := uuid.New()
	goodOrder := uuid.New()
	resolver := &fakeResolver{targets: map[string]*domain.ReferenceTarget{
		"badRef":  {Kind: domain.ReferenceOrder, OrderID: badOrder},
		"goodRef": {Kind: domain.ReferenceOrder, OrderID: goodOrder},
	}}

	settler := &fakeSettler{errFor: map[uuid.UUID]error{
		badOrder: &verification.RejectionError{Reason: verification.ReasonAmountMismatch},
	}}
	r := newWebhookRig(t, resolver, settler, "hook-secret")

	// First event rejects, second settles, in the same delivery.
	w := postEvents(t, r, "hook-secret", []WatcherEvent{
		watcherEvent("sig1", "", "badRef"),
		watcherEvent("sig2", "", "goodRef"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, WebhookResponse{Processed: 2, Settled: 1, Skipped: 1}, resp)
	require.Len(t, settler.calls, 2, "a rejected event must not abort the rest of the batch")
}

func TestWebhook_TransientSettleErrorIsSkippedNotFatal(t *testing.T) {
	orderID := uuid.New()
	resolver := &fakeResolver{targets: map[string]*domain.ReferenceTarget{
		"refKey": {Kind: domain.ReferenceOrder, OrderID: orderID},
	}}
	settler := &fakeSettler{orderErr: errors.New("store unavailable")}
	r := newWebhookRig(t, resolver, settler, "hook-secret")

	w := postEvents(t, r, "hook-secret", []WatcherEvent{watcherEvent("sig", "", "refKey")})
	require.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, WebhookResponse{Processed: 1, Settled: 0, Skipped: 1}, resp)
}

func TestWebhook_ReplayedDeliveryIsAbsorbed(t *testing.T) {
	orderID := uuid.New()
	resolver := &fakeResolver{targets: map[string]*domain.ReferenceTarget{
		"refKey": {Kind: domain.ReferenceOrder, OrderID: orderID},
	}}
	settler := &fakeSettler{}
	r := newWebhookRig(t, resolver, settler, "hook-secret")

	ev := watcherEvent("sig123", "", "refKey")

	w := postEvents(t, r, "hook-secret", []WatcherEvent{ev})
	require.Equal(t, http.StatusOK, w.Code)

	// The watcher re-delivers the same batch.
	w = postEvents(t, r, "hook-secret", []WatcherEvent{ev})
	require.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, WebhookResponse{Processed: 1, Settled: 0, Skipped: 1}, resp)
}

func TestWebhook_ParticipantReference(t *testing.T) {
	pactID := uuid.New()
	resolver := &fakeResolver{targets: map[string]*domain.ReferenceTarget{
		"partRef": {Kind: domain.ReferenceParticipant, PactID: pactID, ParticipantIdx: 2},
	}}
	settler := &fakeSettler{}
	r := newWebhookRig(t, resolver, settler, "hook-secret")

	w := postEvents(t, r, "hook-secret", []WatcherEvent{watcherEvent("sig", "", "partRef")})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, settler.partCalls)
	assert.Empty(t, settler.calls)
}

func TestWebhook_Liveness(t *testing.T) {
	r := newWebhookRig(t, &fakeResolver{}, &fakeSettler{}, "hook-secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
