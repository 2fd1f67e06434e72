package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintgate/mintgate/internal/domain"
	"github.com/mintgate/mintgate/internal/repository"
	"github.com/mintgate/mintgate/internal/service/verification"
)

// memStore emulates the backing store's conditional writes under a mutex:
// the same guard semantics the real transaction gives, without Postgres.
type memStore struct {
	mu           sync.Mutex
	orders       map[uuid.UUID]*domain.Order
	tickets      map[uuid.UUID][]domain.Ticket
	participants map[uuid.UUID][]domain.Participant
	receivers    map[uuid.UUID]string
	references   map[string]bool

	failOrderErr   error
	settleOrderErr error
	settleCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		orders:       make(map[uuid.UUID]*domain.Order),
		tickets:      make(map[uuid.UUID][]domain.Ticket),
		participants: make(map[uuid.UUID][]domain.Participant),
		receivers:    make(map[uuid.UUID]string),
		references:   make(map[string]bool),
	}
}

func (m *memStore) Order(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) TicketsByOrder(_ context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Ticket(nil), m.tickets[orderID]...), nil
}

func (m *memStore) SettleOrder(
	_ context.Context,
	order *domain.Order,
	signature, payerWallet string,
	tickets []domain.Ticket,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settleCalls++
	if m.settleOrderErr != nil {
		return false, m.settleOrderErr
	}

	stored, ok := m.orders[order.ID]
	if !ok || stored.Status != domain.OrderPending {
		return false, nil
	}

	stored.Status = domain.OrderPaid
	stored.TxSignature = signature
	if payerWallet != "" {
		stored.BuyerWallet = payerWallet
	}
	m.tickets[order.ID] = append([]domain.Ticket(nil), tickets...)
	delete(m.references, stored.Reference)

	return true, nil
}

func (m *memStore) FailOrder(_ context.Context, orderID uuid.UUID, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOrderErr != nil {
		return m.failOrderErr
	}

	stored, ok := m.orders[orderID]
	if !ok || stored.Status != domain.OrderPending {
		return nil
	}
	stored.Status = domain.OrderFailed
	stored.TxSignature = signature

	return nil
}

func (m *memStore) Participant(_ context.Context, pactID uuid.UUID, idx int) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.participants[pactID] {
		if p.Idx == idx {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) PactReceiver(_ context.Context, pactID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.receivers[pactID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return r, nil
}

func (m *memStore) SettleParticipant(
	_ context.Context,
	pactID uuid.UUID,
	idx int,
	signature, _ string,
	reference string,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := m.participants[pactID]
	for i := range parts {
		if parts[i].Idx != idx {
			continue
		}
		if parts[i].Paid {
			return false, nil
		}
		parts[i].Paid = true
		parts[i].PaidSignature = signature
		delete(m.references, reference)
		return true, nil
	}

	return false, nil
}

// okVerifier accepts everything; rejectVerifier rejects everything with the
// given reason; downVerifier simulates an unreachable ledger node.
type okVerifier struct{}

func (okVerifier) Verify(context.Context, verification.Intent, string) error { return nil }

type rejectVerifier struct{ reason verification.Reason }

func (v rejectVerifier) Verify(context.Context, verification.Intent, string) error {
	return &verification.RejectionError{Reason: v.reason}
}

type downVerifier struct{}

func (downVerifier) Verify(context.Context, verification.Intent, string) error {
	return errors.New("rpc node unreachable")
}

func pendingOrder(quantity int) *domain.Order {
	return &domain.Order{
		ID:             uuid.New(),
		EventID:        1,
		ReceiverWallet: "merchantWallet",
		AmountLamports: 1_000_000,
		Reference:      "ref-abc",
		Quantity:       quantity,
		Status:         domain.OrderPending,
	}
}

func TestSettleOrder_Success(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(2)
	store.orders[order.ID] = order
	store.references[order.Reference] = true

	svc := New(store, okVerifier{}, nil, nil)

	out, err := svc.SettleOrder(context.Background(), order.ID, "sig", "payerWallet")
	require.NoError(t, err)

	assert.False(t, out.AlreadySettled)
	assert.Equal(t, domain.OrderPaid, out.Status)
	assert.Len(t, out.TicketIDs, 2)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPaid, stored.Status)
	assert.Equal(t, "sig", stored.TxSignature)
	assert.Equal(t, "payerWallet", stored.BuyerWallet)
	assert.False(t, store.references[order.Reference], "reference must be consumed with the settlement")

	tickets, _ := store.TicketsByOrder(context.Background(), order.ID)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketIssued, tk.Status)
		assert.Equal(t, "payerWallet", tk.OwnerWallet)
		assert.Len(t, tk.RedemptionSecret, 32)
	}
}

func TestSettleOrder_ExactlyOnceUnderRace(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	store.orders[order.ID] = order

	svc := New(store, okVerifier{}, nil, nil)

	// Direct call, webhook and poller all observing the same payment.
	const racers = 8
	outcomes := make([]*OrderOutcome, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.SettleOrder(context.Background(), order.ID, "sig", "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		if !outcomes[i].AlreadySettled {
			winners++
		}
		assert.Equal(t, domain.OrderPaid, outcomes[i].Status)
		assert.Len(t, outcomes[i].TicketIDs, 1)
	}
	assert.Equal(t, 1, winners, "exactly one caller may perform the transition")

	tickets, _ := store.TicketsByOrder(context.Background(), order.ID)
	assert.Len(t, tickets, 1, "losing callers must not duplicate tickets")
}

func TestSettleOrder_AlreadyPaidIsSuccessShaped(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	order.Status = domain.OrderPaid
	store.orders[order.ID] = order
	store.tickets[order.ID] = []domain.Ticket{{ID: uuid.New(), OrderID: order.ID}}

	svc := New(store, rejectVerifier{reason: verification.ReasonAmountMismatch}, nil, nil)

	// The verifier would reject, but a settled order short-circuits before
	// any ledger lookup.
	out, err := svc.SettleOrder(context.Background(), order.ID, "other-sig", "")
	require.NoError(t, err)

	assert.True(t, out.AlreadySettled)
	assert.Equal(t, domain.OrderPaid, out.Status)
	assert.Len(t, out.TicketIDs, 1)
}

func TestSettleOrder_RejectionPersistsFailed(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	store.orders[order.ID] = order

	svc := New(store, rejectVerifier{reason: verification.ReasonAmountMismatch}, nil, nil)

	_, err := svc.SettleOrder(context.Background(), order.ID, "sig", "")
	require.Error(t, err)

	rej, ok := verification.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, verification.ReasonAmountMismatch, rej.Reason)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderFailed, stored.Status)
}

func TestSettleOrder_FailedIsTerminal(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	order.Status = domain.OrderFailed
	store.orders[order.ID] = order

	// Even a now-valid signature cannot revive a failed order.
	svc := New(store, okVerifier{}, nil, nil)

	out, err := svc.SettleOrder(context.Background(), order.ID, "valid-sig", "")
	require.NoError(t, err)

	assert.True(t, out.AlreadySettled)
	assert.Equal(t, domain.OrderFailed, out.Status)
	assert.Empty(t, out.TicketIDs)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderFailed, stored.Status)
}

func TestSettleOrder_TransientVerifyLeavesPending(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	store.orders[order.ID] = order

	svc := New(store, downVerifier{}, nil, nil)

	_, err := svc.SettleOrder(context.Background(), order.ID, "sig", "")
	require.Error(t, err)

	_, ok := verification.AsRejection(err)
	assert.False(t, ok)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPending, stored.Status, "transient failures must not change state")
}

func TestSettleOrder_FailWriteErrorKeepsPending(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	store.orders[order.ID] = order
	store.failOrderErr = errors.New("store unavailable")

	svc := New(store, rejectVerifier{reason: verification.ReasonNotFound}, nil, nil)

	// Rejection observed, but the failed write did not land: surface as
	// transient so the caller retries instead of trusting a lost write.
	_, err := svc.SettleOrder(context.Background(), order.ID, "sig", "")
	require.Error(t, err)

	_, ok := verification.AsRejection(err)
	assert.False(t, ok)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestSettleOrder_StoreErrorLeavesPending(t *testing.T) {
	store := newMemStore()
	order := pendingOrder(1)
	store.orders[order.ID] = order
	store.settleOrderErr = errors.New("serialization conflict")

	svc := New(store, okVerifier{}, nil, nil)

	_, err := svc.SettleOrder(context.Background(), order.ID, "sig", "")
	require.Error(t, err)

	stored, _ := store.Order(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestSettleOrder_UnknownOrder(t *testing.T) {
	svc := New(newMemStore(), okVerifier{}, nil, nil)

	_, err := svc.SettleOrder(context.Background(), uuid.New(), "sig", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func threePersonPact(store *memStore) uuid.UUID {
	pactID := uuid.New()
	store.receivers[pactID] = "organizerWallet"
	for i := 0; i < 3; i++ {
		ref := "ref-part-" + string(rune('a'+i))
		store.participants[pactID] = append(store.participants[pactID], domain.Participant{
			PactID:         pactID,
			Idx:            i,
			AmountLamports: 500_000,
			Reference:      ref,
		})
		store.references[ref] = true
	}
	return pactID
}

func TestSettleParticipant_IndependentUnits(t *testing.T) {
	store := newMemStore()
	pactID := threePersonPact(store)

	svc := New(store, okVerifier{}, nil, nil)

	out, err := svc.SettleParticipant(context.Background(), pactID, 1, "sig-1", "wallet-1")
	require.NoError(t, err)
	assert.False(t, out.AlreadySettled)

	// Only participant 1 flipped; the others stay payable.
	for i := 0; i < 3; i++ {
		p, err := store.Participant(context.Background(), pactID, i)
		require.NoError(t, err)
		assert.Equal(t, i == 1, p.Paid, "participant %d", i)
	}
	assert.False(t, store.references["ref-part-b"], "settled participant's reference must be consumed")
	assert.True(t, store.references["ref-part-a"])
	assert.True(t, store.references["ref-part-c"])
}

func TestSettleParticipant_RepeatIsAlreadySettled(t *testing.T) {
	store := newMemStore()
	pactID := threePersonPact(store)

	svc := New(store, okVerifier{}, nil, nil)

	_, err := svc.SettleParticipant(context.Background(), pactID, 0, "sig", "")
	require.NoError(t, err)

	out, err := svc.SettleParticipant(context.Background(), pactID, 0, "sig", "")
	require.NoError(t, err)
	assert.True(t, out.AlreadySettled)
}

func TestSettleParticipant_RejectionIsNotPersisted(t *testing.T) {
	store := newMemStore()
	pactID := threePersonPact(store)

	svc := New(store, rejectVerifier{reason: verification.ReasonAmountMismatch}, nil, nil)

	_, err := svc.SettleParticipant(context.Background(), pactID, 0, "bad-sig", "")
	require.Error(t, err)

	_, ok := verification.AsRejection(err)
	assert.True(t, ok)

	// Participants have no failed state: a bad claim leaves them payable.
	p, err := store.Participant(context.Background(), pactID, 0)
	require.NoError(t, err)
	assert.False(t, p.Paid)
}

func TestSettleParticipant_UnknownParticipant(t *testing.T) {
	store := newMemStore()
	pactID := threePersonPact(store)

	svc := New(store, okVerifier{}, nil, nil)

	_, err := svc.SettleParticipant(context.Background(), pactID, 7, "sig", "")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}
