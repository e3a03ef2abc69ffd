package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/chainraise/backend/internal/ledger"
	"github.com/chainraise/backend/internal/model"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockWriter struct {
	mu           sync.Mutex
	submitCalls  int
	submitFunc   func(ctx context.Context, contract string, amount *big.Int) (ledger.PendingTx, error)
	awaitFunc    func(ctx context.Context, tx ledger.PendingTx) (ledger.Receipt, error)
	submitGate   chan struct{} // when set, SubmitDonation blocks until closed
	submitNotify chan struct{} // when set, signaled on SubmitDonation entry
}

func (m *mockWriter) SubmitDonation(ctx context.Context, contract string, amount *big.Int) (ledger.PendingTx, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()
	if m.submitNotify != nil {
		m.submitNotify <- struct{}{}
	}
	if m.submitGate != nil {
		<-m.submitGate
	}
	if m.submitFunc != nil {
		return m.submitFunc(ctx, contract, amount)
	}
	return ledger.PendingTx{Hash: "0xtx"}, nil
}

func (m *mockWriter) AwaitReceipt(ctx context.Context, tx ledger.PendingTx) (ledger.Receipt, error) {
	if m.awaitFunc != nil {
		return m.awaitFunc(ctx, tx)
	}
	return ledger.Receipt{TxHash: tx.Hash, BlockNumber: 1}, nil
}

func (m *mockWriter) broadcasts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

type mockDonorRepo struct {
	mu         sync.Mutex
	calls      []string // recorded tx hashes
	recordFunc func(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error
}

func (m *mockDonorRepo) RecordDonation(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error {
	m.mu.Lock()
	m.calls = append(m.calls, txHash)
	m.mu.Unlock()
	if m.recordFunc != nil {
		return m.recordFunc(ctx, donorID, campaignID, txHash, amount)
	}
	return nil
}

type mockSyncQueue struct {
	mu       sync.Mutex
	enqueued []*model.PendingSync
	err      error
}

func (m *mockSyncQueue) Enqueue(ctx context.Context, ps *model.PendingSync) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, ps)
	return m.err
}

func newTestCoordinator(w *mockWriter, d *mockDonorRepo, q *mockSyncQueue) *DonationCoordinator {
	return NewDonationCoordinator("req-1", "donor-1", testRef, w, d, q, time.Second)
}

// ---------------------------------------------------------------------------
// Amount entry and validation
// ---------------------------------------------------------------------------

func TestCoordinator_ProceedWithValidAmount(t *testing.T) {
	c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})

	if err := c.SetAmount("1000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Proceed(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.State(); got != model.StateConfirming {
		t.Errorf("expected confirming, got %q", got)
	}
}

func TestCoordinator_RejectsBadAmounts(t *testing.T) {
	for _, input := range []string{"-5", "0", "abc", "", "1.5"} {
		c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})
		_ = c.SetAmount(input)

		err := c.Proceed()
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", input, err)
		}
		if got := c.State(); got != model.StateAmount {
			t.Errorf("amount %q: state should stay amount, got %q", input, got)
		}
	}
}

func TestCoordinator_BackRetainsAmount(t *testing.T) {
	c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("500")
	_ = c.Proceed()

	if err := c.Back(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.State(); got != model.StateAmount {
		t.Fatalf("expected amount state, got %q", got)
	}
	if snap := c.Snapshot(); snap.Amount != "500" {
		t.Errorf("amount not retained after back: %q", snap.Amount)
	}
}

func TestCoordinator_NoStateSkipping(t *testing.T) {
	c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})

	// Confirm straight from the amount state is not a legal edge.
	err := c.Confirm(context.Background())
	var wrongState *WrongStateError
	if !errors.As(err, &wrongState) {
		t.Fatalf("expected WrongStateError, got %v", err)
	}
	if got := c.State(); got != model.StateAmount {
		t.Errorf("state changed by rejected transition: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Confirm: happy path and failure kinds
// ---------------------------------------------------------------------------

func TestCoordinator_ConfirmCompletesAndRecordsAggregate(t *testing.T) {
	writer := &mockWriter{}
	donors := &mockDonorRepo{}
	c := newTestCoordinator(writer, donors, &mockSyncQueue{})
	_ = c.SetAmount("1000")
	_ = c.Proceed()

	if err := c.Confirm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != model.StateCompleted {
		t.Fatalf("expected completed, got %q", snap.State)
	}
	if snap.TxHash != "0xtx" {
		t.Errorf("completed request must expose the tx hash, got %q", snap.TxHash)
	}
	if len(donors.calls) != 1 || donors.calls[0] != "0xtx" {
		t.Errorf("expected one aggregate write for 0xtx, got %v", donors.calls)
	}
}

func TestCoordinator_SubmitFailureIsRetryable(t *testing.T) {
	writer := &mockWriter{
		submitFunc: func(ctx context.Context, contract string, amount *big.Int) (ledger.PendingTx, error) {
			return ledger.PendingTx{}, errors.New("user rejected")
		},
	}
	c := newTestCoordinator(writer, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("1000")
	_ = c.Proceed()

	if err := c.Confirm(context.Background()); err != nil {
		t.Fatalf("confirm itself should not error, got %v", err)
	}

	snap := c.Snapshot()
	if snap.State != model.StateError {
		t.Fatalf("expected error state, got %q", snap.State)
	}
	if snap.FailureKind != model.FailureSubmit {
		t.Errorf("expected submit failure kind, got %q", snap.FailureKind)
	}
	// The raw message must be preserved verbatim.
	if snap.ErrorMessage != "user rejected" {
		t.Errorf("raw failure message not preserved: %q", snap.ErrorMessage)
	}
}

func TestCoordinator_RevertFailureKind(t *testing.T) {
	writer := &mockWriter{
		awaitFunc: func(ctx context.Context, tx ledger.PendingTx) (ledger.Receipt, error) {
			return ledger.Receipt{}, fmt.Errorf("%w: %s", ledger.ErrReverted, tx.Hash)
		},
	}
	c := newTestCoordinator(writer, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("1000")
	_ = c.Proceed()
	_ = c.Confirm(context.Background())

	if snap := c.Snapshot(); snap.FailureKind != model.FailureRevert {
		t.Errorf("expected revert failure kind, got %q", snap.FailureKind)
	}
}

func TestCoordinator_TimeoutFailureKindIsDistinct(t *testing.T) {
	writer := &mockWriter{
		awaitFunc: func(ctx context.Context, tx ledger.PendingTx) (ledger.Receipt, error) {
			<-ctx.Done()
			return ledger.Receipt{}, fmt.Errorf("ledger: await receipt: %w", ctx.Err())
		},
	}
	c := NewDonationCoordinator("req-1", "donor-1", testRef, writer, &mockDonorRepo{}, &mockSyncQueue{}, 20*time.Millisecond)
	_ = c.SetAmount("1000")
	_ = c.Proceed()
	_ = c.Confirm(context.Background())

	snap := c.Snapshot()
	if snap.State != model.StateError {
		t.Fatalf("expected error state, got %q", snap.State)
	}
	if snap.FailureKind != model.FailureTimeout {
		t.Errorf("expected timeout failure kind, got %q", snap.FailureKind)
	}
}

// ---------------------------------------------------------------------------
// Single-flight
// ---------------------------------------------------------------------------

func TestCoordinator_ConfirmTwiceBroadcastsOnce(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	writer := &mockWriter{submitGate: gate, submitNotify: entered}
	c := newTestCoordinator(writer, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("1000")
	_ = c.Proceed()

	done := make(chan error, 1)
	go func() { done <- c.Confirm(context.Background()) }()
	<-entered // first confirm is inside the broadcast

	if err := c.Confirm(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("second confirm: expected ErrInFlight, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if got := writer.broadcasts(); got != 1 {
		t.Errorf("expected exactly 1 broadcast, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Retry
// ---------------------------------------------------------------------------

func TestCoordinator_RetryPreservesAmount(t *testing.T) {
	attempts := 0
	var amounts []string
	writer := &mockWriter{}
	writer.submitFunc = func(ctx context.Context, contract string, amount *big.Int) (ledger.PendingTx, error) {
		attempts++
		amounts = append(amounts, amount.String())
		if attempts == 1 {
			return ledger.PendingTx{}, errors.New("network glitch")
		}
		return ledger.PendingTx{Hash: "0xtx2"}, nil
	}
	c := newTestCoordinator(writer, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("4242")
	_ = c.Proceed()
	_ = c.Confirm(context.Background())

	if got := c.State(); got != model.StateError {
		t.Fatalf("expected error after first attempt, got %q", got)
	}

	if err := c.Retry(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := c.State(); got != model.StateCompleted {
		t.Fatalf("expected completed after retry, got %q", got)
	}
	if len(amounts) != 2 || amounts[0] != "4242" || amounts[1] != "4242" {
		t.Errorf("retry must reuse the original amount, got %v", amounts)
	}
}

func TestCoordinator_RetryOnlyFromError(t *testing.T) {
	c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("10")
	_ = c.Proceed()

	var wrongState *WrongStateError
	if err := c.Retry(context.Background()); !errors.As(err, &wrongState) {
		t.Errorf("retry from confirming: expected WrongStateError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Terminal states
// ---------------------------------------------------------------------------

func TestCoordinator_CompletedIsImmutable(t *testing.T) {
	c := newTestCoordinator(&mockWriter{}, &mockDonorRepo{}, &mockSyncQueue{})
	_ = c.SetAmount("10")
	_ = c.Proceed()
	_ = c.Confirm(context.Background())

	if got := c.State(); got != model.StateCompleted {
		t.Fatalf("setup failed, state %q", got)
	}

	for name, op := range map[string]func() error{
		"set amount": func() error { return c.SetAmount("1") },
		"proceed":    func() error { return c.Proceed() },
		"back":       func() error { return c.Back() },
		"confirm":    func() error { return c.Confirm(context.Background()) },
		"retry":      func() error { return c.Retry(context.Background()) },
	} {
		if err := op(); !errors.Is(err, ErrTerminal) {
			t.Errorf("%s on completed request: expected ErrTerminal, got %v", name, err)
		}
	}
	if got := c.State(); got != model.StateCompleted {
		t.Errorf("terminal state mutated to %q", got)
	}
}

// ---------------------------------------------------------------------------
// Aggregate write failure after on-chain success
// ---------------------------------------------------------------------------

func TestCoordinator_AggregateFailureGoesPendingSync(t *testing.T) {
	donors := &mockDonorRepo{
		recordFunc: func(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error {
			return errors.New("db unavailable")
		},
	}
	queue := &mockSyncQueue{}
	c := newTestCoordinator(&mockWriter{}, donors, queue)
	_ = c.SetAmount("777")
	_ = c.Proceed()
	_ = c.Confirm(context.Background())

	snap := c.Snapshot()
	if snap.State != model.StateCompletedPendingSync {
		t.Fatalf("expected completed_pending_sync, got %q", snap.State)
	}
	if snap.TxHash != "0xtx" {
		t.Errorf("tx hash must survive the aggregate failure, got %q", snap.TxHash)
	}

	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 pending sync, got %d", len(queue.enqueued))
	}
	ps := queue.enqueued[0]
	if ps.TxHash != "0xtx" || ps.DonorID != "donor-1" || ps.Amount.String() != "777" {
		t.Errorf("pending sync fields wrong: %+v", ps)
	}

	// Terminal: a confirm retry here would double-donate.
	if err := c.Confirm(context.Background()); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}
