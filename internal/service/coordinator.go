package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/chainraise/backend/internal/ledger"
	"github.com/chainraise/backend/internal/model"
)

// ---------------------------------------------------------------------------
// Minimal interfaces (only what DonationCoordinator needs)
// ---------------------------------------------------------------------------

type DonorAggregateRepo interface {
	RecordDonation(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error
}

type SyncQueue interface {
	Enqueue(ctx context.Context, ps *model.PendingSync) error
}

// ---------------------------------------------------------------------------
// Transition errors
// ---------------------------------------------------------------------------

// ErrInvalidAmount is a local validation failure: the request stays in the
// amount state and no error state is entered.
var ErrInvalidAmount = errors.New("amount must be a positive integer of ledger base units")

// ErrInFlight is returned when Confirm is called while a broadcast is
// already in progress. Exactly one broadcast happens per attempt.
var ErrInFlight = errors.New("confirm already in flight")

// ErrTerminal is returned for any operation on a completed request.
var ErrTerminal = errors.New("donation request is terminal")

// WrongStateError reports a transition attempted from a state that does
// not allow it.
type WrongStateError struct {
	Op    string
	State model.DonationState
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %q", e.Op, e.State)
}

// ---------------------------------------------------------------------------
// DonationCoordinator
// ---------------------------------------------------------------------------

// DonationCoordinator drives one donation request through
// amount -> confirming -> processing -> completed/error. Transitions are
// strictly sequential: the mutex plus the inFlight guard make a second
// Confirm a rejected call, never a second broadcast. Once the transaction
// is submitted the flow cannot be cancelled, only observed.
type DonationCoordinator struct {
	id       string
	donorID  string
	campaign model.CampaignRef

	writer         ledger.Writer
	donors         DonorAggregateRepo
	syncQueue      SyncQueue
	confirmTimeout time.Duration

	mu          sync.Mutex
	state       model.DonationState
	amountInput string
	amount      *big.Int
	txHash      string
	errMessage  string
	failureKind model.FailureKind
	inFlight    bool
}

// NewDonationCoordinator creates a request in the amount state.
func NewDonationCoordinator(
	id, donorID string,
	campaign model.CampaignRef,
	writer ledger.Writer,
	donors DonorAggregateRepo,
	syncQueue SyncQueue,
	confirmTimeout time.Duration,
) *DonationCoordinator {
	return &DonationCoordinator{
		id:             id,
		donorID:        donorID,
		campaign:       campaign,
		writer:         writer,
		donors:         donors,
		syncQueue:      syncQueue,
		confirmTimeout: confirmTimeout,
		state:          model.StateAmount,
	}
}

func (c *DonationCoordinator) ID() string      { return c.id }
func (c *DonationCoordinator) DonorID() string { return c.donorID }

// Snapshot returns a read-only view of the request for rendering.
func (c *DonationCoordinator) Snapshot() model.DonationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount := c.amountInput
	if c.amount != nil {
		amount = c.amount.String()
	}
	return model.DonationSnapshot{
		ID:           c.id,
		Campaign:     c.campaign,
		State:        c.state,
		Amount:       amount,
		TxHash:       c.txHash,
		ErrorMessage: c.errMessage,
		FailureKind:  c.failureKind,
	}
}

// State returns the current lifecycle state.
func (c *DonationCoordinator) State() model.DonationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetAmount stores the donor's raw amount entry. Only valid while the
// request is in the amount state.
func (c *DonationCoordinator) SetAmount(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return ErrTerminal
	}
	if c.state != model.StateAmount {
		return &WrongStateError{Op: "set amount", State: c.state}
	}
	c.amountInput = input
	return nil
}

// Proceed validates the entered amount and moves to confirming. A bad
// amount is rejected without any state change.
func (c *DonationCoordinator) Proceed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return ErrTerminal
	}
	if c.state != model.StateAmount {
		return &WrongStateError{Op: "proceed", State: c.state}
	}

	amount, ok := new(big.Int).SetString(c.amountInput, 10)
	if !ok || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	c.amount = amount
	c.state = model.StateConfirming
	return nil
}

// Back returns from confirming to the amount state. The entered amount is
// kept for editing.
func (c *DonationCoordinator) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return ErrTerminal
	}
	if c.state != model.StateConfirming {
		return &WrongStateError{Op: "back", State: c.state}
	}
	c.state = model.StateAmount
	return nil
}

// Confirm broadcasts the donation and waits for its receipt, then applies
// the donor aggregate. This is the only operation with an irreversible
// external side effect.
func (c *DonationCoordinator) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return ErrTerminal
	}
	if c.inFlight || c.state == model.StateProcessing {
		c.mu.Unlock()
		return ErrInFlight
	}
	if c.state != model.StateConfirming {
		c.mu.Unlock()
		return &WrongStateError{Op: "confirm", State: c.state}
	}
	c.state = model.StateProcessing
	c.inFlight = true
	amount := c.amount
	c.mu.Unlock()

	tx, err := c.writer.SubmitDonation(ctx, c.campaign.LedgerAddress, amount)
	if err != nil {
		c.fail(model.FailureSubmit, err)
		return nil
	}
	c.setTxHash(tx.Hash)

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := c.writer.AwaitReceipt(waitCtx, tx)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrReverted):
			c.fail(model.FailureRevert, err)
		case errors.Is(err, context.DeadlineExceeded):
			c.fail(model.FailureTimeout, err)
		default:
			// Outcome unknown: the transaction may still confirm later.
			// Treated like a timeout so the donor sees a distinct message
			// from a plain broadcast rejection.
			c.fail(model.FailureTimeout, err)
		}
		return nil
	}

	c.settle(ctx, receipt, amount)
	return nil
}

// Retry re-attempts Confirm with the stored amount. Only valid from the
// error state; the donor does not re-enter the amount step.
func (c *DonationCoordinator) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return ErrTerminal
	}
	if c.state != model.StateError {
		c.mu.Unlock()
		return &WrongStateError{Op: "retry", State: c.state}
	}
	c.state = model.StateConfirming
	c.errMessage = ""
	c.failureKind = model.FailureNone
	c.txHash = ""
	c.mu.Unlock()

	return c.Confirm(ctx)
}

// fail records a broadcast-path failure verbatim and enters the error
// state. Never called after the aggregate step.
func (c *DonationCoordinator) fail(kind model.FailureKind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = model.StateError
	c.failureKind = kind
	c.errMessage = err.Error()
	c.inFlight = false
	slog.Warn("donation failed",
		"request_id", c.id, "campaign", c.campaign.LedgerAddress,
		"kind", string(kind), "error", err)
}

func (c *DonationCoordinator) setTxHash(hash string) {
	c.mu.Lock()
	c.txHash = hash
	c.mu.Unlock()
}

// settle runs after on-chain success. The ledger already holds the value,
// so a failed aggregate write must not land in the error state (a confirm
// retry would double-donate): it becomes completed_pending_sync and the
// sync worker retries only the aggregate write, keyed by tx hash.
func (c *DonationCoordinator) settle(ctx context.Context, receipt ledger.Receipt, amount *big.Int) {
	err := c.donors.RecordDonation(ctx, c.donorID, c.campaign.ID, receipt.TxHash, amount)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.txHash = receipt.TxHash

	if err == nil {
		c.state = model.StateCompleted
		slog.Info("donation completed",
			"request_id", c.id, "campaign", c.campaign.LedgerAddress,
			"tx_hash", receipt.TxHash, "amount", amount.String())
		return
	}

	c.state = model.StateCompletedPendingSync
	slog.Error("donation confirmed on chain but aggregate write failed",
		"request_id", c.id, "donor_id", c.donorID, "tx_hash", receipt.TxHash, "error", err)

	if qErr := c.syncQueue.Enqueue(ctx, &model.PendingSync{
		TxHash:     receipt.TxHash,
		DonorID:    c.donorID,
		CampaignID: c.campaign.ID,
		Amount:     amount,
	}); qErr != nil {
		// Last resort: everything needed for manual reconciliation is in
		// this record.
		slog.Error("pending sync enqueue failed",
			"request_id", c.id, "donor_id", c.donorID, "campaign_id", c.campaign.ID,
			"tx_hash", receipt.TxHash, "amount", amount.String(), "error", qErr)
	}
}
