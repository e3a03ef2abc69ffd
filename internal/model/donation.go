package model

import (
	"math/big"
	"time"
)

// DonationState is the lifecycle state of one donation request.
type DonationState string

const (
	// StateAmount: the donor is entering an amount. Initial state.
	StateAmount DonationState = "amount"
	// StateConfirming: the amount validated; awaiting donor confirmation.
	StateConfirming DonationState = "confirming"
	// StateProcessing: the transaction was broadcast; awaiting the receipt.
	StateProcessing DonationState = "processing"
	// StateCompleted: on-chain success and the donor aggregate is updated.
	StateCompleted DonationState = "completed"
	// StateCompletedPendingSync: on-chain success but the aggregate write
	// failed. Retrying confirm here would double-donate, so this is a
	// distinct terminal state; a background job retries only the aggregate.
	StateCompletedPendingSync DonationState = "completed_pending_sync"
	// StateError: signing, broadcast, revert or timeout failure. Retryable.
	StateError DonationState = "error"
)

// Terminal reports whether no further transition is possible for the
// request (a new request must be created to donate again).
func (s DonationState) Terminal() bool {
	return s == StateCompleted || s == StateCompletedPendingSync
}

// FailureKind classifies how a donation attempt failed.
type FailureKind string

const (
	FailureNone    FailureKind = ""
	FailureSubmit  FailureKind = "submit"  // signing or broadcast rejected
	FailureRevert  FailureKind = "revert"  // mined but reverted by the contract
	FailureTimeout FailureKind = "timeout" // receipt not seen within the deadline
)

// DonationSnapshot is a read-only view of a donation request, safe to
// serialize for rendering.
type DonationSnapshot struct {
	ID           string        `json:"id"`
	Campaign     CampaignRef   `json:"campaign"`
	State        DonationState `json:"state"`
	Amount       string        `json:"amount,omitempty"`
	TxHash       string        `json:"tx_hash,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	FailureKind  FailureKind   `json:"failure_kind,omitempty"`
}

// PendingSync is a queued aggregate write for a donation that already
// succeeded on chain. Keyed by transaction hash so retries are idempotent.
type PendingSync struct {
	TxHash     string    `json:"tx_hash"`
	DonorID    string    `json:"donor_id"`
	CampaignID string    `json:"campaign_id"`
	Amount     *big.Int  `json:"-"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
