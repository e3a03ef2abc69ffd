// Package ledger talks to the milestone contract on the public ledger.
// Uses raw JSON-RPC over HTTP (no chain SDK); contract responses are
// decoded once, at this boundary, into typed structs.
package ledger

import (
	"context"
	"errors"
	"math/big"
)

// ErrUnavailable is returned when the ledger node cannot be reached at all.
var ErrUnavailable = errors.New("ledger: node unavailable")

// ErrReverted is returned when a mined transaction was rejected by the
// contract.
var ErrReverted = errors.New("ledger: transaction reverted")

// MilestoneSnapshot is one entry of the contract's milestone array as read
// from the chain. CurrentAmount only grows while Completed is false; once
// Completed is true both are frozen permanently.
type MilestoneSnapshot struct {
	Index         int
	PayoutWallet  string
	TargetAmount  *big.Int
	CurrentAmount *big.Int
	Completed     bool
}

// PendingTx is a broadcast-but-unmined donation transaction.
type PendingTx struct {
	Hash string
}

// Receipt is the inclusion proof for a mined donation transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// Reader reads milestone state from a campaign contract.
type Reader interface {
	MilestoneCount(ctx context.Context, contract string) (int, error)
	MilestoneAt(ctx context.Context, contract string, index int) (MilestoneSnapshot, error)
}

// Writer submits donation value transfers to a campaign contract.
// Signing is delegated to the node-held donor account.
type Writer interface {
	SubmitDonation(ctx context.Context, contract string, amount *big.Int) (PendingTx, error)
	AwaitReceipt(ctx context.Context, tx PendingTx) (Receipt, error)
}
