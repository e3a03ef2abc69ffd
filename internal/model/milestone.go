package model

import (
	"math/big"
	"time"
)

// MilestoneMetadata is the off-chain description of one contract milestone.
// LedgerIndex is the explicit join key to the contract's milestone array;
// rows are created at campaign setup and never mutated afterward.
type MilestoneMetadata struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	LedgerIndex  int       `json:"ledger_index"`
	Name         string    `json:"name"`
	SponsorName  string    `json:"sponsor_name,omitempty"`
	PayoutWallet string    `json:"payout_wallet"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReconciledMilestone is the merged off-chain + on-chain view of a
// milestone. Derived on every reconcile call, never persisted.
type ReconciledMilestone struct {
	Index           int      `json:"index"`
	Name            string   `json:"name"`
	TargetAmount    *big.Int `json:"-"`
	CurrentAmount   *big.Int `json:"-"`
	Completed       bool     `json:"completed"`
	ProgressPercent int      `json:"progress_percent"`
}
