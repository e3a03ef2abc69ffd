package repository

import (
	"context"
	"math/big"

	"github.com/chainraise/backend/internal/model"
)

// CampaignRepository reads campaign and milestone metadata.
type CampaignRepository interface {
	List(ctx context.Context) ([]*model.Campaign, error)
	GetByLedgerAddress(ctx context.Context, address string) (*model.Campaign, error)
	// FindIDByLedgerAddress resolves the internal campaign id for a
	// contract address. Returns ErrNotFound when no campaign matches.
	FindIDByLedgerAddress(ctx context.Context, address string) (string, error)
	// ListMilestones returns the campaign's milestone metadata ordered by
	// ledger index.
	ListMilestones(ctx context.Context, campaignID string) ([]*model.MilestoneMetadata, error)
}

// DonorRepository owns the donor's cumulative-donated aggregate.
type DonorRepository interface {
	GetTotal(ctx context.Context, donorID string) (*big.Int, error)
	// RecordDonation applies one confirmed on-chain donation to the donor
	// aggregate. Idempotent on txHash: recording the same transaction twice
	// increments the total exactly once.
	RecordDonation(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error
}

// PendingSyncRepository queues aggregate writes that failed after an
// on-chain success, for the sync worker to retry.
type PendingSyncRepository interface {
	Enqueue(ctx context.Context, ps *model.PendingSync) error
	ListDue(ctx context.Context, limit int) ([]*model.PendingSync, error)
	Delete(ctx context.Context, txHash string) error
	MarkFailed(ctx context.Context, txHash, lastError string) error
}
