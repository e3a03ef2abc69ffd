package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/chainraise/backend/internal/ledger"
	"github.com/chainraise/backend/internal/model"
	"github.com/chainraise/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Minimal interfaces (only what MilestoneReconciler needs)
// ---------------------------------------------------------------------------

type ReconcilerCampaignRepo interface {
	FindIDByLedgerAddress(ctx context.Context, address string) (string, error)
	ListMilestones(ctx context.Context, campaignID string) ([]*model.MilestoneMetadata, error)
}

// ---------------------------------------------------------------------------
// MilestoneReconciler
// ---------------------------------------------------------------------------

// ErrLedgerUnavailable signals that the ledger could not be read at all.
// Reconciliation has no side effects, so the caller may always retry.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// fallbackNames covers ledger milestones that have no metadata row yet
// (metadata may be back-filled after contract deployment). Cycled by index.
var fallbackNames = []string{
	"Community Milestone",
	"Funding Goal",
	"Project Phase",
	"Support Target",
	"Campaign Stage",
	"Outreach Goal",
	"Stretch Goal",
}

// MilestoneReconciler merges off-chain milestone metadata with on-chain
// milestone state into one ordered view.
type MilestoneReconciler struct {
	campaigns ReconcilerCampaignRepo
	reader    ledger.Reader
}

func NewMilestoneReconciler(campaigns ReconcilerCampaignRepo, reader ledger.Reader) *MilestoneReconciler {
	return &MilestoneReconciler{campaigns: campaigns, reader: reader}
}

// Reconcile returns the campaign's milestones in ledger index order.
// A missing campaign row degrades names to fallbacks; a single unreadable
// index is skipped; only a fully unreachable ledger is an error.
func (s *MilestoneReconciler) Reconcile(ctx context.Context, ref model.CampaignRef) ([]model.ReconciledMilestone, error) {
	meta := s.loadMetadata(ctx, ref)

	count, err := s.reader.MilestoneCount(ctx, ref.LedgerAddress)
	if err != nil {
		slog.Error("reconcile: milestone count failed", "campaign", ref.LedgerAddress, "error", err)
		return []model.ReconciledMilestone{}, ErrLedgerUnavailable
	}

	if len(meta) != 0 && len(meta) != count {
		// Tolerated: metadata may lag the contract. Loud enough for
		// operators to notice a mis-configured campaign.
		slog.Warn("reconcile: metadata/ledger count mismatch",
			"campaign", ref.LedgerAddress, "metadata", len(meta), "ledger", count)
	}

	out := make([]model.ReconciledMilestone, 0, count)
	for i := 0; i < count; i++ {
		snap, err := s.reader.MilestoneAt(ctx, ref.LedgerAddress, i)
		if err != nil {
			slog.Warn("reconcile: milestone read failed, skipping index",
				"campaign", ref.LedgerAddress, "index", i, "error", err)
			continue
		}

		name := fallbackNames[i%len(fallbackNames)]
		if m, ok := meta[i]; ok {
			name = m.Name
		}

		out = append(out, model.ReconciledMilestone{
			Index:           i,
			Name:            name,
			TargetAmount:    snap.TargetAmount,
			CurrentAmount:   snap.CurrentAmount,
			Completed:       snap.Completed,
			ProgressPercent: progressPercent(snap),
		})
	}
	return out, nil
}

// loadMetadata returns the campaign's metadata keyed by ledger index.
// Resolution misses and read failures are non-fatal: names simply fall
// back to defaults.
func (s *MilestoneReconciler) loadMetadata(ctx context.Context, ref model.CampaignRef) map[int]*model.MilestoneMetadata {
	id, err := s.campaigns.FindIDByLedgerAddress(ctx, ref.LedgerAddress)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("reconcile: campaign lookup failed", "campaign", ref.LedgerAddress, "error", err)
		}
		return nil
	}

	list, err := s.campaigns.ListMilestones(ctx, id)
	if err != nil {
		slog.Warn("reconcile: metadata load failed", "campaign_id", id, "error", err)
		return nil
	}

	meta := make(map[int]*model.MilestoneMetadata, len(list))
	for _, m := range list {
		meta[m.LedgerIndex] = m
	}
	return meta
}

// progressPercent computes 0..100 funding progress. Completed milestones
// are pinned to 100 regardless of amounts; a zero target reads as 0.
func progressPercent(snap ledger.MilestoneSnapshot) int {
	if snap.Completed {
		return 100
	}
	if snap.TargetAmount == nil || snap.TargetAmount.Sign() == 0 {
		return 0
	}

	// round(current*100/target), in integer space: (2*current*100 + target) / (2*target)
	num := new(big.Int).Mul(snap.CurrentAmount, big.NewInt(200))
	num.Add(num, snap.TargetAmount)
	den := new(big.Int).Mul(snap.TargetAmount, big.NewInt(2))
	pct := new(big.Int).Quo(num, den)

	if pct.Cmp(big.NewInt(100)) > 0 {
		return 100
	}
	return int(pct.Int64())
}
