package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainraise/backend/internal/model"
)

// ---------------------------------------------------------------------------
// Minimal interfaces (only what SyncWorker needs)
// ---------------------------------------------------------------------------

type SyncStore interface {
	ListDue(ctx context.Context, limit int) ([]*model.PendingSync, error)
	Delete(ctx context.Context, txHash string) error
	MarkFailed(ctx context.Context, txHash, lastError string) error
}

// ---------------------------------------------------------------------------
// SyncWorker
// ---------------------------------------------------------------------------

// SyncWorker drains the pending-sync queue: donations that confirmed on
// chain but whose donor-aggregate write failed. It retries only the
// aggregate write; the write is idempotent on tx hash, so re-running a
// row that half-applied is safe.
type SyncWorker struct {
	donors   DonorAggregateRepo
	store    SyncStore
	interval time.Duration
	batch    int
}

func NewSyncWorker(donors DonorAggregateRepo, store SyncStore, interval time.Duration) *SyncWorker {
	return &SyncWorker{donors: donors, store: store, interval: interval, batch: 50}
}

// Run processes the queue on a fixed interval until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce drains one batch and returns how many rows were applied.
func (w *SyncWorker) ProcessOnce(ctx context.Context) int {
	due, err := w.store.ListDue(ctx, w.batch)
	if err != nil {
		slog.Warn("sync worker: list failed", "error", err)
		return 0
	}

	applied := 0
	for _, ps := range due {
		if err := w.donors.RecordDonation(ctx, ps.DonorID, ps.CampaignID, ps.TxHash, ps.Amount); err != nil {
			slog.Warn("sync worker: aggregate write still failing",
				"tx_hash", ps.TxHash, "attempts", ps.Attempts+1, "error", err)
			if mErr := w.store.MarkFailed(ctx, ps.TxHash, err.Error()); mErr != nil {
				slog.Warn("sync worker: mark failed", "tx_hash", ps.TxHash, "error", mErr)
			}
			continue
		}
		if err := w.store.Delete(ctx, ps.TxHash); err != nil {
			// The next pass re-runs the row; RecordDonation is idempotent.
			slog.Warn("sync worker: dequeue failed", "tx_hash", ps.TxHash, "error", err)
			continue
		}
		applied++
		slog.Info("sync worker: aggregate reconciled", "tx_hash", ps.TxHash, "donor_id", ps.DonorID)
	}
	return applied
}
