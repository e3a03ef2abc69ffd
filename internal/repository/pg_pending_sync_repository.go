package repository

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainraise/backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgPendingSyncRepository struct {
	pool *pgxpool.Pool
}

// NewPgPendingSyncRepository returns a PostgreSQL-backed PendingSyncRepository.
func NewPgPendingSyncRepository(pool *pgxpool.Pool) PendingSyncRepository {
	return &pgPendingSyncRepository{pool: pool}
}

func (r *pgPendingSyncRepository) Enqueue(ctx context.Context, ps *model.PendingSync) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pending_syncs (tx_hash, donor_id, campaign_id, amount)
		 VALUES ($1, $2, $3, $4::numeric)
		 ON CONFLICT (tx_hash) DO NOTHING`,
		ps.TxHash, ps.DonorID, ps.CampaignID, ps.Amount.String())
	return err
}

func (r *pgPendingSyncRepository) ListDue(ctx context.Context, limit int) ([]*model.PendingSync, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tx_hash, donor_id, campaign_id, amount::text, attempts,
		        COALESCE(last_error, ''), created_at, updated_at
		 FROM pending_syncs
		 ORDER BY updated_at
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*model.PendingSync
	for rows.Next() {
		ps := &model.PendingSync{}
		var amount string
		if err := rows.Scan(&ps.TxHash, &ps.DonorID, &ps.CampaignID, &amount,
			&ps.Attempts, &ps.LastError, &ps.CreatedAt, &ps.UpdatedAt); err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("pending sync %s: malformed amount %q", ps.TxHash, amount)
		}
		ps.Amount = n
		list = append(list, ps)
	}
	return list, rows.Err()
}

func (r *pgPendingSyncRepository) Delete(ctx context.Context, txHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_syncs WHERE tx_hash = $1`, txHash)
	return err
}

func (r *pgPendingSyncRepository) MarkFailed(ctx context.Context, txHash, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE pending_syncs
		 SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		 WHERE tx_hash = $1`,
		txHash, lastError)
	return err
}
