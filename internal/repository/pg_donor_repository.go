package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgDonorRepository struct {
	pool *pgxpool.Pool
}

// NewPgDonorRepository returns a PostgreSQL-backed DonorRepository.
func NewPgDonorRepository(pool *pgxpool.Pool) DonorRepository {
	return &pgDonorRepository{pool: pool}
}

// Amounts are ledger base units; numeric(78,0) round-trips them as
// decimal strings.

func (r *pgDonorRepository) GetTotal(ctx context.Context, donorID string) (*big.Int, error) {
	var total string
	err := r.pool.QueryRow(ctx,
		`SELECT total_donated::text FROM donors WHERE id = $1`, donorID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return nil, fmt.Errorf("donor %s: malformed total %q", donorID, total)
	}
	return n, nil
}

// RecordDonation inserts the receipt and increments the donor total in one
// transaction. The receipt insert is keyed on tx_hash, so replaying a
// transaction hash is a no-op: the increment only runs when the receipt
// row was actually inserted. The increment itself is a single atomic
// UPDATE, never a read-modify-write.
func (r *pgDonorRepository) RecordDonation(ctx context.Context, donorID, campaignID, txHash string, amount *big.Int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO donation_receipts (tx_hash, donor_id, campaign_id, amount)
		 VALUES ($1, $2, $3, $4::numeric)
		 ON CONFLICT (tx_hash) DO NOTHING`,
		txHash, donorID, campaignID, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already recorded; nothing to add.
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO donors (id, total_donated)
		 VALUES ($1, $2::numeric)
		 ON CONFLICT (id) DO UPDATE SET
		   total_donated = donors.total_donated + EXCLUDED.total_donated,
		   updated_at = NOW()`,
		donorID, amount.String()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
