package repository

import (
	"context"
	"errors"

	"github.com/chainraise/backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgCampaignRepository struct {
	pool *pgxpool.Pool
}

// NewPgCampaignRepository returns a PostgreSQL-backed CampaignRepository.
func NewPgCampaignRepository(pool *pgxpool.Pool) CampaignRepository {
	return &pgCampaignRepository{pool: pool}
}

const campaignSelectCols = `id, ledger_address, title, created_at, updated_at`

func scanCampaign(scan func(...any) error) (*model.Campaign, error) {
	c := &model.Campaign{}
	return c, scan(&c.ID, &c.LedgerAddress, &c.Title, &c.CreatedAt, &c.UpdatedAt)
}

func (r *pgCampaignRepository) List(ctx context.Context) ([]*model.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *pgCampaignRepository) GetByLedgerAddress(ctx context.Context, address string) (*model.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns WHERE LOWER(ledger_address) = LOWER($1)`, address)
	c, err := scanCampaign(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *pgCampaignRepository) FindIDByLedgerAddress(ctx context.Context, address string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM campaigns WHERE LOWER(ledger_address) = LOWER($1)`, address).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (r *pgCampaignRepository) ListMilestones(ctx context.Context, campaignID string) ([]*model.MilestoneMetadata, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, campaign_id, ledger_index, name, COALESCE(sponsor_name, ''), payout_wallet, created_at
		 FROM milestones
		 WHERE campaign_id = $1
		 ORDER BY ledger_index`,
		campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*model.MilestoneMetadata
	for rows.Next() {
		m := &model.MilestoneMetadata{}
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.LedgerIndex, &m.Name,
			&m.SponsorName, &m.PayoutWallet, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
