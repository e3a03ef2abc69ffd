package model

import "time"

// Campaign is the off-chain record of a fundraising campaign. The ledger
// contract at LedgerAddress is the authority on raised amounts; this row
// only describes the campaign.
type Campaign struct {
	ID            string    `json:"id"`
	LedgerAddress string    `json:"ledger_address"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CampaignRef is the subset of Campaign needed to address the on-chain
// contract. Immutable once created.
type CampaignRef struct {
	ID            string `json:"id"`
	LedgerAddress string `json:"ledger_address"`
	Title         string `json:"title"`
}

// Ref returns the campaign's reference view.
func (c *Campaign) Ref() CampaignRef {
	return CampaignRef{ID: c.ID, LedgerAddress: c.LedgerAddress, Title: c.Title}
}
