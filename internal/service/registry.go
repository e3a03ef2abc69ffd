package service

import (
	"errors"
	"sync"
	"time"

	"github.com/chainraise/backend/internal/ledger"
	"github.com/chainraise/backend/internal/model"
	"github.com/google/uuid"
)

// ErrRequestNotFound is returned when no live donation request matches.
var ErrRequestNotFound = errors.New("donation request not found")

// Registry holds the live donation requests, one per donor and campaign.
// Requests are session state: in memory only, never persisted.
type Registry struct {
	writer         ledger.Writer
	donors         DonorAggregateRepo
	syncQueue      SyncQueue
	confirmTimeout time.Duration

	mu    sync.Mutex
	byKey map[string]*DonationCoordinator
	byID  map[string]*DonationCoordinator
}

func NewRegistry(writer ledger.Writer, donors DonorAggregateRepo, syncQueue SyncQueue, confirmTimeout time.Duration) *Registry {
	return &Registry{
		writer:         writer,
		donors:         donors,
		syncQueue:      syncQueue,
		confirmTimeout: confirmTimeout,
		byKey:          make(map[string]*DonationCoordinator),
		byID:           make(map[string]*DonationCoordinator),
	}
}

// Begin returns the donor's live request for the campaign, creating a
// fresh one when none exists or the previous one terminated or errored.
// A request in the middle of processing is always returned as-is: it
// cannot be abandoned while a broadcast may be in flight.
func (r *Registry) Begin(donorID string, campaign model.CampaignRef) *DonationCoordinator {
	key := donorID + "|" + campaign.ID

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		state := existing.State()
		if !state.Terminal() && state != model.StateError {
			return existing
		}
		delete(r.byID, existing.ID())
	}

	c := NewDonationCoordinator(
		uuid.NewString(), donorID, campaign,
		r.writer, r.donors, r.syncQueue, r.confirmTimeout,
	)
	r.byKey[key] = c
	r.byID[c.ID()] = c
	return c
}

// Get returns the request by id, scoped to its owning donor.
func (r *Registry) Get(id, donorID string) (*DonationCoordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok || c.DonorID() != donorID {
		return nil, ErrRequestNotFound
	}
	return c, nil
}
