package store

import (
	"context"
	"sync"
	"time"

	"github.com/0xMgwan/BTCx/internal/models"
)

// PaymentStore is the authoritative in-memory table of payment requests,
// indexed by id with a secondary payer index. Records are never deleted.
//
// Status transitions are enforced here, at the store boundary: Pending may
// move to Confirmed or Failed, and both of those are terminal. Writers doing
// a read-modify-write use the record's version counter so a concurrent
// mutation fails the write instead of being overwritten.
type PaymentStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.PaymentRequest
	byPayer map[string][]string
	byIdem  map[string]string
	idgen   *IDGenerator
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		byID:    make(map[string]*models.PaymentRequest),
		byPayer: make(map[string][]string),
		byIdem:  make(map[string]string),
		idgen:   NewIDGenerator(),
	}
}

// Create validates the input, assigns a fresh identifier and inserts the
// record with status Pending, all under one lock so two concurrent creations
// can never observe the same id or interleave within the payer index.
func (s *PaymentStore) Create(ctx context.Context, in models.CreatePaymentInput, idempotencyKey string) (string, error) {
	if in.Amount == 0 {
		return "", ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.idgen.Next()
	rec := &models.PaymentRequest{
		ID:             id,
		Amount:         in.Amount,
		Recipient:      in.Recipient,
		Memo:           in.Memo,
		Status:         models.StatusPending,
		Payer:          in.Payer,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now(),
	}
	s.byID[id] = rec
	s.byPayer[in.Payer] = append(s.byPayer[in.Payer], id)
	if idempotencyKey != "" {
		s.byIdem[idempotencyKey] = id
	}
	return id, nil
}

// Get returns a copy of the record so callers never hold a reference into
// the store's mutable state.
func (s *PaymentStore) Get(ctx context.Context, id string) (models.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return models.PaymentRequest{}, ErrNotFound
	}
	return *rec, nil
}

func (s *PaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (models.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdem[key]
	if !ok {
		return models.PaymentRequest{}, ErrNotFound
	}
	return *s.byID[id], nil
}

// UpdateStatus applies a status change if the record exists and the
// transition is legal, returning the status the record held before the
// change. Illegal transitions are rejected with ErrIllegalTransition and
// leave the record untouched.
func (s *PaymentStore) UpdateStatus(ctx context.Context, id string, to models.PaymentStatus) (models.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return "", ErrNotFound
	}
	prev := rec.Status
	if !rec.Status.CanTransitionTo(to) {
		return prev, ErrIllegalTransition
	}
	rec.Status = to
	rec.Version++
	return prev, nil
}

// UpdateStatusVersioned is the optimistic variant used by the orchestrator
// and the reconciler: the transition is applied only if the record still
// carries the version the caller read. A concurrent write surfaces as
// ErrVersionConflict instead of being silently overwritten.
func (s *PaymentStore) UpdateStatusVersioned(ctx context.Context, id string, to models.PaymentStatus, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Version != expectedVersion {
		return ErrVersionConflict
	}
	if !rec.Status.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	rec.Status = to
	rec.Version++
	return nil
}

// ListByPayer returns the payer's records in creation order.
func (s *PaymentStore) ListByPayer(ctx context.Context, payer string) []models.PaymentRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPayer[payer]
	out := make([]models.PaymentRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.byID[id])
	}
	return out
}

// ListByStatus returns every record currently in the given status, in no
// particular order. Used by the reconciler to find outstanding settlements.
func (s *PaymentStore) ListByStatus(ctx context.Context, status models.PaymentStatus) []models.PaymentRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PaymentRequest
	for _, rec := range s.byID {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}
	return out
}
