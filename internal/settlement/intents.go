package settlement

import (
	"sync"
	"time"
)

type IntentKind string

const (
	IntentMint     IntentKind = "mint"
	IntentWithdraw IntentKind = "withdraw"
)

// Intent is an outstanding, initiated-but-unconfirmed settlement bound to a
// payment record. Intents are ephemeral: the reconciler removes them once a
// terminal outcome lands in the store.
type Intent struct {
	PaymentID string
	Kind      IntentKind
	Handle    Handle
	Nonce     string
	CreatedAt time.Time

	// Version of the payment record when the intent was registered, so
	// the reconciler's eventual write is optimistic.
	RecordVersion uint64
}

// IntentRegistry tracks at most one outstanding intent per payment.
type IntentRegistry struct {
	mu        sync.Mutex
	byPayment map[string]Intent
}

func NewIntentRegistry() *IntentRegistry {
	return &IntentRegistry{byPayment: make(map[string]Intent)}
}

// Register stores the intent unless the payment already has one outstanding.
func (r *IntentRegistry) Register(in Intent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPayment[in.PaymentID]; exists {
		return false
	}
	r.byPayment[in.PaymentID] = in
	return true
}

func (r *IntentRegistry) Get(paymentID string) (Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.byPayment[paymentID]
	return in, ok
}

// Resolve drops the intent after its payment reached a terminal status.
func (r *IntentRegistry) Resolve(paymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPayment, paymentID)
}

// List snapshots the outstanding intents.
func (r *IntentRegistry) List() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, 0, len(r.byPayment))
	for _, in := range r.byPayment {
		out = append(out, in)
	}
	return out
}
