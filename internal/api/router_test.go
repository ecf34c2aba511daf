package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xMgwan/BTCx/internal/api"
	"github.com/0xMgwan/BTCx/internal/events"
	"github.com/0xMgwan/BTCx/internal/models"
	"github.com/0xMgwan/BTCx/internal/settlement"
	"github.com/0xMgwan/BTCx/internal/settlement/mock"
	"github.com/0xMgwan/BTCx/internal/store"
	"github.com/0xMgwan/BTCx/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type fixture struct {
	store  *store.PaymentStore
	ledger *mock.Ledger
	minter *mock.Minter
	router *gin.Engine
}

func newFixture() *fixture {
	return newFixtureWithPublisher(events.NoopPublisher{})
}

func newFixtureWithPublisher(pub events.Publisher) *fixture {
	f := &fixture{
		store:  store.NewPaymentStore(),
		ledger: mock.NewLedger(),
		minter: mock.NewMinter(),
	}
	orch := settlement.NewOrchestrator(
		f.store, mock.NewOracle(), f.ledger, f.minter, settlement.NewIntentRegistry(),
		nil, pub,
		time.Millisecond, 3,
	)
	f.router = api.NewRouter(f.store, orch, nil, nil, pub)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func createBody(amount uint64) map[string]any {
	return map[string]any{
		"amount":    amount,
		"recipient": "bc1qdest",
		"memo":      "invoice-1",
		"payer":     "alice",
	}
}

func TestCreateAndFetchPayment(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/payments", createBody(50000), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var created models.PaymentRequest
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != models.StatusPending || created.Amount != 50000 {
		t.Errorf("unexpected payment: %+v", created)
	}

	w = f.do(t, http.MethodGet, "/payments/"+created.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var got struct {
		Payment models.PaymentRequest `json:"payment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payment.ID != created.ID || got.Payment.Payer != "alice" {
		t.Errorf("unexpected payment: %+v", got.Payment)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()

	t.Run("zero amount", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/payments", createBody(0), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", w.Code)
		}
	})

	t.Run("missing recipient", func(t *testing.T) {
		body := createBody(100)
		delete(body, "recipient")
		w := f.do(t, http.MethodPost, "/payments", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", w.Code)
		}
	})
}

func TestGetUnknownPayment(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/payments/PAY-404", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestUpdateStatusFlow(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/payments", createBody(50000), nil)
	var created models.PaymentRequest
	json.Unmarshal(w.Body.Bytes(), &created)

	w = f.do(t, http.MethodPost, "/payments/"+created.ID+"/status", map[string]string{"status": "Confirmed"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: status %d, body %s", w.Code, w.Body.String())
	}

	// Terminal states reject further transitions.
	w = f.do(t, http.MethodPost, "/payments/"+created.ID+"/status", map[string]string{"status": "Failed"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on Confirmed -> Failed, got %d", w.Code)
	}
	var resp struct {
		Applied bool `json:"applied"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Applied {
		t.Error("applied must be false for a rejected transition")
	}

	w = f.do(t, http.MethodGet, "/payments/"+created.ID, nil, nil)
	var got struct {
		Payment models.PaymentRequest `json:"payment"`
	}
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.Payment.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want Confirmed", got.Payment.Status)
	}
}

// recordingPublisher captures transitions instead of writing to Kafka.
type recordingPublisher struct {
	transitions []recordedTransition
}

type recordedTransition struct {
	paymentID string
	from, to  models.PaymentStatus
}

func (p *recordingPublisher) PublishStatusChange(ctx context.Context, paymentID string, from, to models.PaymentStatus) {
	p.transitions = append(p.transitions, recordedTransition{paymentID, from, to})
}

func (p *recordingPublisher) Close() error { return nil }

func TestUpdateStatusPublishesPriorStatus(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixtureWithPublisher(pub)

	w := f.do(t, http.MethodPost, "/payments", createBody(50000), nil)
	var created models.PaymentRequest
	json.Unmarshal(w.Body.Bytes(), &created)

	w = f.do(t, http.MethodPost, "/payments/"+created.ID+"/status", map[string]string{"status": "Confirmed"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: status %d, body %s", w.Code, w.Body.String())
	}

	if len(pub.transitions) != 1 {
		t.Fatalf("expected 1 published transition, got %d", len(pub.transitions))
	}
	ev := pub.transitions[0]
	if ev.paymentID != created.ID {
		t.Errorf("payment id = %s, want %s", ev.paymentID, created.ID)
	}
	if ev.from != models.StatusPending || ev.to != models.StatusConfirmed {
		t.Errorf("transition = %s -> %s, want Pending -> Confirmed", ev.from, ev.to)
	}

	// A rejected transition publishes nothing.
	f.do(t, http.MethodPost, "/payments/"+created.ID+"/status", map[string]string{"status": "Failed"}, nil)
	if len(pub.transitions) != 1 {
		t.Errorf("rejected transition published an event: %d total", len(pub.transitions))
	}
}

func TestListPaymentsByPayer(t *testing.T) {
	f := newFixture()

	f.do(t, http.MethodPost, "/payments", createBody(100), nil)
	f.do(t, http.MethodPost, "/payments", createBody(200), nil)
	other := createBody(300)
	other["payer"] = "bob"
	f.do(t, http.MethodPost, "/payments", other, nil)

	w := f.do(t, http.MethodGet, "/payments?payer=alice", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var resp struct {
		Payments []models.PaymentRequest `json:"payments"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Payments) != 2 {
		t.Fatalf("expected 2 payments for alice, got %d", len(resp.Payments))
	}
	if resp.Payments[0].Amount != 100 || resp.Payments[1].Amount != 200 {
		t.Errorf("creation order not preserved: %+v", resp.Payments)
	}

	w = f.do(t, http.MethodGet, "/payments", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("listing without payer: status %d, want 400", w.Code)
	}
}

func TestIdempotentCreateReplays(t *testing.T) {
	f := newFixture()
	headers := map[string]string{"Idempotency-Key": "idem-1"}

	w := f.do(t, http.MethodPost, "/payments", createBody(50000), headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create: status %d", w.Code)
	}
	var first models.PaymentRequest
	json.Unmarshal(w.Body.Bytes(), &first)

	w = f.do(t, http.MethodPost, "/payments", createBody(50000), headers)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status %d, want 200", w.Code)
	}
	var second models.PaymentRequest
	json.Unmarshal(w.Body.Bytes(), &second)
	if second.ID != first.ID {
		t.Errorf("replay created a new payment: %s vs %s", second.ID, first.ID)
	}

	if got := f.store.ListByPayer(context.Background(), "alice"); len(got) != 1 {
		t.Errorf("expected a single stored payment, got %d", len(got))
	}
}

func TestSettleTransferEndpoint(t *testing.T) {
	f := newFixture()
	f.ledger.SetBalance("alice", 100000)

	w := f.do(t, http.MethodPost, "/payments", createBody(50000), nil)
	var created models.PaymentRequest
	json.Unmarshal(w.Body.Bytes(), &created)

	w = f.do(t, http.MethodPost, "/payments/"+created.ID+"/settle/transfer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settle: status %d, body %s", w.Code, w.Body.String())
	}

	rec, _ := f.store.Get(context.Background(), created.ID)
	if rec.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want Confirmed", rec.Status)
	}

	// Insufficient funds surfaces as a structured client error.
	w = f.do(t, http.MethodPost, "/payments", createBody(900000), nil)
	json.Unmarshal(w.Body.Bytes(), &created)
	w = f.do(t, http.MethodPost, "/payments/"+created.ID+"/settle/transfer", nil, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("insufficient funds: status %d, want 422", w.Code)
	}
}

func TestWithdrawalFeeEndpoint(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/fees/withdrawal?amount=100000", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var fee settlement.WithdrawalFee
	json.Unmarshal(w.Body.Bytes(), &fee)
	if fee.NetworkFee != 2000 || fee.MinterFee != 200 {
		t.Errorf("fee = %+v", fee)
	}

	w = f.do(t, http.MethodGet, "/fees/withdrawal?amount=abc", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad amount: status %d, want 400", w.Code)
	}
}

func TestWalletEndpoints(t *testing.T) {
	f := newFixture()
	f.ledger.SetBalance("alice", 77000)

	w := f.do(t, http.MethodGet, "/wallet/alice/ledger-balance", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ledger balance: status %d", w.Code)
	}
	var bal struct {
		Balance uint64 `json:"balance"`
	}
	json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.Balance != 77000 {
		t.Errorf("balance = %d, want 77000", bal.Balance)
	}

	w = f.do(t, http.MethodGet, "/wallet/alice/deposit-address", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deposit address: status %d", w.Code)
	}
	var dep settlement.DepositAddress
	json.Unmarshal(w.Body.Bytes(), &dep)
	if dep.Address == "" || dep.MinConfirmations == 0 {
		t.Errorf("unexpected deposit address: %+v", dep)
	}

	w = f.do(t, http.MethodGet, "/wallet/alice/address", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("oracle address: status %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}
