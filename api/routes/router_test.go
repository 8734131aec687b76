package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/internal/invoices"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubTransactions struct {
	mu      sync.Mutex
	created int
}

func (s *stubTransactions) Create(_ context.Context, buyerID, productID uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
	return &models.Transaction{ID: uuid.New(), BuyerID: buyerID, ProductID: productID, Status: enums.TransactionStatusPending}, nil
}

func (s *stubTransactions) Get(_ context.Context, id uuid.UUID, _ auth.Actor) (*models.Transaction, error) {
	return &models.Transaction{ID: id}, nil
}

func (s *stubTransactions) List(context.Context, transactions.ListFilter) (*transactions.ListResult, error) {
	return &transactions.ListResult{Items: []models.Transaction{}}, nil
}

func (s *stubTransactions) ConfirmDelivery(_ context.Context, id, _ uuid.UUID, _ enums.DeliveryOutcome) (*models.Transaction, error) {
	return &models.Transaction{ID: id}, nil
}

type stubEscrow struct{}

func (stubEscrow) Cancel(_ context.Context, id, _ uuid.UUID) (*escrow.CancelResult, error) {
	return &escrow.CancelResult{Transaction: &models.Transaction{ID: id}}, nil
}

func (stubEscrow) Release(_ context.Context, id uuid.UUID) (*escrow.ReleaseResult, error) {
	return &escrow.ReleaseResult{Transaction: &models.Transaction{ID: id}}, nil
}

type stubInvoices struct{}

func (stubInvoices) Get(_ context.Context, id uuid.UUID, _ auth.Actor) (*models.Invoice, error) {
	return &models.Invoice{ID: id}, nil
}

func (stubInvoices) List(context.Context, invoices.ListFilter) (*invoices.ListResult, error) {
	return &invoices.ListResult{Items: []models.Invoice{}}, nil
}

func (stubInvoices) ListAll(context.Context, invoices.ListFilter) (*invoices.ListResult, error) {
	return &invoices.ListResult{Items: []models.Invoice{}}, nil
}

type fixture struct {
	cfg     *config.Config
	handler http.Handler
	txns    *stubTransactions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "dev", PublicOrigin: "https://relivv.example"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "relivv", ExpirationMinutes: 60},
		Internal:  config.InternalConfig{Token: "internal-secret"},
		RateLimit: config.RateLimitConfig{CheckoutWindow: time.Minute, CheckoutLimit: 2, PollWindow: time.Minute, PollLimit: 60},
	}
	txns := &stubTransactions{}
	handler := NewRouter(Params{
		Config:       cfg,
		Logger:       logger.Nop(),
		Store:        newMemoryStore(),
		Gatherer:     prometheus.NewRegistry(),
		Transactions: txns,
		Escrow:       stubEscrow{},
		Invoices:     stubInvoices{},
	})
	return &fixture{cfg: cfg, handler: handler, txns: txns}
}

func (f *fixture) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(f.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role, JTI: uuid.NewString()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *fixture) do(method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(http.MethodGet, "/health/live", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/health/ready", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/metrics", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
}

func TestUserRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(http.MethodGet, "/api/v1/transactions", "", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/api/v1/transactions", f.token(t, enums.UserRoleUser), "", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCreateTransactionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, enums.UserRoleUser)
	body := `{"product_id":"` + uuid.NewString() + `"}`

	if resp := f.do(http.MethodPost, "/api/v1/transactions", token, body, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected missing Idempotency-Key to be rejected, got %d", resp.Code)
	}

	headers := map[string]string{"Idempotency-Key": "abc-123"}
	first := f.do(http.MethodPost, "/api/v1/transactions", token, body, headers)
	second := f.do(http.MethodPost, "/api/v1/transactions", token, body, headers)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("expected replayed body")
	}
	if f.txns.created != 1 {
		t.Fatalf("expected one create, got %d", f.txns.created)
	}
}

func TestCheckoutIsRateLimited(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, enums.UserRoleUser)

	var last int
	for i := 0; i < 3; i++ {
		// Missing key fails after the limiter has counted the request.
		last = f.do(http.MethodPost, "/api/v1/checkout/cart", token, "", nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the third attempt, got %d", last)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(http.MethodGet, "/api/admin/v1/invoices", f.token(t, enums.UserRoleUser), "", nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/api/admin/v1/invoices", f.token(t, enums.UserRoleAdmin), "", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestInternalReleaseRequiresToken(t *testing.T) {
	f := newFixture(t)
	path := "/api/internal/v1/transactions/" + uuid.NewString() + "/release"

	if resp := f.do(http.MethodPost, path, f.token(t, enums.UserRoleAdmin), "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a user token, got %d", resp.Code)
	}
	if resp := f.do(http.MethodPost, path, "", "", map[string]string{"X-Internal-Token": "wrong"}); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if resp := f.do(http.MethodPost, path, "", "", map[string]string{"X-Internal-Token": "internal-secret"}); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
