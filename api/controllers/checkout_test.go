package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/internal/checkout"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

type stubCheckout struct {
	err        error
	lastOrigin string
	lastBuyer  uuid.UUID
}

func (s *stubCheckout) CheckoutProduct(_ context.Context, buyerID, _ uuid.UUID, origin string) (*checkout.Result, error) {
	s.lastBuyer, s.lastOrigin = buyerID, origin
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.Result{SessionID: "cs_test_1", RedirectURL: "https://pay.example/cs_test_1"}, nil
}

func (s *stubCheckout) CheckoutCart(_ context.Context, buyerID uuid.UUID, origin string) (*checkout.Result, error) {
	s.lastBuyer, s.lastOrigin = buyerID, origin
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.Result{SessionID: "cs_test_cart"}, nil
}

type stubStatus struct {
	status        *payments.CheckoutStatus
	err           error
	lastSessionID string
}

func (s *stubStatus) GetCheckoutStatus(_ context.Context, sessionID string, _ uuid.UUID) (*payments.CheckoutStatus, error) {
	s.lastSessionID = sessionID
	return s.status, s.err
}

func TestCheckoutProductUsesConfiguredOrigin(t *testing.T) {
	buyer := uuid.New()
	svc := &stubCheckout{}
	body := fmt.Sprintf(`{"product_id":"%s"}`, uuid.New())
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/product", strings.NewReader(body)), buyer)
	req.Header.Set("Origin", "https://evil.example")

	resp := serve("/api/v1/checkout/product", http.MethodPost, CheckoutProduct(svc, "https://relivv.example", nil), req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastOrigin != "https://relivv.example" || svc.lastBuyer != buyer {
		t.Fatalf("unexpected call origin=%s buyer=%s", svc.lastOrigin, svc.lastBuyer)
	}
	if !strings.Contains(resp.Body.String(), "cs_test_1") {
		t.Fatalf("expected session id in body: %s", resp.Body.String())
	}
}

func TestCheckoutProductGatewayFailure(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("timeout"), "create checkout session")}
	body := fmt.Sprintf(`{"product_id":"%s"}`, uuid.New())
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/product", strings.NewReader(body)), uuid.New())

	resp := serve("/api/v1/checkout/product", http.MethodPost, CheckoutProduct(svc, "https://relivv.example", nil), req)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", resp.Code)
	}
}

func TestCheckoutCart(t *testing.T) {
	svc := &stubCheckout{}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/cart", nil), uuid.New())

	resp := serve("/api/v1/checkout/cart", http.MethodPost, CheckoutCart(svc, "https://relivv.example", nil), req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	svc.err = pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	resp = serve("/api/v1/checkout/cart", http.MethodPost, CheckoutCart(svc, "https://relivv.example", nil), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutStatus(t *testing.T) {
	svc := &stubStatus{status: &payments.CheckoutStatus{SessionID: "cs_test_1", PaymentStatus: enums.PaymentStatusPaid}}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/status/cs_test_1", nil), uuid.New())

	resp := serve("/api/v1/checkout/status/{sessionId}", http.MethodGet, CheckoutStatus(svc, nil), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastSessionID != "cs_test_1" {
		t.Fatalf("unexpected session %q", svc.lastSessionID)
	}
	if !strings.Contains(resp.Body.String(), `"payment_status":"paid"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
