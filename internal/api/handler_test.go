package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"checkout/api/internal/asaas"
	"checkout/api/internal/auth"
	"checkout/api/internal/checkout"
	"checkout/api/internal/config"
	"checkout/api/internal/db"
	"checkout/api/internal/dedup"
	"checkout/api/internal/middleware"
	"checkout/api/internal/order"
	"checkout/api/internal/reconcile"
	"checkout/api/internal/repository"
	"checkout/api/internal/webhook"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (p *stubProvider) CreatePixCharge(ctx context.Context, params asaas.PixChargeParams) (*asaas.PixCharge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return nil, errors.New("asaas: status 503")
	}
	return &asaas.PixCharge{
		ChargeID: fmt.Sprintf("pay_%d", params.OrderID),
		Pix:      order.PixDetails{QRCode: "000201", QRCodeImage: "data:image/png;base64,AAA", ExpirationDate: time.Now().Add(30 * time.Minute)},
	}, nil
}

func (p *stubProvider) PixQRCode(ctx context.Context, chargeID string) (*order.PixDetails, error) {
	return &order.PixDetails{QRCode: "000201", QRCodeImage: "data:image/png;base64,AAA", ExpirationDate: time.Now().Add(30 * time.Minute)}, nil
}

type testEnv struct {
	cfg      *config.Config
	store    *repository.Store
	provider *stubProvider
	product  order.Product
	server   *httptest.Server
	handler  *Handler
}

type envOption func(cfg *config.Config, s *repository.Settings)

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:         "segredo",
		DedupGrace:        0,
		PollInterval:      time.Hour,
		PollTimeout:       5 * time.Second,
		ProviderTimeout:   time.Second,
		CheckoutRateLimit: 1000,
	}
	settings := repository.Settings{AsaasEnabled: true, AllowCreditCard: true, AllowPix: true}
	for _, o := range opts {
		o(cfg, &settings)
	}

	sqlite, err := db.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	require.NoError(t, db.Migrate(sqlite))

	ctx := context.Background()
	require.NoError(t, repository.SaveSettings(ctx, sqlite, settings))
	product := order.Product{Name: "E-book", Slug: "ebook", Price: decimal.RequireFromString("29.90"), IsDigital: true}
	require.NoError(t, repository.CreateProduct(ctx, sqlite, &product))
	hash, err := auth.HashPassword("123456")
	require.NoError(t, err)
	_, err = repository.UpsertAdmin(ctx, sqlite, "admin@loja.com", hash)
	require.NoError(t, err)

	store := repository.NewStore(sqlite)
	registry := dedup.NewRegistry()
	t.Cleanup(registry.Close)
	provider := &stubProvider{}
	svc := checkout.NewService(store, provider, registry, checkout.Options{Grace: cfg.DedupGrace, ProviderTimeout: cfg.ProviderTimeout})
	t.Cleanup(svc.Close)
	hub := reconcile.NewHub()
	loop := reconcile.NewLoop(store, hub, nil, cfg.PollInterval, cfg.PollTimeout)
	ingestor := webhook.NewIngestor(store, hub)

	mux := http.NewServeMux()
	handler := NewHandler(cfg, store, svc, loop, ingestor, hub)
	handler.Register(mux)
	srv := httptest.NewServer(middleware.CORS([]string{"*"})(middleware.Auth(cfg.JWTSecret)(mux)))
	t.Cleanup(srv.Close)

	return &testEnv{cfg: cfg, store: store, provider: provider, product: product, server: srv, handler: handler}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) cardCheckout(attemptID, base string) map[string]interface{} {
	return map[string]interface{}{
		"attemptId":  attemptID,
		"method":     "CARD",
		"baseStatus": base,
		"productId":  e.product.ID,
		"customer":   map[string]string{"name": "João Silva", "email": "joao@email.com", "cpf": "123.456.789-00"},
		"card":       map[string]string{"number": "4111 1111 1111 1111", "expiryMonth": "12", "expiryYear": "30", "holder": "JOAO SILVA"},
	}
}

func (e *testEnv) pixCheckout(attemptID string) map[string]interface{} {
	return map[string]interface{}{
		"attemptId": attemptID,
		"method":    "PIX",
		"productId": e.product.ID,
		"customer":  map[string]string{"name": "João Silva", "email": "joao@email.com", "cpf": "12345678900"},
	}
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/v1/admin/login", map[string]string{"email": "admin@loja.com", "password": "123456"}, nil)
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestCheckoutCardCreatedThenExisting(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("att-1", "CONFIRMED"), nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, true, body["paid"])
	assert.Equal(t, false, body["existing"])

	ord := body["order"].(map[string]interface{})
	card := ord["cardDetails"].(map[string]interface{})
	assert.Equal(t, "1111", card["last4"])
	assert.Equal(t, "Visa", card["brand"])

	code, body = e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("att-1", "REJECTED"), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["existing"])
	assert.Equal(t, "PAID", body["status"])
}

func TestCheckoutIdempotencyKeyHeader(t *testing.T) {
	e := newEnv(t)
	req := e.cardCheckout("", "CONFIRMED")
	headers := map[string]string{"Idempotency-Key": "chave-1"}

	code, first := e.do(t, http.MethodPost, "/v1/checkout", req, headers)
	require.Equal(t, http.StatusCreated, code)
	code, second := e.do(t, http.MethodPost, "/v1/checkout", req, headers)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first["orderId"], second["orderId"])
}

func TestCheckoutErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []envOption
		body func(e *testEnv) interface{}
		want int
	}{
		{"corpo inválido", nil, func(e *testEnv) interface{} { return "{" }, http.StatusBadRequest},
		{"método inválido", nil, func(e *testEnv) interface{} {
			b := e.cardCheckout("x", "")
			b["method"] = "BOLETO"
			return b
		}, http.StatusBadRequest},
		{"produto inexistente", nil, func(e *testEnv) interface{} {
			b := e.cardCheckout("x", "")
			b["productId"] = 999
			return b
		}, http.StatusNotFound},
		{"cartão inválido", nil, func(e *testEnv) interface{} {
			b := e.cardCheckout("x", "")
			b["card"] = map[string]string{"number": "1234", "expiryMonth": "12", "expiryYear": "30"}
			return b
		}, http.StatusUnprocessableEntity},
		{"CPF inválido", nil, func(e *testEnv) interface{} {
			b := e.cardCheckout("x", "")
			b["customer"] = map[string]string{"name": "Ana", "email": "ana@email.com", "cpf": "123"}
			return b
		}, http.StatusUnprocessableEntity},
		{"provedor desligado", []envOption{func(c *config.Config, s *repository.Settings) { s.AsaasEnabled = false }},
			func(e *testEnv) interface{} { return e.cardCheckout("x", "") }, http.StatusServiceUnavailable},
		{"PIX desabilitado", []envOption{func(c *config.Config, s *repository.Settings) { s.AllowPix = false }},
			func(e *testEnv) interface{} { return e.pixCheckout("x") }, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.opts...)
			code, body := e.do(t, http.MethodPost, "/v1/checkout", tt.body(e), nil)
			assert.Equal(t, tt.want, code, body)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCheckoutDuplicateWithinGrace(t *testing.T) {
	e := newEnv(t, func(c *config.Config, s *repository.Settings) { c.DedupGrace = time.Minute })

	code, _ := e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("att-1", "CONFIRMED"), nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("att-1", "CONFIRMED"), nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestCheckoutMethodNotAllowed(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodGet, "/v1/checkout", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestCheckoutRateLimited(t *testing.T) {
	e := newEnv(t, func(c *config.Config, s *repository.Settings) { c.CheckoutRateLimit = 1 })

	code, _ := e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("a", "CONFIRMED"), nil)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("b", "CONFIRMED"), nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestPixCheckoutWebhookAndStatus(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.pixCheckout("pix-1"), nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "PENDING", body["status"])
	orderID := int64(body["orderId"].(float64))
	ord := body["order"].(map[string]interface{})
	chargeID := ord["chargeId"].(string)
	require.NotEmpty(t, chargeID)
	assert.NotNil(t, ord["pixDetails"])

	statusPath := fmt.Sprintf("/v1/payment/status?orderId=%d", orderID)
	code, body = e.do(t, http.MethodGet, statusPath, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, false, body["paid"])

	code, body = e.do(t, http.MethodPost, "/v1/webhook/asaas", map[string]interface{}{
		"id":      "evt_1",
		"event":   "PAYMENT_RECEIVED",
		"payment": map[string]string{"id": chargeID, "status": "RECEIVED"},
	}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["applied"])

	code, body = e.do(t, http.MethodGet, statusPath, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, true, body["paid"])

	code, body = e.do(t, http.MethodPost, "/v1/webhook/asaas", map[string]string{"chargeId": chargeID, "status": "CANCELLED"}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["applied"], "terminal orders never change")
}

func TestPixCheckoutProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.provider.fail = true

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.pixCheckout("pix-1"), nil)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.NotEmpty(t, body["warning"])
	orderID := int64(body["orderId"].(float64))

	e.provider.mu.Lock()
	e.provider.fail = false
	e.provider.mu.Unlock()

	token := e.adminToken(t)
	code, body = e.do(t, http.MethodPost, "/v1/admin/orders/retry-charge", map[string]int64{"orderId": orderID},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, code, body)
	ord := body["order"].(map[string]interface{})
	assert.Equal(t, fmt.Sprintf("pay_%d", orderID), ord["chargeId"])
}

func TestWaitPaymentReturnsOnWebhook(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.pixCheckout("pix-1"), nil)
	require.Equal(t, http.StatusCreated, code)
	orderID := int64(body["orderId"].(float64))
	chargeID := body["order"].(map[string]interface{})["chargeId"].(string)

	go func() {
		time.Sleep(100 * time.Millisecond)
		payload := fmt.Sprintf(`{"chargeId":%q,"status":"CONFIRMED"}`, chargeID)
		resp, err := http.Post(e.server.URL+"/v1/webhook/asaas", "application/json", bytes.NewBufferString(payload))
		if err == nil {
			resp.Body.Close()
		}
	}()

	start := time.Now()
	code, body = e.do(t, http.MethodGet, fmt.Sprintf("/v1/payment/wait?orderId=%d", orderID), nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", body["result"])
	assert.Equal(t, true, body["paid"])
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestWaitPaymentTimeout(t *testing.T) {
	e := newEnv(t, func(c *config.Config, s *repository.Settings) { c.PollTimeout = 100 * time.Millisecond })

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.pixCheckout("pix-1"), nil)
	require.Equal(t, http.StatusCreated, code)
	orderID := int64(body["orderId"].(float64))

	code, body = e.do(t, http.MethodGet, fmt.Sprintf("/v1/payment/wait?orderId=%d", orderID), nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "TIMEOUT", body["result"])
	assert.Equal(t, "PENDING", body["status"])
}

func TestWaitPaymentEndsOnStopWatches(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.pixCheckout("pix-1"), nil)
	require.Equal(t, http.StatusCreated, code)
	orderID := int64(body["orderId"].(float64))

	go func() {
		time.Sleep(100 * time.Millisecond)
		e.handler.StopWatches()
	}()

	start := time.Now()
	code, _ = e.do(t, http.MethodGet, fmt.Sprintf("/v1/payment/wait?orderId=%d", orderID), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Less(t, time.Since(start), 4*time.Second)

	code, _ = e.do(t, http.MethodGet, fmt.Sprintf("/v1/payment/wait?orderId=%d", orderID), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code, "new long-polls are refused once stopped")

	code, body = e.do(t, http.MethodGet, fmt.Sprintf("/v1/payment/status?orderId=%d", orderID), nil, nil)
	assert.Equal(t, http.StatusOK, code, "short requests keep working")
	assert.Equal(t, "PENDING", body["status"])
}

func TestPaymentEndpointsBadInput(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodGet, "/v1/payment/status", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(t, http.MethodGet, "/v1/payment/status?orderId=999", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodGet, "/v1/payment/wait?orderId=999", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebhookValidation(t *testing.T) {
	e := newEnv(t, func(c *config.Config, s *repository.Settings) { c.AsaasWebhookToken = "tok" })
	good := map[string]string{"asaas-access-token": "tok"}

	code, _ := e.do(t, http.MethodPost, "/v1/webhook/asaas", map[string]string{"chargeId": "pay_1", "status": "RECEIVED"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/v1/webhook/asaas", map[string]string{"status": "RECEIVED"}, good)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/v1/webhook/asaas", "not json", good)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := e.do(t, http.MethodPost, "/v1/webhook/asaas", map[string]string{"chargeId": "pay_unknown", "status": "RECEIVED"}, good)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["matched"])
}

func TestAdminEndpoints(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodPost, "/v1/admin/login", map[string]string{"email": "admin@loja.com", "password": "errada"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := e.do(t, http.MethodPost, "/v1/checkout", e.cardCheckout("att-1", "CONFIRMED"), nil)
	require.Equal(t, http.StatusCreated, code)
	orderID := int64(body["orderId"].(float64))

	code, _ = e.do(t, http.MethodPost, "/v1/admin/orders/status", map[string]interface{}{"orderId": orderID, "status": "DENIED"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	auth := map[string]string{"Authorization": "Bearer " + e.adminToken(t)}

	code, body = e.do(t, http.MethodPost, "/v1/admin/orders/status", map[string]interface{}{"orderId": orderID, "status": "recusado"}, auth)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, "DENIED", body["order"].(map[string]interface{})["paymentStatus"])

	code, _ = e.do(t, http.MethodPost, "/v1/admin/orders/status", map[string]interface{}{"orderId": orderID, "status": "PENDING"}, auth)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = e.do(t, http.MethodPost, "/v1/admin/orders/status", map[string]interface{}{"orderId": 999, "status": "PAID"}, auth)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(t, http.MethodGet, "/v1/admin/orders?method=CARD&status=DENIED", nil, auth)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 1)

	code, body = e.do(t, http.MethodGet, fmt.Sprintf("/v1/admin/orders/history?orderId=%d", orderID), nil, auth)
	require.Equal(t, http.StatusOK, code)
	history := body["history"].([]interface{})
	require.Len(t, history, 2)
	assert.Equal(t, "admin", history[1].(map[string]interface{})["source"])

	code, _ = e.do(t, http.MethodPost, "/v1/admin/orders/retry-charge", map[string]int64{"orderId": orderID}, auth)
	assert.Equal(t, http.StatusUnprocessableEntity, code, "card orders have no PIX charge")
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
