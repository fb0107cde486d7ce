//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kainan-app/api/internal/config"
	"github.com/kainan-app/api/internal/database"
	"github.com/kainan-app/api/internal/enum"
	"github.com/kainan-app/api/internal/payment"
	"github.com/kainan-app/api/internal/router"
	"github.com/kainan-app/api/internal/ws"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full API lifecycle against a real
// PostgreSQL database: checkout contention for the last unit of stock,
// duplicate webhook delivery, and the staff status drive. The conditional
// UPDATEs behind those paths only show their behavior on a real database.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// Run migrations
	runMigrations(t, connStr)

	// Create pgxpool connection
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	// Fake gateway: mints intents that echo amount, currency and metadata.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Amount   int64             `json:"amount"`
			Currency string            `json:"currency"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "pi_itest_1",
			"client_secret": "pi_itest_1_secret",
			"amount":        req.Amount,
			"currency":      req.Currency,
			"status":        payment.IntentStatusAwaiting,
			"metadata":      req.Metadata,
		})
	}))
	defer gateway.Close()

	// Initialize dependencies
	cfg := &config.Config{
		Port:                 "8083",
		DatabaseURL:          connStr,
		JWTSecret:            "integration-test-secret",
		TaxRate:              decimal.RequireFromString("0.12"),
		ReservationFee:       20000,
		PaymentAPIURL:        gateway.URL,
		PaymentSecretKey:     "sk_test_itest",
		PaymentWebhookSecret: testWebhookSecret,
		PaymentTimeout:       5 * time.Second,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()

	// Build router
	r := router.New(cfg, queries, pool, hub)

	// Create HTTP test server
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Create staff user (manual DB insert to bootstrap) ---
	createStaffUser(t, ctx, pool)
	staffToken := loginUser(t, server, "kusina@kainan.ph", "password123")

	// --- 2. Register two customers through the API ---
	anaToken := registerUser(t, server, "ana@example.com", "Ana Reyes")
	benToken := registerUser(t, server, "ben@example.com", "Ben Santos")

	// --- 3. Staff creates a menu item with exactly one unit in stock ---
	itemResp := httpPostJSON(t, server, "/menu", map[string]interface{}{
		"name":        "Halo-Halo Special",
		"price":       "150.00",
		"category":    "DESSERTS",
		"stock_count": 1,
	}, staffToken)
	itemID := itemResp["id"].(string)

	// --- 4. Both customers stage the item in their carts ---
	// Cart staging is advisory; both succeed because nothing is reserved yet.
	addCartLine(t, server, anaToken, itemID)
	addCartLine(t, server, benToken, itemID)

	// --- 5. Two concurrent checkouts race for the last unit ---
	// The conditional decrement must let exactly one order through.
	winnerToken, winnerOrder := raceCheckout(t, server, anaToken, benToken)
	orderID := winnerOrder["id"].(string)
	if winnerOrder["total"].(string) != "168.00" {
		t.Fatalf("order total: got %s, want 168.00 (150.00 + 12%% tax)", winnerOrder["total"])
	}
	if winnerOrder["status"].(string) != enum.OrderStatusPending {
		t.Fatalf("order status: got %s, want %s", winnerOrder["status"], enum.OrderStatusPending)
	}

	// Stock is fully consumed.
	afterItem := httpGetJSON(t, server, "/menu/"+itemID, staffToken)
	if afterItem["stock_count"].(float64) != 0 {
		t.Fatalf("stock_count after checkout: got %v, want 0", afterItem["stock_count"])
	}

	// The winner's cart was consumed by the checkout.
	cart := httpGetJSON(t, server, "/cart", winnerToken)
	if lines := cart["lines"].([]interface{}); len(lines) != 0 {
		t.Fatalf("cart lines after checkout: got %d, want 0", len(lines))
	}

	// --- 6. Winner opens a gateway payment ---
	beginResp := httpPostJSON(t, server, "/orders/"+orderID+"/payment", nil, winnerToken)
	reference := beginResp["reference"].(string)
	amount := int64(beginResp["amount"].(float64))
	if amount != 16800 {
		t.Fatalf("payment amount: got %d centavos, want 16800", amount)
	}

	// --- 7. Gateway delivers the settlement webhook twice ---
	first := deliverWebhook(t, server, reference, orderID, amount)
	if first["status"] != "processed" {
		t.Fatalf("first delivery: got %v, want processed", first["status"])
	}

	afterFirst := httpGetJSON(t, server, "/orders/"+orderID, winnerToken)
	if afterFirst["payment_status"].(string) != enum.PaymentStatusPaid {
		t.Fatalf("payment_status after webhook: got %s, want %s", afterFirst["payment_status"], enum.PaymentStatusPaid)
	}
	if afterFirst["status"].(string) != enum.OrderStatusPreparing {
		t.Fatalf("order status after payment: got %s, want %s", afterFirst["status"], enum.OrderStatusPreparing)
	}
	paidAt, ok := afterFirst["paid_at"].(string)
	if !ok || paidAt == "" {
		t.Fatalf("paid_at not set after webhook: %v", afterFirst["paid_at"])
	}

	// Redelivery of the same signed payload changes nothing.
	second := deliverWebhook(t, server, reference, orderID, amount)
	if second["status"] != "processed" {
		t.Fatalf("second delivery: got %v, want processed", second["status"])
	}
	afterSecond := httpGetJSON(t, server, "/orders/"+orderID, winnerToken)
	if afterSecond["paid_at"].(string) != paidAt {
		t.Fatalf("paid_at moved on duplicate delivery: %s -> %s", paidAt, afterSecond["paid_at"])
	}
	if afterSecond["status"].(string) != enum.OrderStatusPreparing {
		t.Fatalf("status moved on duplicate delivery: %s", afterSecond["status"])
	}

	// --- 8. Staff drives the order to completion ---
	patchStatus(t, server, orderID, enum.OrderStatusReady, staffToken, http.StatusOK)

	// A customer cannot cancel once the kitchen is past PENDING.
	patchStatus(t, server, orderID, enum.OrderStatusCancelled, winnerToken, http.StatusForbidden)

	patchStatus(t, server, orderID, enum.OrderStatusCompleted, staffToken, http.StatusOK)
	final := httpGetJSON(t, server, "/orders/"+orderID, winnerToken)
	if final["status"].(string) != enum.OrderStatusCompleted {
		t.Fatalf("final status: got %s, want %s", final["status"], enum.OrderStatusCompleted)
	}

	t.Logf("Integration flow passed: container=%s, item=%s, order=%s, reference=%s",
		pgContainer.GetContainerID(), itemID, orderID, reference)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("kainan_test"),
		tcpostgres.WithUsername("kainan"),
		tcpostgres.WithPassword("kainan"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// Connect with stdlib for migrate
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory (internal/handler/).
	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createStaffUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, hashed_password, is_staff)
		 VALUES ($1, $2, $3, true)
		 RETURNING id`,
		"kusina@kainan.ph", "Kusina Staff", string(hashedPassword),
	).Scan(&id)
	if err != nil {
		t.Fatalf("create staff user: %v", err)
	}
	return id
}

// --- API call helpers ---

func registerUser(t *testing.T, server *httptest.Server, email, fullName string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/register", map[string]interface{}{
		"email":     email,
		"password":  "password123",
		"full_name": fullName,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("register %s: no access_token in response: %+v", email, resp)
	}
	return token
}

func loginUser(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login %s: no access_token in response: %+v", email, resp)
	}
	return token
}

func addCartLine(t *testing.T, server *httptest.Server, token, itemID string) {
	t.Helper()
	httpPostJSON(t, server, "/cart/lines", map[string]interface{}{
		"menu_item_id": itemID,
		"quantity":     1,
	}, token)
}

// raceCheckout fires two checkouts at once and asserts exactly one wins the
// last unit; the loser must see the stock conflict, not a partial order.
func raceCheckout(t *testing.T, server *httptest.Server, tokenA, tokenB string) (string, map[string]interface{}) {
	t.Helper()

	type attempt struct {
		token string
		code  int
		body  map[string]interface{}
	}
	results := make(chan attempt, 2)

	var wg sync.WaitGroup
	for _, token := range []string{tokenA, tokenB} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			code, body := httpDoJSON(t, server, "POST", "/orders", map[string]interface{}{}, token)
			results <- attempt{token: token, code: code, body: body}
		}(token)
	}
	wg.Wait()
	close(results)

	var winnerToken string
	var winnerOrder map[string]interface{}
	var conflicts int
	for a := range results {
		switch a.code {
		case http.StatusCreated:
			winnerToken = a.token
			winnerOrder = a.body
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("checkout returned %d: %+v", a.code, a.body)
		}
	}
	if winnerOrder == nil || conflicts != 1 {
		t.Fatalf("checkout race: want one 201 and one 409, got winner=%v conflicts=%d", winnerOrder, conflicts)
	}
	return winnerToken, winnerOrder
}

func deliverWebhook(t *testing.T, server *httptest.Server, reference, orderID string, amount int64) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"reference": reference,
		"status":    payment.IntentStatusSucceeded,
		"amount":    amount,
		"metadata": map[string]string{
			"subject_type": enum.SubjectTypeOrder,
			"subject_id":   orderID,
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+"/webhooks/payment", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signWebhook(testWebhookSecret, body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deliver webhook: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook delivery: status %d", resp.StatusCode)
	}
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	return result
}

func patchStatus(t *testing.T, server *httptest.Server, orderID, status, token string, wantCode int) {
	t.Helper()
	code, body := httpDoJSON(t, server, "PATCH", "/orders/"+orderID+"/status",
		map[string]interface{}{"status": status}, token)
	if code != wantCode {
		t.Fatalf("PATCH status %s: got %d, want %d; body: %v", status, code, wantCode, body)
	}
}

// --- HTTP helpers ---

func httpDoJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	code, result := httpDoJSON(t, server, "POST", path, body, token)
	if code < 200 || code >= 300 {
		t.Fatalf("POST %s: status %d, body: %v", path, code, result)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}
