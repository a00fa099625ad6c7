package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nurpe/skillspot-settlement/internal/auth"
	"github.com/nurpe/skillspot-settlement/internal/config"
	"github.com/nurpe/skillspot-settlement/internal/db"
	"github.com/nurpe/skillspot-settlement/internal/excel"
	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/http/middleware"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/pdf"
	"github.com/nurpe/skillspot-settlement/internal/repository"
	"github.com/nurpe/skillspot-settlement/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type webhookGateway struct {
	gateway.Disabled
	event gateway.Event
	err   error
}

func (g webhookGateway) ParseEvent([]byte, string) (gateway.Event, error) {
	return g.event, g.err
}

func TestHandleErrorStatus(t *testing.T) {
	h := &Handler{log: zerolog.Nop()}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"permission", fmt.Errorf("%w: nope", service.ErrPermissionDenied), http.StatusForbidden},
		{"conflict wins over invalid", fmt.Errorf("%w: %w: paid", service.ErrConflict, service.ErrInvalidInput), http.StatusConflict},
		{"invalid", fmt.Errorf("%w: bad", service.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: contract", service.ErrNotFound), http.StatusNotFound},
		{"precondition", fmt.Errorf("%w: not active", service.ErrPreconditionFailed), http.StatusUnprocessableEntity},
		{"gateway", fmt.Errorf("%w: timeout", service.ErrGateway), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			h.handleError(c, tt.err)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusInternalServerError && strings.Contains(w.Body.String(), "boom") {
				t.Error("internal errors must not leak their message")
			}
		})
	}
}

func TestStripeWebhookStatus(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{"bad signature", gateway.ErrInvalidSignature, http.StatusBadRequest, "signature"},
		{"malformed", gateway.ErrMalformedEvent, http.StatusBadRequest, "malformed"},
		{"not configured", gateway.ErrDisabled, http.StatusBadRequest, "not configured"},
		{"unsupported type", gateway.ErrUnsupportedEvent, http.StatusOK, `"ignored"`},
		{"processing error", errors.New("database unavailable"), http.StatusOK, `"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := service.NewPaymentService(nil, webhookGateway{err: tt.err}, nil, nil, config.PaymentsConfig{}, zerolog.Nop())
			h := NewHandler(nil, nil, payments, zerolog.Nop())
			router := gin.New()
			router.POST("/webhooks/stripe", h.stripeWebhook)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.expectedBody) {
				t.Errorf("Expected body to contain %s, got %s", tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestCORSConfig(t *testing.T) {
	if cfg := corsConfig(nil); !cfg.AllowAllOrigins || cfg.AllowCredentials {
		t.Error("no origins should allow all without credentials")
	}
	if cfg := corsConfig([]string{"https://a.example.com", "*"}); !cfg.AllowAllOrigins || cfg.AllowCredentials {
		t.Error("wildcard should allow all without credentials")
	}
	cfg := corsConfig([]string{"https://a.example.com"})
	if cfg.AllowAllOrigins || !cfg.AllowCredentials || len(cfg.AllowOrigins) != 1 {
		t.Errorf("unexpected config for explicit origins: %+v", cfg)
	}
}

// testAPI is a router over an in-memory database with one client and one provider.
type testAPI struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	parser   *auth.Parser
	client   model.Principal
	provider model.Principal
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL, full_name TEXT, user_type TEXT NOT NULL)`,
		`CREATE TABLE jobs (id TEXT PRIMARY KEY, client_id TEXT NOT NULL, status TEXT NOT NULL)`,
		`CREATE TABLE job_applications (id TEXT PRIMARY KEY, job_id TEXT NOT NULL, provider_id TEXT NOT NULL)`,
		`CREATE TABLE provider_profiles (user_id TEXT PRIMARY KEY, stripe_account_id TEXT, stripe_account_enabled BOOLEAN, total_earnings NUMERIC)`,
	} {
		if err := database.Exec(stmt).Error; err != nil {
			t.Fatalf("create external table: %v", err)
		}
	}

	log := zerolog.Nop()
	cfg := config.PaymentsConfig{
		PlatformFeePercent: decimal.NewFromInt(5),
		DefaultCurrency:    "USD",
		MinAmounts:         map[string]decimal.Decimal{"USD": decimal.RequireFromString("0.50")},
		FrontendURL:        "https://app.example.com",
	}
	store := repository.NewStore(database)
	notifier := notify.NewLogNotifier(log)
	reconciler := service.NewReconciler(store, notifier, log)
	handler := NewHandler(
		service.NewContractService(store, notifier, pdf.NewGenerator(), cfg.DefaultCurrency),
		service.NewTimeEntryService(store, notifier),
		service.NewPaymentService(store, gateway.Disabled{}, reconciler, excel.NewGenerator(), cfg, log),
		log,
	)
	parser := auth.NewParser(testSecret)

	api := &testAPI{
		t:      t,
		db:     database,
		router: NewRouter(handler, middleware.Auth(parser), "development", nil, log),
		parser: parser,
	}
	api.client = api.addUser(model.UserTypeClient)
	api.provider = api.addUser(model.UserTypeProvider)
	return api
}

func (a *testAPI) addUser(userType model.UserType) model.Principal {
	a.t.Helper()
	id := uuid.New()
	if err := a.db.Exec(`INSERT INTO users (id, email, full_name, user_type) VALUES (?, ?, ?, ?)`,
		id, id.String()[:8]+"@example.com", "Test User", string(userType)).Error; err != nil {
		a.t.Fatalf("insert user: %v", err)
	}
	return model.Principal{UserID: id, UserType: userType}
}

func (a *testAPI) do(p *model.Principal, method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		token, _, err := a.parser.Issue(*p, time.Hour)
		if err != nil {
			a.t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

type contractBody struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

func (a *testAPI) createContract(schedule string, total string, rate *string) contractBody {
	a.t.Helper()
	body := gin.H{
		"provider_id":      a.provider.UserID.String(),
		"title":            "Garden design",
		"total_amount":     total,
		"payment_schedule": schedule,
		"start_date":       time.Now().UTC().Format("2006-01-02"),
	}
	if rate != nil {
		body["hourly_rate"] = *rate
	}
	w := a.do(&a.client, http.MethodPost, "/contracts", body)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("create contract: status %d body %s", w.Code, w.Body.String())
	}
	var contract contractBody
	decode(a.t, w, &contract)
	return contract
}

func (a *testAPI) activate(id uuid.UUID) {
	a.t.Helper()
	for _, p := range []*model.Principal{&a.client, &a.provider} {
		w := a.do(p, http.MethodPost, "/contracts/"+id.String()+"/sign", gin.H{"signature_data": "sig"})
		if w.Code != http.StatusOK {
			a.t.Fatalf("sign: status %d body %s", w.Code, w.Body.String())
		}
	}
}

func TestHealthAndAuth(t *testing.T) {
	api := newTestAPI(t)

	if w := api.do(nil, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", w.Code)
	}
	if w := api.do(nil, http.MethodGet, "/contracts", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list: expected 401, got %d", w.Code)
	}
	if w := api.do(&api.client, http.MethodGet, "/contracts/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	w := api.do(&api.client, http.MethodGet, "/contracts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	contract := api.createContract("FIXED", "1000", nil)
	if contract.Status != string(model.ContractStatusDraft) {
		t.Fatalf("expected DRAFT, got %s", contract.Status)
	}
	base := "/contracts/" + contract.ID.String()

	outsider := api.addUser(model.UserTypeBoth)
	if w := api.do(&outsider, http.MethodPost, base+"/sign", gin.H{"signature_data": "sig"}); w.Code != http.StatusForbidden {
		t.Errorf("outsider sign: expected 403, got %d", w.Code)
	}
	if w := api.do(&outsider, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("outsider get: expected 404, got %d", w.Code)
	}
	if w := api.do(&api.client, http.MethodPost, base+"/sign", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing signature data: expected 400, got %d", w.Code)
	}

	w := api.do(&api.client, http.MethodPost, base+"/sign", gin.H{"signature_data": "client"})
	if w.Code != http.StatusOK {
		t.Fatalf("client sign: %d %s", w.Code, w.Body.String())
	}
	var first struct {
		Activated bool `json:"activated"`
	}
	decode(t, w, &first)
	if first.Activated {
		t.Error("single signature must not activate")
	}
	if w := api.do(&api.client, http.MethodPost, base+"/sign", gin.H{"signature_data": "again"}); w.Code != http.StatusConflict {
		t.Errorf("double sign: expected 409, got %d", w.Code)
	}

	w = api.do(&api.provider, http.MethodPost, base+"/sign", gin.H{"signature_data": "provider", "signature_type": "text"})
	if w.Code != http.StatusOK {
		t.Fatalf("provider sign: %d %s", w.Code, w.Body.String())
	}
	var second struct {
		Activated bool         `json:"activated"`
		Contract  contractBody `json:"contract"`
	}
	decode(t, w, &second)
	if !second.Activated || second.Contract.Status != string(model.ContractStatusActive) {
		t.Errorf("expected activation, got %+v", second)
	}

	w = api.do(&api.provider, http.MethodGet, base, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var view struct {
		IsFullySigned bool `json:"is_fully_signed"`
	}
	decode(t, w, &view)
	if !view.IsFullySigned {
		t.Error("expected is_fully_signed")
	}

	if w := api.do(&api.client, http.MethodDelete, base, nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("delete active: expected 422, got %d", w.Code)
	}

	w = api.do(&api.client, http.MethodGet, base+"/document", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("document: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "contract-Garden-design.pdf") {
		t.Errorf("unexpected content disposition %s", cd)
	}

	w = api.do(&api.client, http.MethodPost, base+"/status", gin.H{"status": "completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	var done contractBody
	decode(t, w, &done)
	if done.Status != string(model.ContractStatusCompleted) {
		t.Errorf("expected COMPLETED, got %s", done.Status)
	}
}

func TestPaymentsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	rate := "150"
	contract := api.createContract("HOURLY", "1500", &rate)
	api.activate(contract.ID)
	base := "/contracts/" + contract.ID.String()

	w := api.do(&api.provider, http.MethodPost, base+"/time-entries", gin.H{
		"date":  time.Now().UTC().Format("2006-01-02"),
		"hours": "2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit entry: %d %s", w.Code, w.Body.String())
	}
	var entry struct {
		ID uuid.UUID `json:"id"`
	}
	decode(t, w, &entry)

	if w := api.do(&api.client, http.MethodPost, base+"/time-entries", gin.H{"date": "2020-01-01", "hours": "2"}); w.Code != http.StatusForbidden {
		t.Errorf("client logs time: expected 403, got %d", w.Code)
	}
	if w := api.do(&api.provider, http.MethodPost, base+"/time-entries", gin.H{"date": "yesterday", "hours": "2"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", w.Code)
	}

	w = api.do(&api.client, http.MethodPost, "/time-entries/"+entry.ID.String()+"/review", gin.H{"status": "approved"})
	if w.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}

	w = api.do(&api.client, http.MethodPost, "/payments", gin.H{
		"contract_id":   contract.ID.String(),
		"time_entry_id": entry.ID.String(),
		"amount":        "301",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong amount: expected 400, got %d", w.Code)
	}

	w = api.do(&api.client, http.MethodPost, "/payments", gin.H{
		"contract_id":   contract.ID.String(),
		"time_entry_id": entry.ID.String(),
		"amount":        "300",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create payment: %d %s", w.Code, w.Body.String())
	}
	var payment struct {
		ID          uuid.UUID       `json:"id"`
		Status      string          `json:"status"`
		PlatformFee decimal.Decimal `json:"platform_fee"`
	}
	decode(t, w, &payment)
	if payment.Status != string(model.PaymentStatusPending) || !payment.PlatformFee.Equal(decimal.NewFromInt(15)) {
		t.Errorf("unexpected payment %+v", payment)
	}

	if w := api.do(&api.client, http.MethodPost, "/payments/"+payment.ID.String()+"/intent", nil); w.Code != http.StatusBadGateway {
		t.Errorf("intent without gateway: expected 502, got %d", w.Code)
	}

	w = api.do(&api.provider, http.MethodGet, "/payments/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d", w.Code)
	}
	var history struct {
		Data []struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	decode(t, w, &history)
	if len(history.Data) != 1 || history.Data[0].ID != payment.ID {
		t.Errorf("unexpected history %+v", history)
	}

	if w := api.do(&api.client, http.MethodGet, "/payments?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: expected 400, got %d", w.Code)
	}
	w = api.do(&api.client, http.MethodGet, "/payments?status=pending&contract="+contract.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("filtered list: %d", w.Code)
	}
	var listed struct {
		Data []json.RawMessage `json:"data"`
	}
	decode(t, w, &listed)
	if len(listed.Data) != 1 {
		t.Errorf("expected 1 pending payment, got %d", len(listed.Data))
	}

	w = api.do(&api.provider, http.MethodGet, base+"/payments/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".xlsx") {
		t.Errorf("unexpected content disposition %s", cd)
	}
}
