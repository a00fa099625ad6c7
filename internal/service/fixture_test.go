package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nurpe/skillspot-settlement/internal/config"
	"github.com/nurpe/skillspot-settlement/internal/db"
	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/model"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

// Tables owned by other services, reduced to the columns read here.
var externalTables = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT,
		user_type TEXT NOT NULL
	)`,
	`CREATE TABLE jobs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE job_applications (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		provider_id TEXT NOT NULL
	)`,
	`CREATE TABLE provider_profiles (
		user_id TEXT PRIMARY KEY,
		stripe_account_id TEXT,
		stripe_account_enabled BOOLEAN,
		total_earnings NUMERIC
	)`,
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) sentTo(userID uuid.UUID) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	err       error
	intents   map[string]*gateway.Intent
	sessions  map[string]*gateway.Session
	intentReq []gateway.IntentRequest
	checkouts []gateway.CheckoutRequest

	event    gateway.Event
	parseErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:  make(map[string]*gateway.Intent),
		sessions: make(map[string]*gateway.Session),
	}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	intent := &gateway.Intent{
		ID:           fmt.Sprintf("pi_%d", g.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.seq),
		Status:       gateway.IntentRequiresPaymentMethod,
		Metadata:     req.Metadata,
	}
	g.intents[intent.ID] = intent
	g.intentReq = append(g.intentReq, req)
	return intent, nil
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	session := &gateway.Session{
		ID:       fmt.Sprintf("cs_%d", g.seq),
		URL:      fmt.Sprintf("https://checkout.example.com/cs_%d", g.seq),
		Metadata: req.Metadata,
	}
	g.sessions[session.ID] = session
	g.checkouts = append(g.checkouts, req)
	return session, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, id string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	copied := *intent
	return &copied, nil
}

func (g *fakeGateway) GetSession(_ context.Context, id string) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session %s", id)
	}
	copied := *session
	return &copied, nil
}

func (g *fakeGateway) ParseEvent([]byte, string) (gateway.Event, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

// setIntent simulates the customer finishing (or abandoning) the payment.
func (g *fakeGateway) setIntent(id string, status gateway.IntentStatus, chargeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		intent = &gateway.Intent{ID: id}
		g.intents[id] = intent
	}
	intent.Status = status
	intent.ChargeID = chargeID
}

// paySession attaches a succeeded intent to a checkout session.
func (g *fakeGateway) paySession(sessionID, intentID string) {
	g.mu.Lock()
	session := g.sessions[sessionID]
	session.IntentID = intentID
	g.mu.Unlock()
	g.setIntent(intentID, gateway.IntentSucceeded, "ch_"+intentID)
}

type fixture struct {
	t           *testing.T
	ctx         context.Context
	db          *gorm.DB
	store       *repository.Store
	gw          *fakeGateway
	notifier    *recordingNotifier
	renderer    *stubRenderer
	contracts   *ContractService
	timeEntries *TimeEntryService
	payments    *PaymentService
	reconciler  *Reconciler

	client   model.Principal
	provider model.Principal
}

type stubRenderer struct {
	docs    []model.ContractDocument
	ledgers []model.LedgerStatement
}

func (r *stubRenderer) Render(doc model.ContractDocument) ([]byte, error) {
	r.docs = append(r.docs, doc)
	return []byte("%PDF-stub"), nil
}

type stubLedgerRenderer struct {
	r *stubRenderer
}

func (l stubLedgerRenderer) Render(statement model.LedgerStatement) ([]byte, error) {
	l.r.ledgers = append(l.r.ledgers, statement)
	return []byte("xlsx"), nil
}

func newTestDB(t *testing.T) *gorm.DB {
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
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, stmt := range externalTables {
		if err := database.Exec(stmt).Error; err != nil {
			t.Fatalf("create external table: %v", err)
		}
	}
	return database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := newTestDB(t)
	store := repository.NewStore(database)
	gw := newFakeGateway()
	notifier := &recordingNotifier{}
	renderer := &stubRenderer{}
	log := zerolog.Nop()

	cfg := config.PaymentsConfig{
		PlatformFeePercent: dec("5"),
		DefaultCurrency:    "USD",
		MinAmounts:         map[string]decimal.Decimal{"USD": dec("0.50")},
		FrontendURL:        "https://app.example.com",
	}

	reconciler := NewReconciler(store, notifier, log)
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		db:          database,
		store:       store,
		gw:          gw,
		notifier:    notifier,
		renderer:    renderer,
		contracts:   NewContractService(store, notifier, renderer, cfg.DefaultCurrency),
		timeEntries: NewTimeEntryService(store, notifier),
		payments:    NewPaymentService(store, gw, reconciler, stubLedgerRenderer{r: renderer}, cfg, log),
		reconciler:  reconciler,
	}
	f.client = f.addUser(model.UserTypeClient)
	f.provider = f.addUser(model.UserTypeProvider)
	return f
}

func (f *fixture) addUser(userType model.UserType) model.Principal {
	f.t.Helper()
	id := uuid.New()
	if err := f.db.Exec(`INSERT INTO users (id, email, full_name, user_type) VALUES (?, ?, ?, ?)`,
		id, id.String()[:8]+"@example.com", "User "+id.String()[:8], string(userType)).Error; err != nil {
		f.t.Fatalf("insert user: %v", err)
	}
	if userType != model.UserTypeClient {
		if err := f.db.Exec(`INSERT INTO provider_profiles (user_id, total_earnings) VALUES (?, 0)`, id).Error; err != nil {
			f.t.Fatalf("insert profile: %v", err)
		}
	}
	return model.Principal{UserID: id, UserType: userType}
}

func (f *fixture) setPayoutAccount(userID uuid.UUID, accountID string, enabled bool) {
	f.t.Helper()
	if err := f.db.Exec(`UPDATE provider_profiles SET stripe_account_id = ?, stripe_account_enabled = ? WHERE user_id = ?`,
		accountID, enabled, userID).Error; err != nil {
		f.t.Fatalf("set payout account: %v", err)
	}
}

func (f *fixture) earnings(userID uuid.UUID) decimal.Decimal {
	f.t.Helper()
	var row struct {
		TotalEarnings decimal.Decimal
	}
	if err := f.db.Raw(`SELECT COALESCE(total_earnings, 0) AS total_earnings FROM provider_profiles WHERE user_id = ?`, userID).
		Scan(&row).Error; err != nil {
		f.t.Fatalf("read earnings: %v", err)
	}
	return row.TotalEarnings
}

func (f *fixture) addJob(clientID uuid.UUID) uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	if err := f.db.Exec(`INSERT INTO jobs (id, client_id, status) VALUES (?, ?, ?)`, id, clientID, string(model.JobStatusOpen)).Error; err != nil {
		f.t.Fatalf("insert job: %v", err)
	}
	return id
}

func (f *fixture) jobStatus(id uuid.UUID) string {
	f.t.Helper()
	var row struct{ Status string }
	if err := f.db.Raw(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&row).Error; err != nil {
		f.t.Fatalf("read job: %v", err)
	}
	return row.Status
}

func (f *fixture) addApplication(jobID, providerID uuid.UUID) uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	if err := f.db.Exec(`INSERT INTO job_applications (id, job_id, provider_id) VALUES (?, ?, ?)`, id, jobID, providerID).Error; err != nil {
		f.t.Fatalf("insert application: %v", err)
	}
	return id
}

func (f *fixture) createInput(schedule model.PaymentSchedule, total string, rate string) CreateContractInput {
	input := CreateContractInput{
		Principal:       f.client,
		ProviderID:      f.provider.UserID,
		Title:           "Kitchen renovation",
		TotalAmount:     dec(total),
		PaymentSchedule: schedule,
		StartDate:       time.Now().UTC(),
	}
	if rate != "" {
		input.HourlyRate = decimal.NewNullDecimal(dec(rate))
	}
	return input
}

func (f *fixture) draftContract(schedule model.PaymentSchedule, total string, rate string) *model.Contract {
	f.t.Helper()
	contract, err := f.contracts.Create(f.ctx, f.createInput(schedule, total, rate))
	if err != nil {
		f.t.Fatalf("create contract: %v", err)
	}
	return contract
}

func (f *fixture) sign(p model.Principal, contractID uuid.UUID) *SignResult {
	f.t.Helper()
	result, err := f.contracts.Sign(f.ctx, SignInput{
		Principal:     p,
		ContractID:    contractID,
		SignatureData: "signed by " + p.UserID.String(),
	})
	if err != nil {
		f.t.Fatalf("sign: %v", err)
	}
	return result
}

func (f *fixture) activeContract(schedule model.PaymentSchedule, total string, rate string) *model.Contract {
	f.t.Helper()
	contract := f.draftContract(schedule, total, rate)
	f.sign(f.client, contract.ID)
	result := f.sign(f.provider, contract.ID)
	if result.Contract.Status != model.ContractStatusActive {
		f.t.Fatalf("expected ACTIVE, got %s", result.Contract.Status)
	}
	return result.Contract
}

func (f *fixture) approvedEntry(contractID uuid.UUID, hours string) *model.TimeEntry {
	f.t.Helper()
	entry, err := f.timeEntries.Submit(f.ctx, SubmitTimeEntryInput{
		Principal:  f.provider,
		ContractID: contractID,
		Date:       time.Now().UTC(),
		Hours:      dec(hours),
	})
	if err != nil {
		f.t.Fatalf("submit time entry: %v", err)
	}
	approved, err := f.timeEntries.Review(f.ctx, f.client, entry.ID, model.TimeEntryStatusApproved)
	if err != nil {
		f.t.Fatalf("approve time entry: %v", err)
	}
	return approved
}

func (f *fixture) payment(id uuid.UUID) *model.Payment {
	f.t.Helper()
	payment, err := f.store.Payments.GetWithTransactions(f.ctx, id)
	if err != nil {
		f.t.Fatalf("load payment: %v", err)
	}
	return payment
}

func (f *fixture) contract(id uuid.UUID) *model.Contract {
	f.t.Helper()
	contract, err := f.store.Contracts.GetAggregate(f.ctx, id)
	if err != nil {
		f.t.Fatalf("load contract: %v", err)
	}
	return contract
}

func countTransactions(p *model.Payment, txnType model.TransactionType, eventID string) int {
	n := 0
	for _, txn := range p.Transactions {
		if txn.TransactionType == txnType && (eventID == "" || txn.ExternalEventID == eventID) {
			n++
		}
	}
	return n
}
