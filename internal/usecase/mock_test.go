//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	"formative-compliance/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func timePtr(t time.Time) *time.Time { return &t }

// =============================
// Repositories
// =============================

// ---- Mock EntitlementRepository ----

type MockEntitlementRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Entitlement // key: user|product|access

	GrantFunc           func(ctx context.Context, tx repository.Tx, e *model.Entitlement) error
	FindValidByUserFunc func(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error)
	FindByProductFunc   func(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error)
	RevokeFunc          func(ctx context.Context, tx repository.Tx, userID string, at model.AccessType, now time.Time) (int, error)
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{rows: map[string]*model.Entitlement{}}
}

func entKey(userID, product string, at model.AccessType) string {
	return userID + "|" + product + "|" + string(at)
}

// Seed stores e as-is, bypassing Grant's reactivation logic.
func (m *MockEntitlementRepo) Seed(es ...*model.Entitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		cp := *e
		m.rows[entKey(e.UserID, e.ProductName, e.AccessType)] = &cp
	}
}

func (m *MockEntitlementRepo) Get(userID, product string, at model.AccessType) *model.Entitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[entKey(userID, product, at)]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (m *MockEntitlementRepo) Grant(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	if m.GrantFunc != nil {
		return m.GrantFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entKey(e.UserID, e.ProductName, e.AccessType)
	if old, ok := m.rows[k]; ok {
		e.ID = old.ID
	}
	cp := *e
	cp.IsActive = true
	cp.RevokedAt = nil
	m.rows[k] = &cp
	return nil
}

func (m *MockEntitlementRepo) RevokeByAccessType(ctx context.Context, tx repository.Tx, userID string, at model.AccessType, now time.Time) (int, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tx, userID, at, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.rows {
		if e.UserID == userID && e.AccessType == at && e.IsActive {
			e.Revoke(now)
			n++
		}
	}
	return n, nil
}

func (m *MockEntitlementRepo) FindValidByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error) {
	if m.FindValidByUserFunc != nil {
		return m.FindValidByUserFunc(ctx, tx, userID, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Entitlement
	for _, e := range m.rows {
		if e.UserID == userID && e.IsValidAt(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductName < out[j].ProductName })
	return out, nil
}

func (m *MockEntitlementRepo) FindValidByProduct(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error) {
	if m.FindByProductFunc != nil {
		return m.FindByProductFunc(ctx, tx, userID, productName, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.UserID == userID && e.ProductName == productName && e.IsValidAt(now) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEntitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Entitlement
	for _, e := range m.rows {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Subscription // key: stripe subscription id

	ListActiveByUserFunc func(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error)
	UpsertFunc           func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{rows: map[string]*model.Subscription{}}
}

func (m *MockSubscriptionRepo) Get(stripeID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[stripeID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.StripeSubscriptionID == "" {
		return domain.ErrInvalidArgument
	}
	cp := *s
	m.rows[s.StripeSubscriptionID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByStripeID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	if s := m.Get(id); s != nil {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindUserByCustomer(ctx context.Context, tx repository.Tx, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.StripeCustomerID == customerID {
			return s.UserID, nil
		}
	}
	return "", domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	if m.ListActiveByUserFunc != nil {
		return m.ListActiveByUserFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.rows {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListLapsed(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.rows {
		if s.PeriodLapsed(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range m.rows {
		out[s.Status]++
	}
	return out, nil
}

// ---- Mock UsageRepository ----

type MockUsageRepo struct {
	mu      sync.Mutex
	Records []*model.UsageRecord

	AppendFunc     func(ctx context.Context, tx repository.Tx, r *model.UsageRecord) error
	CountSinceFunc func(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int, error)
}

var _ repository.UsageRepository = (*MockUsageRepo)(nil)

func NewMockUsageRepo() *MockUsageRepo { return &MockUsageRepo{} }

func (m *MockUsageRepo) Append(ctx context.Context, tx repository.Tx, r *model.UsageRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.Records = append(m.Records, &cp)
	return nil
}

func (m *MockUsageRepo) CountSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int, error) {
	if m.CountSinceFunc != nil {
		return m.CountSinceFunc(ctx, tx, userID, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.Records {
		if r.UserID == userID && r.CountsSince(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockUsageRepo) SoftDeleteByDocument(ctx context.Context, tx repository.Tx, userID, documentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.UserID == userID && r.DocumentID == documentID && r.DeletedAt == nil {
			r.DeletedAt = timePtr(at)
		}
	}
	return nil
}

func (m *MockUsageRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}

// ---- Mock DocumentRepository ----

type MockDocumentRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Document

	SaveFunc func(ctx context.Context, tx repository.Tx, d *model.Document) error
}

var _ repository.DocumentRepository = (*MockDocumentRepo)(nil)

func NewMockDocumentRepo() *MockDocumentRepo {
	return &MockDocumentRepo{rows: map[string]*model.Document{}}
}

func (m *MockDocumentRepo) Save(ctx context.Context, tx repository.Tx, d *model.Document) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *MockDocumentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || d.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockDocumentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, d := range m.rows {
		if d.UserID == userID && d.DeletedAt == nil {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockDocumentRepo) IncrementDownloads(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || d.DeletedAt != nil {
		return domain.ErrNotFound
	}
	d.DownloadCount++
	return nil
}

func (m *MockDocumentRepo) SoftDelete(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok || d.DeletedAt != nil {
		return domain.ErrNotFound
	}
	d.DeletedAt = timePtr(at)
	return nil
}

func (m *MockDocumentRepo) Stats(ctx context.Context, tx repository.Tx, userID string, monthStart time.Time) (*model.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &model.DocumentStats{}
	for _, d := range m.rows {
		if d.UserID != userID || d.DeletedAt != nil {
			continue
		}
		st.TotalDocuments++
		st.TotalDownloads += d.DownloadCount
		if !d.CreatedAt.Before(monthStart) {
			st.MonthlyDocuments++
		}
	}
	return st, nil
}

func (m *MockDocumentRepo) All() []*model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0, len(m.rows))
	for _, d := range m.rows {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// ---- Mock DownloadRepository ----

type MockDownloadRepo struct {
	mu        sync.Mutex
	Downloads []*model.Download
}

var _ repository.DownloadRepository = (*MockDownloadRepo)(nil)

func (m *MockDownloadRepo) Save(ctx context.Context, tx repository.Tx, d *model.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.Downloads = append(m.Downloads, &cp)
	return nil
}

func (m *MockDownloadRepo) CountByDocument(ctx context.Context, tx repository.Tx, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.Downloads {
		if d.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

// ---- Mock ActivityRepository ----

type MockActivityRepo struct {
	mu     sync.Mutex
	Events []*model.Activity
}

var _ repository.ActivityRepository = (*MockActivityRepo)(nil)

func (m *MockActivityRepo) Save(ctx context.Context, tx repository.Tx, a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, a)
	return nil
}

func (m *MockActivityRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Activity
	for i := len(m.Events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.Events[i].UserID == userID {
			out = append(out, m.Events[i])
		}
	}
	return out, nil
}

func (m *MockActivityRepo) Types() []model.ActivityType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ActivityType, 0, len(m.Events))
	for _, e := range m.Events {
		out = append(out, e.Type)
	}
	return out
}

// ---- Mock CheckoutRepository ----

type MockCheckoutRepo struct {
	mu   sync.Mutex
	rows map[string]*model.CheckoutSession
}

var _ repository.CheckoutRepository = (*MockCheckoutRepo)(nil)

func NewMockCheckoutRepo() *MockCheckoutRepo {
	return &MockCheckoutRepo{rows: map[string]*model.CheckoutSession{}}
}

func (m *MockCheckoutRepo) Save(ctx context.Context, tx repository.Tx, c *model.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.rows[c.StripeSessionID]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *c
	m.rows[c.StripeSessionID] = &cp
	return nil
}

func (m *MockCheckoutRepo) FindByStripeID(ctx context.Context, tx repository.Tx, id string) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCheckoutRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, amount int64, currency string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status == model.CheckoutStatusCompleted {
		return domain.ErrAlreadyExists
	}
	c.Status = model.CheckoutStatusCompleted
	c.AmountTotal = amount
	c.Currency = currency
	c.CompletedAt = timePtr(at)
	return nil
}

func (m *MockCheckoutRepo) ExpirePendingBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.rows {
		if c.Status == model.CheckoutStatusPending && c.CreatedAt.Before(cutoff) {
			c.Status = model.CheckoutStatusExpired
			n++
		}
	}
	return n, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it. AfterCommit
// callbacks run when fn succeeds.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	txCtx, hooks := repository.WithTxHooks(ctx)
	if err := fn(txCtx, repository.NoTX); err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
}

// =============================
// Adapters
// =============================

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
	seq   int
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrBusy
	}
	l.seq++
	tok := "tok-" + strconv.Itoa(l.seq)
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu    sync.Mutex
	Calls int

	ChatFunc        func(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error)
	CountTokensFunc func(ctx context.Context, model string, messages []adapter.Message) (int, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) Provider() string     { return "mock" }
func (m *MockAI) DefaultModel() string { return "mock-model" }

func (m *MockAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(ctx, model, messages)
	}
	return 100, nil
}

func (m *MockAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, messages)
	}
	return longContent(), adapter.Usage{PromptTokens: 100, CompletionTokens: 800, TotalTokens: 900}, nil
}

func longContent() string {
	return "1. Purpose\n" + strings.Repeat("This policy sets out the compliance obligations of the business. ", 12)
}

// ---- Mock DocumentRenderer ----

type MockRenderer struct {
	F       model.Format
	ErrWith error
}

var _ adapter.DocumentRenderer = (*MockRenderer)(nil)

func (r *MockRenderer) Format() model.Format { return r.F }

func (r *MockRenderer) Render(w io.Writer, in adapter.RenderInput) error {
	if r.ErrWith != nil {
		return r.ErrWith
	}
	_, err := io.WriteString(w, in.Title+"\n"+in.Body)
	return err
}

// ---- Mock ObjectStorage ----

type MockStorage struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Deleted []string

	PutErr error
}

var _ adapter.ObjectStorage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage { return &MockStorage{Objects: map[string][]byte{}} }

func (s *MockStorage) Put(ctx context.Context, key, contentType string, body io.Reader) (*adapter.StoredObject, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = b
	return &adapter.StoredObject{Key: key, Size: int64(len(b))}, nil
}

func (s *MockStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Objects[key]; !ok {
		return "", domain.ErrNotFound
	}
	return "https://files.test/" + key + "?ttl=" + ttl.String(), nil
}

func (s *MockStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	s.Deleted = append(s.Deleted, key)
	return nil
}

// ---- Synchronous TaskQueue ----

type SyncQueue struct {
	SubmitErr error
}

var _ adapter.TaskQueue = (*SyncQueue)(nil)

func (q *SyncQueue) Submit(task func(ctx context.Context) error) error {
	if q.SubmitErr != nil {
		return q.SubmitErr
	}
	return task(context.Background())
}

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu       sync.Mutex
	Prices   map[string]adapter.PriceInfo
	Requests []adapter.CheckoutRequest

	CreateErr error
	ParseFunc func(ctx context.Context, payload []byte, signature string) (*adapter.BillingEvent, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) LookupPrice(ctx context.Context, priceID string) (*adapter.PriceInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.Prices[priceID]
	if !ok {
		return nil, domain.ErrInvalidPrice
	}
	return &p, nil
}

func (g *MockGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutResult, error) {
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	return &adapter.CheckoutResult{SessionID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (g *MockGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*adapter.BillingEvent, error) {
	if g.ParseFunc != nil {
		return g.ParseFunc(ctx, payload, signature)
	}
	return nil, domain.ErrInvalidSignature
}
