//go:build !integration

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"formative-compliance/internal/catalog"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
	red "formative-compliance/internal/infra/redis"
	"formative-compliance/internal/usecase"
)

const testSecret = "test-secret-with-enough-entropy-0123456789"

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeEntitlements struct {
	StatusFunc func(ctx context.Context, userID, industryID, packID string) (*usecase.EntitlementStatus, error)
}

func (f *fakeEntitlements) Evaluate(context.Context, string) model.GenerationPermit {
	return model.FinitePermit(3, 0)
}
func (f *fakeEntitlements) Commit(context.Context, string, string) {}
func (f *fakeEntitlements) HasPackAccess(context.Context, string, string, string) bool {
	return false
}
func (f *fakeEntitlements) AllowsPack(context.Context, string, string, string) bool { return false }
func (f *fakeEntitlements) Status(ctx context.Context, userID, industryID, packID string) (*usecase.EntitlementStatus, error) {
	if f.StatusFunc != nil {
		return f.StatusFunc(ctx, userID, industryID, packID)
	}
	return &usecase.EntitlementStatus{GenerationPermit: model.FinitePermit(3, 0)}, nil
}

type fakeGeneration struct {
	GenerateFunc func(ctx context.Context, req usecase.GenerateRequest) (*usecase.GenerateResult, error)
	Last         usecase.GenerateRequest
}

func (f *fakeGeneration) Generate(ctx context.Context, req usecase.GenerateRequest) (*usecase.GenerateResult, error) {
	f.Last = req
	return f.GenerateFunc(ctx, req)
}

type fakeDocuments struct {
	DownloadFunc func(ctx context.Context, req usecase.DownloadRequest) (*usecase.DownloadLink, error)
	DeleteFunc   func(ctx context.Context, userID, documentID string) error
	docs         []*model.Document
}

func (f *fakeDocuments) List(_ context.Context, userID string, _, _ int) ([]*model.Document, error) {
	var out []*model.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) Download(ctx context.Context, req usecase.DownloadRequest) (*usecase.DownloadLink, error) {
	return f.DownloadFunc(ctx, req)
}

func (f *fakeDocuments) Delete(ctx context.Context, userID, documentID string) error {
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, userID, documentID)
	}
	return nil
}

func (f *fakeDocuments) Stats(context.Context, string) (*model.DocumentStats, error) {
	return &model.DocumentStats{TotalDocuments: len(f.docs)}, nil
}

func (f *fakeDocuments) Activity(context.Context, string, int) ([]*model.Activity, error) {
	return nil, nil
}

type fakeCheckout struct {
	Last usecase.CheckoutInput
	Err  error
}

func (f *fakeCheckout) Start(_ context.Context, in usecase.CheckoutInput) (*adapter.CheckoutResult, error) {
	f.Last = in
	if f.Err != nil {
		return nil, f.Err
	}
	return &adapter.CheckoutResult{SessionID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

type fakeBilling struct {
	WebhookFunc func(ctx context.Context, payload []byte, sig string) error
}

func (f *fakeBilling) HandleWebhook(ctx context.Context, payload []byte, sig string) error {
	return f.WebhookFunc(ctx, payload, sig)
}

func (f *fakeBilling) HandleEvent(context.Context, *adapter.BillingEvent) error { return nil }

type fakeLimiter struct {
	decision red.RateDecision
	err      error
	keys     []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (red.RateDecision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	ents    *fakeEntitlements
	gen     *fakeGeneration
	docs    *fakeDocuments
	co      *fakeCheckout
	billing *fakeBilling
	limiter *fakeLimiter
	probes  map[string]Pinger
	auth    *AuthManager
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	f := &apiFixture{
		ents:    &fakeEntitlements{},
		gen:     &fakeGeneration{},
		docs:    &fakeDocuments{},
		co:      &fakeCheckout{},
		billing: &fakeBilling{WebhookFunc: func(context.Context, []byte, string) error { return nil }},
		limiter: &fakeLimiter{decision: red.RateDecision{Allowed: true, Limit: 10, Remaining: 9}},
		probes:  map[string]Pinger{"postgres": fakePinger{}},
		auth:    NewAuthManager(testSecret, "formative", "", time.Hour),
	}
	srv := NewServer(Deps{
		Entitlements: f.ents,
		Generation:   f.gen,
		Documents:    f.docs,
		Checkout:     f.co,
		Billing:      f.billing,
		Catalog:      cat,
		Auth:         f.auth,
		Limiter:      f.limiter,
		Probes:       f.probes,
	}, Options{Port: 0}, nopLogger())
	f.handler = srv.Routes()
	return f
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.auth.Mint(userID, userID+"@example.com.au")
	require.NoError(t, err)
	return tok
}

// do sends a request as userID; an empty userID sends no Authorization header.
func (f *apiFixture) do(t *testing.T, method, path, userID, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}
