package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs and tests. Prices are
// registered up front; webhook payloads are plain JSON adapter.BillingEvent values and
// the signature must equal the configured secret.
type NoopPaymentGateway struct {
	mu     sync.Mutex
	seq    int64
	secret string
	prices map[string]adapter.PriceInfo
	// Sessions records every checkout created, keyed by session id.
	Sessions map[string]adapter.CheckoutRequest
}

func NewNoopPaymentGateway(secret string, prices ...adapter.PriceInfo) *NoopPaymentGateway {
	g := &NoopPaymentGateway{
		secret:   secret,
		prices:   make(map[string]adapter.PriceInfo, len(prices)),
		Sessions: make(map[string]adapter.CheckoutRequest),
	}
	for _, p := range prices {
		g.prices[p.ID] = p
	}
	return g
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("cs_noop_%d", g.seq)
}

func (g *NoopPaymentGateway) LookupPrice(ctx context.Context, priceID string) (*adapter.PriceInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[priceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, priceID)
	}
	return &p, nil
}

func (g *NoopPaymentGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next()
	g.Sessions[id] = req
	return &adapter.CheckoutResult{
		SessionID: id,
		URL:       strings.TrimRight(req.SuccessURL, "/") + "#" + id,
	}, nil
}

func (g *NoopPaymentGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*adapter.BillingEvent, error) {
	if g.secret == "" || signature != g.secret {
		return nil, domain.ErrInvalidSignature
	}
	var ev adapter.BillingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
