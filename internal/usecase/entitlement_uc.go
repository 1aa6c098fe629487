package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/infra/metrics"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// DefaultStarterMonthlyLimit is the Starter quota when none is configured.
const DefaultStarterMonthlyLimit = 3

// EntitlementUseCase gates document generation.
//
// Evaluate, Commit and HasPackAccess never return errors: store failures are logged and
// converted to closed permits (reads) or dropped writes (Commit).
type EntitlementUseCase interface {
	Evaluate(ctx context.Context, userID string) model.GenerationPermit
	Commit(ctx context.Context, userID, documentID string)
	HasPackAccess(ctx context.Context, userID, industryID, packID string) bool
	// AllowsPack is the pack-scope filter applied before Evaluate on generation.
	AllowsPack(ctx context.Context, userID, industryID, packID string) bool
	Status(ctx context.Context, userID, industryID, packID string) (*EntitlementStatus, error)
}

// EntitlementSummary is the client-facing view of one valid entitlement.
type EntitlementSummary struct {
	ProductName string           `json:"productName"`
	AccessType  model.AccessType `json:"accessType"`
	Tier        model.Tier       `json:"tier"`
	GrantedAt   time.Time        `json:"grantedAt"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

// EntitlementStatus is the permit plus the context a client needs to render quota state.
type EntitlementStatus struct {
	model.GenerationPermit
	PackAccess   *bool                `json:"packAccess,omitempty"`
	Entitlements []EntitlementSummary `json:"entitlements"`
}

type entitlementUC struct {
	entitlements repository.EntitlementRepository
	subs         repository.SubscriptionRepository
	usage        repository.UsageRepository
	starterLimit int
	overrides    map[string]model.Tier
	now          func() time.Time
	log          *zerolog.Logger
}

// EntitlementOption customises an entitlement use case.
type EntitlementOption func(*entitlementUC)

// WithClock replaces time.Now; month boundaries follow the returned time's location.
func WithClock(now func() time.Time) EntitlementOption {
	return func(u *entitlementUC) { u.now = now }
}

// WithTierOverrides maps exact product names to tiers for rows stored without one.
func WithTierOverrides(overrides map[string]model.Tier) EntitlementOption {
	return func(u *entitlementUC) { u.overrides = overrides }
}

func NewEntitlementUseCase(
	entitlements repository.EntitlementRepository,
	subs repository.SubscriptionRepository,
	usage repository.UsageRepository,
	starterLimit int,
	logger *zerolog.Logger,
	opts ...EntitlementOption,
) *entitlementUC {
	if starterLimit <= 0 {
		starterLimit = DefaultStarterMonthlyLimit
	}
	u := &entitlementUC{
		entitlements: entitlements,
		subs:         subs,
		usage:        usage,
		starterLimit: starterLimit,
		now:          time.Now,
		log:          logger,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *entitlementUC) Evaluate(ctx context.Context, userID string) model.GenerationPermit {
	defer logging.TraceDuration(u.log, "EntitlementUC.Evaluate")()

	now := u.now()
	ents, err := u.entitlements.FindValidByUser(ctx, repository.NoTX, userID, now)
	if err != nil {
		u.log.Error().Err(err).Str("user_id", userID).Str("op", "EntitlementUC.Evaluate").
			Msg("fetch entitlements failed; denying generation")
		metrics.IncPermitDecision("error")
		return model.NoAccessPermit()
	}

	limit := u.limitFor(ents, now)
	switch limit {
	case model.Unlimited:
		metrics.IncPermitDecision("unlimited")
		return model.UnlimitedPermit()
	case 0:
		metrics.IncPermitDecision("no_access")
		return model.NoAccessPermit()
	}

	used, err := u.usage.CountSince(ctx, repository.NoTX, userID, model.MonthStart(now))
	if err != nil {
		u.log.Error().Err(err).Str("user_id", userID).Str("op", "EntitlementUC.Evaluate").
			Msg("count usage failed; denying generation")
		metrics.IncPermitDecision("error")
		return model.GenerationPermit{CanGenerate: false, Limit: limit, Used: 0, Remaining: limit}
	}

	p := model.FinitePermit(limit, used)
	if p.CanGenerate {
		metrics.IncPermitDecision("allowed")
	} else {
		metrics.IncPermitDecision("exhausted")
	}
	return p
}

// limitFor applies the tier precedence: any unlimited tier or one-time purchase wins,
// then Starter, then no access. Entitlements with an unrecognised tier contribute nothing.
func (u *entitlementUC) limitFor(ents []*model.Entitlement, now time.Time) int {
	limit := 0
	for _, e := range ents {
		if !e.IsValidAt(now) {
			continue
		}
		tier := u.tierOf(e.Tier, e.ProductName)
		if tier.Unlimited() || e.AccessType == model.AccessTypeOneTime {
			return model.Unlimited
		}
		if tier == model.TierStarter {
			limit = u.starterLimit
		}
	}
	return limit
}

func (u *entitlementUC) tierOf(stored model.Tier, productName string) model.Tier {
	if stored == "" {
		return model.ClassifyProduct(productName, u.overrides)
	}
	return stored
}

func (u *entitlementUC) Commit(ctx context.Context, userID, documentID string) {
	defer logging.TraceDuration(u.log, "EntitlementUC.Commit")()

	rec := &model.UsageRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		CreatedAt:  u.now(),
	}
	if err := u.usage.Append(ctx, repository.NoTX, rec); err != nil {
		u.log.Error().Err(err).Str("user_id", userID).Str("document_id", documentID).
			Str("op", "EntitlementUC.Commit").Msg("usage commit failed; quota will under-count")
		metrics.IncUsageCommit(false)
		return
	}
	metrics.IncUsageCommit(true)
}

func (u *entitlementUC) HasPackAccess(ctx context.Context, userID, industryID, packID string) bool {
	defer logging.TraceDuration(u.log, "EntitlementUC.HasPackAccess")()

	granted := u.hasPackAccess(ctx, userID, industryID, packID)
	metrics.IncPackAccessCheck(granted)
	return granted
}

func (u *entitlementUC) hasPackAccess(ctx context.Context, userID, industryID, packID string) bool {
	subs, err := u.subs.ListActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		// a failed subscription lookup still lets a direct pack purchase through
		u.log.Error().Err(err).Str("user_id", userID).Str("op", "EntitlementUC.HasPackAccess").
			Msg("list subscriptions failed")
	}
	for _, s := range subs {
		if s.IsCurrent() && u.tierOf(s.Tier, s.ProductName).Unlimited() {
			return true
		}
	}

	now := u.now()
	e, err := u.entitlements.FindValidByProduct(ctx, repository.NoTX, userID, model.PackProductName(industryID, packID), now)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Error().Err(err).Str("user_id", userID).Str("op", "EntitlementUC.HasPackAccess").
				Msg("find pack entitlement failed")
		}
		return false
	}
	return e.IsValidAt(now)
}

func (u *entitlementUC) AllowsPack(ctx context.Context, userID, industryID, packID string) bool {
	if u.HasPackAccess(ctx, userID, industryID, packID) {
		return true
	}
	now := u.now()
	ents, err := u.entitlements.FindValidByUser(ctx, repository.NoTX, userID, now)
	if err != nil {
		u.log.Error().Err(err).Str("user_id", userID).Str("op", "EntitlementUC.AllowsPack").
			Msg("fetch entitlements failed")
		return false
	}
	// plan subscriptions are metered by Evaluate rather than scoped to a pack
	for _, e := range ents {
		if e.AccessType == model.AccessTypeSubscription && e.IsValidAt(now) {
			return true
		}
	}
	return false
}

func (u *entitlementUC) Status(ctx context.Context, userID, industryID, packID string) (*EntitlementStatus, error) {
	defer logging.TraceDuration(u.log, "EntitlementUC.Status")()

	st := &EntitlementStatus{
		GenerationPermit: u.Evaluate(ctx, userID),
		Entitlements:     []EntitlementSummary{},
	}
	if industryID != "" && packID != "" {
		access := u.HasPackAccess(ctx, userID, industryID, packID)
		st.PackAccess = &access
	}

	now := u.now()
	ents, err := u.entitlements.FindValidByUser(ctx, repository.NoTX, userID, now)
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		if !e.IsValidAt(now) {
			continue
		}
		st.Entitlements = append(st.Entitlements, EntitlementSummary{
			ProductName: e.ProductName,
			AccessType:  e.AccessType,
			Tier:        u.tierOf(e.Tier, e.ProductName),
			GrantedAt:   e.GrantedAt,
			ExpiresAt:   e.ExpiresAt,
		})
	}
	return st, nil
}
