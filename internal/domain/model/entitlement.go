package model

import (
	"strings"
	"time"
	"unicode"

	"formative-compliance/internal/domain"
)

type AccessType string

const (
	AccessTypeOneTime      AccessType = "one_time"
	AccessTypeSubscription AccessType = "subscription"
)

func (a AccessType) Valid() bool {
	return a == AccessTypeOneTime || a == AccessTypeSubscription
}

// Tier is the product category stamped on an entitlement when it is granted.
type Tier string

const (
	TierNone       Tier = "none"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierAgency     Tier = "agency"
	TierEnterprise Tier = "enterprise"
)

// Unlimited reports whether the tier carries unlimited generation and subsumes every pack.
func (t Tier) Unlimited() bool {
	switch t {
	case TierPro, TierAgency, TierEnterprise:
		return true
	}
	return false
}

func (t Tier) rank() int {
	switch t {
	case TierStarter:
		return 1
	case TierPro:
		return 2
	case TierAgency:
		return 3
	case TierEnterprise:
		return 4
	}
	return 0
}

// ParseTier maps a stored value back to a Tier; unknown or empty values yield TierNone.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.rank() == 0 {
		return TierNone
	}
	return t
}

// ClassifyProduct derives a tier from a product name. Exact (case-insensitive) matches in
// overrides win; otherwise the name is split into words and the highest-ranked tier word
// is used. A tier word directly preceded by "non" does not count, so "Non-Pro Starter" is
// a starter product.
func ClassifyProduct(productName string, overrides map[string]Tier) Tier {
	name := strings.TrimSpace(productName)
	for k, t := range overrides {
		if strings.EqualFold(k, name) {
			return t
		}
	}

	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	best := TierNone
	for i, w := range words {
		if i > 0 && words[i-1] == "non" {
			continue
		}
		t := ParseTier(w)
		if t.rank() > best.rank() {
			best = t
		}
	}
	return best
}

// Entitlement is a grant of access to a product. Rows are never deleted; revocation
// flips IsActive and stamps RevokedAt.
type Entitlement struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	ProductName string         `json:"productName"`
	AccessType  AccessType     `json:"accessType"`
	Tier        Tier           `json:"tier"`
	IsActive    bool           `json:"isActive"`
	GrantedAt   time.Time      `json:"grantedAt"`
	RevokedAt   *time.Time     `json:"revokedAt,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewEntitlement builds an active grant with its tier computed from the product name.
func NewEntitlement(id, userID, productName string, accessType AccessType, overrides map[string]Tier, now time.Time) (*Entitlement, error) {
	if id == "" || userID == "" || strings.TrimSpace(productName) == "" || !accessType.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &Entitlement{
		ID:          id,
		UserID:      userID,
		ProductName: productName,
		AccessType:  accessType,
		Tier:        ClassifyProduct(productName, overrides),
		IsActive:    true,
		GrantedAt:   now,
	}, nil
}

// IsValidAt is the validity invariant: active and not yet expired.
func (e *Entitlement) IsValidAt(now time.Time) bool {
	if e == nil || !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// EffectiveTier returns the stored tier, classifying legacy rows without one by name.
func (e *Entitlement) EffectiveTier() Tier {
	if e.Tier == "" {
		return ClassifyProduct(e.ProductName, nil)
	}
	return e.Tier
}

// Revoke deactivates the entitlement at the given instant.
func (e *Entitlement) Revoke(at time.Time) {
	e.IsActive = false
	e.RevokedAt = &at
}

// PackProductName is the product name under which access to a single pack is granted.
func PackProductName(industryID, packID string) string {
	return industryID + "-" + packID
}
