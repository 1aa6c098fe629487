//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"formative-compliance/internal/domain"
)

// --- Entitlement Model Tests ---

func TestEntitlementIsValidAt(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		ent  Entitlement
		want bool
	}{
		{"active without expiry", Entitlement{IsActive: true}, true},
		{"active with future expiry", Entitlement{IsActive: true, ExpiresAt: &future}, true},
		{"active with past expiry", Entitlement{IsActive: true, ExpiresAt: &past}, false},
		{"expiry equal to now", Entitlement{IsActive: true, ExpiresAt: &now}, false},
		{"inactive", Entitlement{IsActive: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ent.IsValidAt(now); got != tc.want {
				t.Errorf("IsValidAt() = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("should be false for nil entitlement", func(t *testing.T) {
		var e *Entitlement
		if e.IsValidAt(now) {
			t.Error("expected nil entitlement to be invalid")
		}
	})
}

func TestClassifyProduct(t *testing.T) {
	cases := map[string]Tier{
		"Starter Plan":                 TierStarter,
		"Pro Plan":                     TierPro,
		"Agency Plan":                  TierAgency,
		"Enterprise":                   TierEnterprise,
		"Lite Pack":                    TierNone,
		"NDIS Full Pack":               TierNone,
		"construction-trades-pro":      TierPro,
		"Non-Pro Starter":              TierStarter,
		"Professional Services Bundle": TierNone,
		"":                             TierNone,
	}
	for name, want := range cases {
		if got := ClassifyProduct(name, nil); got != want {
			t.Errorf("ClassifyProduct(%q) = %q, want %q", name, got, want)
		}
	}

	t.Run("should prefer configured overrides", func(t *testing.T) {
		overrides := map[string]Tier{"Growth Bundle": TierAgency}
		if got := ClassifyProduct("growth bundle", overrides); got != TierAgency {
			t.Errorf("expected override tier agency, got %q", got)
		}
	})

	t.Run("should pick the highest ranked tier word", func(t *testing.T) {
		if got := ClassifyProduct("Starter to Agency Upgrade", nil); got != TierAgency {
			t.Errorf("expected agency, got %q", got)
		}
	})
}

func TestNewEntitlement(t *testing.T) {
	now := time.Now()

	t.Run("should stamp tier at grant time", func(t *testing.T) {
		e, err := NewEntitlement("e-1", "user-1", "Pro Plan", AccessTypeSubscription, nil, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.Tier != TierPro {
			t.Errorf("expected tier pro, got %q", e.Tier)
		}
		if !e.IsActive || !e.GrantedAt.Equal(now) {
			t.Error("expected an active entitlement granted now")
		}
	})

	t.Run("should reject unknown access type", func(t *testing.T) {
		_, err := NewEntitlement("e-1", "user-1", "Pro Plan", AccessType("lifetime"), nil, now)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should classify legacy rows without a stored tier", func(t *testing.T) {
		legacy := &Entitlement{ProductName: "Agency Plan"}
		if legacy.EffectiveTier() != TierAgency {
			t.Errorf("expected agency, got %q", legacy.EffectiveTier())
		}
		stamped := &Entitlement{ProductName: "Agency Plan", Tier: TierNone}
		if stamped.EffectiveTier() != TierNone {
			t.Error("a stored tier must not be re-derived from the name")
		}
	})
}

// --- Permit Tests ---

func TestFinitePermit(t *testing.T) {
	if p := FinitePermit(3, 1); !p.CanGenerate || p.Remaining != 2 {
		t.Errorf("unexpected permit %+v", p)
	}
	if p := FinitePermit(3, 5); p.CanGenerate || p.Remaining != 0 || p.Used != 5 {
		t.Errorf("expected clamped remaining, got %+v", p)
	}
	if p := UnlimitedPermit(); !p.IsUnlimited() || p.Remaining != Unlimited || !p.CanGenerate {
		t.Errorf("unexpected unlimited permit %+v", p)
	}
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	got := MonthStart(time.Date(2026, 7, 31, 23, 59, 59, 0, loc))
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("MonthStart = %v, want %v", got, want)
	}
}

// --- Subscription Tests ---

func TestSubscriptionPeriodLapsed(t *testing.T) {
	now := time.Now()
	ended := now.Add(-time.Minute)
	s := &Subscription{Status: SubscriptionStatusActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: &ended}
	if !s.PeriodLapsed(now) {
		t.Error("expected lapsed subscription")
	}
	s.CancelAtPeriodEnd = false
	if s.PeriodLapsed(now) {
		t.Error("renewing subscription must not lapse")
	}
}
