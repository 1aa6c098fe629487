package model

// Unlimited is the sentinel used for Limit and Remaining when no quota applies.
const Unlimited = -1

// GenerationPermit is the outcome of evaluating a user's generation quota.
type GenerationPermit struct {
	CanGenerate bool `json:"canGenerate"`
	Limit       int  `json:"limit"`
	Used        int  `json:"used"`
	Remaining   int  `json:"remaining"`
}

func UnlimitedPermit() GenerationPermit {
	return GenerationPermit{CanGenerate: true, Limit: Unlimited, Used: 0, Remaining: Unlimited}
}

func NoAccessPermit() GenerationPermit {
	return GenerationPermit{}
}

// FinitePermit computes remaining quota for a bounded limit.
func FinitePermit(limit, used int) GenerationPermit {
	if used < 0 {
		used = 0
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return GenerationPermit{CanGenerate: remaining > 0, Limit: limit, Used: used, Remaining: remaining}
}

// IsUnlimited reports whether the permit carries no quota.
func (p GenerationPermit) IsUnlimited() bool { return p.Limit == Unlimited }
