package types

// Policy holds the creation-boundary constants. The canonical contract
// for these boundaries is still open, so they are configuration rather
// than hard-coded checks; DefaultPolicy is the conservative reading.
type Policy struct {
	// MinRatePerSecond is the smallest accepted accrual rate in asset
	// units per second. Streams whose deposit/duration quotient falls
	// below it are rejected.
	MinRatePerSecond int64 `yaml:"min_rate_per_second"`

	// RequireExactDivision rejects deposits not evenly divisible by the
	// window duration, so the rate carries no residue.
	RequireExactDivision bool `yaml:"require_exact_division"`

	// RequireFutureStart rejects windows whose start time is at or
	// before the current time.
	RequireFutureStart bool `yaml:"require_future_start"`
}

// DefaultPolicy returns the conservative creation policy: whole-unit
// rates, exact division, strictly future start.
func DefaultPolicy() Policy {
	return Policy{
		MinRatePerSecond:     1,
		RequireExactDivision: true,
		RequireFutureStart:   true,
	}
}
