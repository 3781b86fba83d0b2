// Package quota enforces the per-notebook space cap for non-privileged
// accounts.
package quota

// Tier is the account tier carried in the auth token.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierStaff Tier = "staff"
)

// FreeSpaceLimit is the maximum number of non-archived spaces a free account
// may hold in one notebook.
const FreeSpaceLimit = 3

// Policy decides whether a creation attempt is allowed. It is a pure
// predicate; the store evaluates it against the count visible inside the same
// transition that performs the insert.
type Policy interface {
	Allow(currentCount int, tier Tier) bool
}

// TieredPolicy is the production policy: free accounts are capped, paid and
// staff accounts are not.
type TieredPolicy struct {
	FreeLimit int
}

// NewPolicy returns the tiered policy with the default free limit.
func NewPolicy() *TieredPolicy {
	return &TieredPolicy{FreeLimit: FreeSpaceLimit}
}

// Allow reports whether an account of the given tier may create another space
// in a notebook that currently holds currentCount non-archived spaces.
func (p *TieredPolicy) Allow(currentCount int, tier Tier) bool {
	switch tier {
	case TierPro, TierStaff:
		return true
	default:
		return currentCount < p.FreeLimit
	}
}
