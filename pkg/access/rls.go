// Package access applies row-level security to facts read out of the fact
// store, per spec.md §4.4/§9: every read is silently scoped to the caller's
// tenant, restricted to accessible entities and periods, and a fact whose
// classification exceeds the caller's ceiling is either masked or dropped
// depending on role policy. None of this lives in the fact store itself —
// query_facts always returns everything matching its predicate, and
// pkg/access is the mandatory layer between that and any caller.
package access

import (
	"finintel/pkg/domain"
)

// FilteredFact is one fact as it is actually returned to a caller: either
// the fact unmodified, or with Masked set and Value zeroed because the
// caller's role sees a placeholder rather than the true figure.
type FilteredFact struct {
	Fact   domain.Fact
	Masked bool
}

// Filter applies row-level security to facts for the given user context,
// returning the subset (masked where policy requires it) the caller is
// permitted to see. Facts from a different tenant are always dropped
// regardless of role, since tenant isolation is never a maskable concern.
func Filter(facts []domain.Fact, userCtx domain.UserContext) []FilteredFact {
	out := make([]FilteredFact, 0, len(facts))
	policy := domain.RoleMaskPolicy(userCtx.Role)

	for _, f := range facts {
		if f.TenantID != userCtx.TenantID {
			continue
		}
		if !userCtx.CanAccessEntity(f.EntityID) {
			continue
		}
		if !userCtx.CanAccessPeriod(f.PeriodKey) {
			continue
		}
		if f.ClassificationLevel > userCtx.MaxClassification {
			if policy == domain.MaskPolicyDrop {
				continue
			}
			masked := f
			masked.Value = 0
			out = append(out, FilteredFact{Fact: masked, Masked: true})
			continue
		}
		out = append(out, FilteredFact{Fact: f})
	}
	return out
}

// FilterOne applies the same rules to a single fact, for call sites (like
// resolve_authoritative) that look up one row rather than a predicate scan.
// The bool return reports whether the fact survived filtering at all.
func FilterOne(fact domain.Fact, userCtx domain.UserContext) (FilteredFact, bool) {
	filtered := Filter([]domain.Fact{fact}, userCtx)
	if len(filtered) == 0 {
		return FilteredFact{}, false
	}
	return filtered[0], true
}
