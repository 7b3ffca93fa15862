package domain

import "time"

// Role is the set of permission levels a UserContext may hold.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleBUManager  Role = "bu_manager"
	RoleAnalyst    Role = "analyst"
	RoleViewer     Role = "viewer"
)

// MaskPolicy controls what happens to a row whose classification level
// exceeds the caller's ceiling: it is either dropped entirely, or returned
// with its value nulled out and a masked flag set.
type MaskPolicy string

const (
	MaskPolicyDrop MaskPolicy = "drop"
	MaskPolicyMask MaskPolicy = "mask"
)

// RoleMaskPolicy returns the masking policy spec.md §4.4 assigns to a role:
// analysts and above see masked placeholders (so they know a hidden figure
// exists), viewers get the row dropped entirely.
func RoleMaskPolicy(r Role) MaskPolicy {
	switch r {
	case RoleAdmin, RoleTenantAdmin, RoleBUManager, RoleAnalyst:
		return MaskPolicyMask
	default:
		return MaskPolicyDrop
	}
}

// UserContext is threaded through every service call. It is never persisted
// on a Fact directly — only its tenant_id and classification_level
// projection is, on the row written.
type UserContext struct {
	UserID             string
	Username           string
	TenantID           string
	Role               Role
	AccessibleEntities map[string]struct{}
	AccessiblePeriods  []PeriodPattern
	MaxClassification  ClassificationLevel
	SessionID          string
	SessionExpiresAt   time.Time
}

// PeriodPattern is a coarse filter on which periods a UserContext may read,
// e.g. {Type: FY} for "any fiscal year" or {Type: FY, Year: 2024} for one.
type PeriodPattern struct {
	Type PeriodType
	Year int // 0 means any year
}

func (p PeriodPattern) Matches(k PeriodKey) bool {
	if p.Type != "" && p.Type != k.Type {
		return false
	}
	if p.Year != 0 && p.Year != k.Year {
		return false
	}
	return true
}

// CanAccessEntity reports whether the context may read rows for entityID.
// Admin and tenant_admin bypass the entity allow-list (spec.md §9 keeps
// admin tenant-scoped, not cross-tenant, but within-tenant admins still see
// every entity).
func (u UserContext) CanAccessEntity(entityID string) bool {
	if u.Role == RoleAdmin || u.Role == RoleTenantAdmin {
		return true
	}
	_, ok := u.AccessibleEntities[entityID]
	return ok
}

// CanAccessPeriod reports whether the context may read rows for periodKey.
func (u UserContext) CanAccessPeriod(periodKey PeriodKey) bool {
	if len(u.AccessiblePeriods) == 0 {
		return true
	}
	for _, p := range u.AccessiblePeriods {
		if p.Matches(periodKey) {
			return true
		}
	}
	return false
}

// Expired reports whether the session backing this context has timed out.
func (u UserContext) Expired(now time.Time) bool {
	return now.After(u.SessionExpiresAt)
}
