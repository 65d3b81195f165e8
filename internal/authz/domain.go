package authz

// PermissionWildcard is the sentinel token inside a role's permission set that
// grants every permission. Compare through Role.HasWildcard rather than against
// the literal.
const PermissionWildcard = "*"

// Decision is the outcome recorded on a grant or produced by a check.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionAbsent Decision = "absent"
)

// Source identifies which layer produced an authorization decision.
type Source string

const (
	// SourceOverride means an explicit user-level grant decided the check.
	SourceOverride Source = "user-override"
	// SourceRole means the user's role (grant or wildcard) decided the check.
	SourceRole Source = "role-grant"
	// SourceNone means nothing matched.
	SourceNone Source = "none"
)

// User is the identity record consumed by the engine. Status is informational
// here; only the upstream authentication step enforces it.
type User struct {
	ID     int64
	RoleID int64
	Status string
}

// Role is a named bundle of permission tokens.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
}

// HasWildcard reports whether the role carries the all-permissions token.
func (r *Role) HasWildcard() bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p == PermissionWildcard {
			return true
		}
	}
	return false
}

// Grant is a single allow/deny record for one permission string. The subject
// (user or role) is implied by which store method returned it.
type Grant struct {
	Permission string   `json:"permission"`
	Decision   Decision `json:"decision"`
}

// Allowed reports whether the grant permits the permission.
func (g Grant) Allowed() bool {
	return g.Decision == DecisionAllow
}

// CheckResult is the transient outcome of a single permission check.
type CheckResult struct {
	Authorized bool     `json:"authorized"`
	Source     Source   `json:"source"`
	Decision   Decision `json:"decision"`
}

// ResolvedGrant is one entry of a user's full permission listing.
type ResolvedGrant struct {
	Permission string   `json:"permission"`
	Source     Source   `json:"source"`
	Decision   Decision `json:"decision"`
}

// Manifest maps permission strings to booleans for client-side gating. A
// wildcard role collapses to the single entry {"*": true}.
type Manifest map[string]bool
