package access

import (
	"time"

	"heirloom/internal/evidence"
	id "heirloom/pkg/domain"
)

// Permission names one capability over estate resources.
type Permission string

const (
	PermissionRead         Permission = "read"
	PermissionDownload     Permission = "download"
	PermissionShare        Permission = "share"
	PermissionDelete       Permission = "delete"
	PermissionModify       Permission = "modify"
	PermissionViewMetadata Permission = "view_metadata"
	PermissionExport       Permission = "export"
)

// AllPermissions lists every known permission field.
var AllPermissions = []Permission{
	PermissionRead,
	PermissionDownload,
	PermissionShare,
	PermissionDelete,
	PermissionModify,
	PermissionViewMetadata,
	PermissionExport,
}

// PermissionSet maps permission fields to grant/deny. A rule's set only
// carries the fields that rule specifies; the effective set accumulates
// fields as rules contribute.
type PermissionSet map[Permission]bool

// FullPermissionSet grants every known permission.
func FullPermissionSet() PermissionSet {
	set := make(PermissionSet, len(AllPermissions))
	for _, p := range AllPermissions {
		set[p] = true
	}
	return set
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// CountGranted returns the number of true fields.
func (s PermissionSet) CountGranted() int {
	n := 0
	for _, v := range s {
		if v {
			n++
		}
	}
	return n
}

// AnyGranted reports whether at least one field is true.
func (s PermissionSet) AnyGranted() bool {
	return s.CountGranted() > 0
}

// ConflictStrategy decides how overlapping matching rules combine.
type ConflictStrategy string

const (
	StrategyMostPermissive  ConflictStrategy = "most_permissive"
	StrategyMostRestrictive ConflictStrategy = "most_restrictive"
	StrategyPriority        ConflictStrategy = "priority"
	StrategyExplicit        ConflictStrategy = "explicit"
)

var validStrategies = map[ConflictStrategy]bool{
	StrategyMostPermissive:  true,
	StrategyMostRestrictive: true,
	StrategyPriority:        true,
	StrategyExplicit:        true,
}

// AccessLevel is the coarse classification of an effective set.
//
// The full threshold is five granted fields. That number is a policy
// constant, not something derived; change it here and the level shifts
// everywhere.
type AccessLevel string

const (
	AccessLevelNone    AccessLevel = "none"
	AccessLevelPartial AccessLevel = "partial"
	AccessLevelFull    AccessLevel = "full"
)

const fullAccessThreshold = 5

// ClassifyAccess maps an effective permission set to its level.
func ClassifyAccess(set PermissionSet) AccessLevel {
	switch granted := set.CountGranted(); {
	case granted == 0:
		return AccessLevelNone
	case granted >= fullAccessThreshold:
		return AccessLevelFull
	default:
		return AccessLevelPartial
	}
}

// TrustLevel grades how much latitude a beneficiary gets.
type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

// Beneficiary is one designated recipient in a user's directory.
type Beneficiary struct {
	ID           id.BeneficiaryID
	UserID       id.UserID
	Name         string
	Email        string
	TrustLevel   TrustLevel
	Relationship string
	Groups       []string
	CreatedAt    time.Time
}

// SubjectMatcher selects beneficiaries a rule applies to. A rule applies
// when any listed criterion matches; an empty matcher applies to all.
type SubjectMatcher struct {
	BeneficiaryIDs []id.BeneficiaryID `json:"beneficiary_ids,omitempty"`
	TrustLevels    []TrustLevel       `json:"trust_levels,omitempty"`
	Relationships  []string           `json:"relationships,omitempty"`
	Groups         []string           `json:"groups,omitempty"`
}

// Matches reports whether the matcher applies to the beneficiary.
func (m SubjectMatcher) Matches(b Beneficiary) bool {
	if len(m.BeneficiaryIDs) == 0 && len(m.TrustLevels) == 0 && len(m.Relationships) == 0 && len(m.Groups) == 0 {
		return true
	}
	for _, want := range m.BeneficiaryIDs {
		if want == b.ID {
			return true
		}
	}
	for _, want := range m.TrustLevels {
		if want == b.TrustLevel {
			return true
		}
	}
	for _, want := range m.Relationships {
		if want == b.Relationship {
			return true
		}
	}
	for _, want := range m.Groups {
		for _, group := range b.Groups {
			if want == group {
				return true
			}
		}
	}
	return false
}

// ResourceMatcher selects the resources a rule covers: by type, and
// optionally narrowed to specific resource ids.
type ResourceMatcher struct {
	Types []string `json:"types,omitempty"`
	IDs   []string `json:"ids,omitempty"`
}

// Matches reports whether the matcher covers (resourceType, resourceID).
// An empty type list covers every type; an empty ID list covers every
// instance of the matched types.
func (m ResourceMatcher) Matches(resourceType, resourceID string) bool {
	if len(m.Types) > 0 {
		found := false
		for _, want := range m.Types {
			if want == resourceType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(m.IDs) > 0 {
		if resourceID == "" {
			return false
		}
		for _, want := range m.IDs {
			if want == resourceID {
				return true
			}
		}
		return false
	}
	return true
}

// TimeConstraint bounds when a rule may contribute.
type TimeConstraint struct {
	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
}

// Satisfied reports whether now falls inside the constraint window.
func (c TimeConstraint) Satisfied(now time.Time) bool {
	if !c.NotBefore.IsZero() && now.Before(c.NotBefore) {
		return false
	}
	if !c.NotAfter.IsZero() && now.After(c.NotAfter) {
		return false
	}
	return true
}

// AccessControlRule is one prioritized, conditional row of a matrix.
type AccessControlRule struct {
	ID              id.RuleID
	Description     string
	Priority        int
	Active          bool
	Subjects        SubjectMatcher
	Resources       ResourceMatcher
	Permissions     PermissionSet
	Conditions      []RuleCondition
	TimeConstraints []TimeConstraint
}

// AccessControlMatrix is a user's prioritized, conditional rule set.
// Version increments on every mutation so cached evaluations can be
// traced to the rule set that produced them.
type AccessControlMatrix struct {
	ID           id.MatrixID
	UserID       id.UserID
	Name         string
	Strategy     ConflictStrategy
	Rules        []AccessControlRule
	Version      int
	CacheEnabled bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TemporaryAccessGrant is a time-boxed, optionally usage-capped unlock
// for one (beneficiary, resource) pair.
type TemporaryAccessGrant struct {
	ID            id.GrantID
	UserID        id.UserID
	BeneficiaryID id.BeneficiaryID
	ResourceType  string
	ResourceID    string
	Level         string
	Reason        string
	TriggerID     id.TriggerID
	GrantedAt     time.Time
	ExpiresAt     time.Time
	MaxUses       int
	Uses          int
	Revoked       bool
}

// ActiveAt reports whether the grant is usable at the given time.
func (g TemporaryAccessGrant) ActiveAt(now time.Time) bool {
	if g.Revoked {
		return false
	}
	if !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt) {
		return false
	}
	if g.MaxUses > 0 && g.Uses >= g.MaxUses {
		return false
	}
	return true
}

// Covers reports whether the grant applies to the requested resource.
func (g TemporaryAccessGrant) Covers(resourceType, resourceID string) bool {
	if g.ResourceType != "" && g.ResourceType != resourceType {
		return false
	}
	if g.ResourceID != "" && g.ResourceID != resourceID {
		return false
	}
	return true
}

// EmergencyActivation is the per-user global emergency-access status the
// emergency-trigger condition checks against.
type EmergencyActivation struct {
	Active      bool
	TriggerType string
	Severity    evidence.Severity
	ActivatedAt time.Time
}

// PermissionEvaluation is the total outcome of an access check. Unknown
// beneficiaries or matrices produce a denied evaluation, never an error.
type PermissionEvaluation struct {
	Allowed         bool          `json:"allowed"`
	Permissions     PermissionSet `json:"permissions"`
	AccessLevel     AccessLevel   `json:"access_level"`
	MatchedRules    []id.RuleID   `json:"matched_rules,omitempty"`
	DeniedBy        []id.RuleID   `json:"denied_by,omitempty"`
	RequiredActions []string      `json:"required_actions,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
	DurationMS      int64         `json:"duration_ms"`
}
