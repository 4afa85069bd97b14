package trigger

import (
	"time"

	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
)

// EvidenceType names the evidence source a trigger watches.
type EvidenceType string

const (
	TypeMedicalEmergency    EvidenceType = "medical_emergency"
	TypeLegalDocument       EvidenceType = "legal_document_filed"
	TypeBeneficiaryPetition EvidenceType = "beneficiary_petition"
	TypeThirdPartySignal    EvidenceType = "third_party_signal"
	TypeManualOverride      EvidenceType = "manual_override"
	TypeInactivity          EvidenceType = "inactivity"
)

var validTypes = map[EvidenceType]bool{
	TypeMedicalEmergency:    true,
	TypeLegalDocument:       true,
	TypeBeneficiaryPetition: true,
	TypeThirdPartySignal:    true,
	TypeManualOverride:      true,
	TypeInactivity:          true,
}

// ParseEvidenceType validates and returns an EvidenceType.
func ParseEvidenceType(s string) (EvidenceType, error) {
	t := EvidenceType(s)
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeValidation, "unknown evidence type: "+s)
	}
	return t, nil
}

// Status is the trigger lifecycle state.
//
// pending/active → triggered → {completed, failed}. Escalation is an
// orthogonal priority bump, never a status transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// statusTransitions encodes the lifecycle. Terminal states allow a reset
// back to active only through an explicit administrative update.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusTriggered, StatusFailed},
	StatusActive:    {StatusTriggered, StatusFailed},
	StatusTriggered: {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusActive},
	StatusFailed:    {StatusActive},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends an evaluation lifecycle.
// Terminal triggers are skipped by the engine until explicitly reset.
func (s Status) IsTerminal() bool {
	return s == StatusTriggered || s == StatusCompleted || s == StatusFailed
}

// Condition model for the declarative rule table. Fields are a typed
// enumeration rather than free-form dotted paths; the engine resolves
// them against its evaluation context without reflection.

// Field names one value from the merged trigger + evaluation context.
type Field string

const (
	FieldTriggered       Field = "result.triggered"
	FieldConfidence      Field = "result.confidence"
	FieldSeverity        Field = "result.severity"
	FieldVerified        Field = "result.verified"
	FieldDaysOverdue     Field = "result.days_overdue"
	FieldSignalCount     Field = "result.signal_count"
	FieldPetitionCount   Field = "result.petition_count"
	FieldTriggerType     Field = "trigger.type"
	FieldTriggerPriority Field = "trigger.priority"
	FieldOverrideActive  Field = "context.override_active"
)

// Operator is the comparison applied between a field and the condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Condition compares one context field against a value.
// Value covers scalar comparisons; Values backs the in/not_in operators.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// ConditionGroup combines conditions: every All must hold, at least one
// Any must hold (when present), and no None may hold.
type ConditionGroup struct {
	All  []Condition `json:"all,omitempty"`
	Any  []Condition `json:"any,omitempty"`
	None []Condition `json:"none,omitempty"`
}

// ActionType enumerates the canonical follow-up actions.
type ActionType string

const (
	ActionGrantAccess     ActionType = "grant_access"
	ActionNotify          ActionType = "notify"
	ActionEscalate        ActionType = "escalate"
	ActionWait            ActionType = "wait"
	ActionRequireApproval ActionType = "require_approval"
)

// actionOrder fixes the canonical ordering of a de-duplicated action set.
var actionOrder = map[ActionType]int{
	ActionGrantAccess:     1,
	ActionNotify:          2,
	ActionEscalate:        3,
	ActionRequireApproval: 4,
	ActionWait:            5,
}

// Rank returns the canonical sort position of the action.
func (a ActionType) Rank() int { return actionOrder[a] }

// ActionConfig parameterizes one action within a rule.
type ActionConfig struct {
	Type ActionType `json:"type"`

	// grant_access
	Recipients  []id.BeneficiaryID `json:"recipients,omitempty"`
	AccessLevel string             `json:"access_level,omitempty"`
	GrantTTL    time.Duration      `json:"grant_ttl,omitempty"`

	// notify
	Message string `json:"message,omitempty"`

	// wait
	DelayMinutes int `json:"delay_minutes,omitempty"`

	// require_approval
	ApprovalTTL time.Duration `json:"approval_ttl,omitempty"`
}

// Rule is one row of the declarative rule table: a condition group plus
// the actions to take when it matches. Higher priority wins ordering.
type Rule struct {
	Name       string         `json:"name"`
	Priority   int            `json:"priority"`
	Conditions ConditionGroup `json:"conditions"`
	Actions    []ActionConfig `json:"actions"`
}

// TriggerCondition is one per-user, per-evidence-type watch. Created by
// an administrative caller, mutated by the engine (status, escalation),
// deleted only by explicit user action.
type TriggerCondition struct {
	ID       id.TriggerID
	UserID   id.UserID
	Type     EvidenceType
	Status   Status
	Priority int
	Rules    []Rule
	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
