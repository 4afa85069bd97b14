package audit

import (
	"time"

	id "heirloom/pkg/domain"
)

// RiskLevel grades how security-sensitive an audited action is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	UserID    id.UserID
	Subject   string // entity the action touched (trigger id, matrix id, beneficiary id)
	Action    string
	Result    string // outcome of the action (e.g. "triggered", "allowed", "denied")
	Reason    string
	Risk      RiskLevel
	RequestID string // correlation ID from the request context
	ActorID   string // who performed the action when different from UserID
}

// AuditAction enumerates the audited actions.
type AuditAction string

const (
	// Trigger registry events
	EventTriggerCreated       AuditAction = "trigger_created"
	EventTriggerUpdated       AuditAction = "trigger_updated"
	EventTriggerDeleted       AuditAction = "trigger_deleted"
	EventTriggerStatusChanged AuditAction = "trigger_status_changed"

	// Engine events
	EventTriggerEvaluated AuditAction = "trigger_evaluated"
	EventTriggerEscalated AuditAction = "trigger_escalated"
	EventAccessRequested  AuditAction = "emergency_access_requested"
	EventApprovalRequired AuditAction = "approval_required"

	// Access policy events
	EventPermissionChecked AuditAction = "permission_checked"
	EventOverrideApplied   AuditAction = "emergency_override_applied"
	EventGrantIssued       AuditAction = "grant_issued"
	EventGrantRevoked      AuditAction = "grant_revoked"
	EventMatrixMutated     AuditAction = "matrix_mutated"

	// Scheduling events
	EventScheduleRegistered AuditAction = "schedule_registered"
)

// eventRisk maps each audited action to its default risk level.
// Anything that can open the estate is high or critical; bookkeeping is low.
var eventRisk = map[AuditAction]RiskLevel{
	EventTriggerCreated:       RiskLow,
	EventTriggerUpdated:       RiskLow,
	EventTriggerDeleted:       RiskMedium,
	EventTriggerStatusChanged: RiskMedium,

	EventTriggerEvaluated: RiskMedium,
	EventTriggerEscalated: RiskHigh,
	EventAccessRequested:  RiskCritical,
	EventApprovalRequired: RiskHigh,

	EventPermissionChecked: RiskLow,
	EventOverrideApplied:   RiskCritical,
	EventGrantIssued:       RiskCritical,
	EventGrantRevoked:      RiskHigh,
	EventMatrixMutated:     RiskMedium,

	EventScheduleRegistered: RiskLow,
}

// Risk returns the risk level for this action.
// Unknown actions default to RiskMedium.
func (a AuditAction) Risk() RiskLevel {
	if risk, ok := eventRisk[a]; ok {
		return risk
	}
	return RiskMedium
}
