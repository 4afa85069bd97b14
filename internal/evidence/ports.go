package evidence

import (
	"context"
	"time"

	id "heirloom/pkg/domain"
)

// Severity grades medical emergencies and emergency activations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityOrder defines the comparison ordering: low < medium < high < critical.
var severityOrder = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above the required severity.
// Unknown severities compare as lowest.
func (s Severity) AtLeast(required Severity) bool {
	return severityOrder[s] >= severityOrder[required]
}

// EmergencyAlert is an active medical-device emergency for a user.
type EmergencyAlert struct {
	UserID         id.UserID
	Severity       Severity
	Verified       bool // externally corroborated (responder, hospital feed)
	SignalStrength int  // device signal quality 0-100
	DeviceType     string
	DetectedAt     time.Time
}

// MedicalPort exposes the medical-device integration's current state.
type MedicalPort interface {
	ActiveEmergencies(ctx context.Context, userID id.UserID) ([]EmergencyAlert, error)
}

// DocumentType classifies verified legal filings.
type DocumentType string

const (
	DocumentDeathCertificate DocumentType = "death_certificate"
	DocumentCourtOrder       DocumentType = "court_order"
	DocumentMedicalDirective DocumentType = "medical_directive"
)

// LegalDocument is a filing known to the legal-document subsystem.
type LegalDocument struct {
	UserID   id.UserID
	Type     DocumentType
	Verified bool
	FiledAt  time.Time
	Issuer   string
}

// LegalPort exposes verified legal filings for a user.
type LegalPort interface {
	VerifiedDocuments(ctx context.Context, userID id.UserID) ([]LegalDocument, error)
}

// PetitionStatus tracks a beneficiary petition's review state.
type PetitionStatus string

const (
	PetitionPending  PetitionStatus = "pending"
	PetitionApproved PetitionStatus = "approved"
	PetitionDenied   PetitionStatus = "denied"
)

// Petition is a beneficiary's request to unlock the estate.
type Petition struct {
	UserID        id.UserID
	BeneficiaryID id.BeneficiaryID
	Status        PetitionStatus
	Urgency       Severity
	Statement     string
	SubmittedAt   time.Time
}

// PetitionPort exposes active petitions for a user.
type PetitionPort interface {
	ActivePetitions(ctx context.Context, userID id.UserID) ([]Petition, error)
}

// SignalType classifies third-party corroboration signals.
type SignalType string

const (
	SignalDeathNotification SignalType = "death_notification"
	SignalObituary          SignalType = "obituary"
	SignalMemorialAccount   SignalType = "memorial_account"
	SignalNewsReport        SignalType = "news_report"
)

// ThirdPartySignal is an external corroboration signal for a user.
type ThirdPartySignal struct {
	UserID     id.UserID
	Type       SignalType
	Verified   bool
	Source     string
	ReceivedAt time.Time
}

// SignalPort exposes active third-party signals for a user.
type SignalPort interface {
	ActiveSignals(ctx context.Context, userID id.UserID) ([]ThirdPartySignal, error)
}

// OverridePriority ranks manual overrides; emergency outranks critical
// outranks standard when picking the override that names the reason.
type OverridePriority string

const (
	OverrideEmergency OverridePriority = "emergency"
	OverrideCritical  OverridePriority = "critical"
	OverrideStandard  OverridePriority = "standard"
)

var overrideRank = map[OverridePriority]int{
	OverrideEmergency: 3,
	OverrideCritical:  2,
	OverrideStandard:  1,
}

// Rank returns the numeric ordering of the priority, highest first.
func (p OverridePriority) Rank() int { return overrideRank[p] }

// ManualOverride is an explicit operator- or owner-initiated unlock demand.
type ManualOverride struct {
	UserID        id.UserID
	Priority      OverridePriority
	Authenticated bool
	Initiator     string
	Reason        string
	CreatedAt     time.Time
}

// OverridePort exposes active manual overrides for a user.
type OverridePort interface {
	ActiveOverrides(ctx context.Context, userID id.UserID) ([]ManualOverride, error)
}

// DeadmanStatus is the dead-man-switch state for a user.
type DeadmanStatus struct {
	UserID       id.UserID
	Enabled      bool
	LastCheckIn  time.Time
	IntervalDays int
}

// Overdue reports whether the user missed their check-in window as of
// now, and by how many whole days.
func (s DeadmanStatus) Overdue(now time.Time) (bool, int) {
	if !s.Enabled || s.IntervalDays <= 0 {
		return false, 0
	}
	deadline := s.LastCheckIn.AddDate(0, 0, s.IntervalDays)
	if !now.After(deadline) {
		return false, 0
	}
	days := int(now.Sub(deadline).Hours() / 24)
	return true, days
}

// DeadmanPort exposes dead-man-switch status for a user.
type DeadmanPort interface {
	Status(ctx context.Context, userID id.UserID) (*DeadmanStatus, error)
}
