// Package domain holds the typed identifiers shared across modules.
//
// Each ID is a distinct type over uuid.UUID so the compiler rejects
// cross-assignment (a TriggerID can never be passed where a UserID is
// expected). Parse functions enforce the invariant that IDs are valid,
// non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "heirloom/pkg/domain-errors"
)

// UserID identifies the estate owner.
type UserID uuid.UUID

// BeneficiaryID identifies a designated beneficiary.
type BeneficiaryID uuid.UUID

// TriggerID identifies a trigger condition.
type TriggerID uuid.UUID

// MatrixID identifies an access control matrix.
type MatrixID uuid.UUID

// RuleID identifies an access control rule within a matrix.
type RuleID uuid.UUID

// GrantID identifies a temporary access grant.
type GrantID uuid.UUID

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id BeneficiaryID) String() string { return uuid.UUID(id).String() }
func (id TriggerID) String() string     { return uuid.UUID(id).String() }
func (id MatrixID) String() string      { return uuid.UUID(id).String() }
func (id RuleID) String() string        { return uuid.UUID(id).String() }
func (id GrantID) String() string       { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id BeneficiaryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TriggerID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id MatrixID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewBeneficiaryID returns a fresh random BeneficiaryID.
func NewBeneficiaryID() BeneficiaryID { return BeneficiaryID(uuid.New()) }

// NewTriggerID returns a fresh random TriggerID.
func NewTriggerID() TriggerID { return TriggerID(uuid.New()) }

// NewMatrixID returns a fresh random MatrixID.
func NewMatrixID() MatrixID { return MatrixID(uuid.New()) }

// NewRuleID returns a fresh random RuleID.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewGrantID returns a fresh random GrantID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

// parseUUID enforces the shared parsing invariant for all ID types.
func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseBeneficiaryID validates and returns a BeneficiaryID.
func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	parsed, err := parseUUID(s, "beneficiary_id")
	if err != nil {
		return BeneficiaryID{}, err
	}
	return BeneficiaryID(parsed), nil
}

// ParseTriggerID validates and returns a TriggerID.
func ParseTriggerID(s string) (TriggerID, error) {
	parsed, err := parseUUID(s, "trigger_id")
	if err != nil {
		return TriggerID{}, err
	}
	return TriggerID(parsed), nil
}

// ParseMatrixID validates and returns a MatrixID.
func ParseMatrixID(s string) (MatrixID, error) {
	parsed, err := parseUUID(s, "matrix_id")
	if err != nil {
		return MatrixID{}, err
	}
	return MatrixID(parsed), nil
}

// ParseRuleID validates and returns a RuleID.
func ParseRuleID(s string) (RuleID, error) {
	parsed, err := parseUUID(s, "rule_id")
	if err != nil {
		return RuleID{}, err
	}
	return RuleID(parsed), nil
}

// ParseGrantID validates and returns a GrantID.
func ParseGrantID(s string) (GrantID, error) {
	parsed, err := parseUUID(s, "grant_id")
	if err != nil {
		return GrantID{}, err
	}
	return GrantID(parsed), nil
}
