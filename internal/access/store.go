package access

import (
	"context"

	id "heirloom/pkg/domain"
)

// Store persists matrices, beneficiaries, grants, and emergency
// activation status. Missing records return sentinel.ErrNotFound.
type Store interface {
	CreateMatrix(ctx context.Context, matrix AccessControlMatrix) error
	GetMatrix(ctx context.Context, matrixID id.MatrixID) (AccessControlMatrix, error)
	UpdateMatrix(ctx context.Context, matrix AccessControlMatrix) error
	ListMatricesByUser(ctx context.Context, userID id.UserID) ([]AccessControlMatrix, error)

	CreateBeneficiary(ctx context.Context, beneficiary Beneficiary) error
	GetBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) (Beneficiary, error)
	ListBeneficiariesByUser(ctx context.Context, userID id.UserID) ([]Beneficiary, error)

	CreateGrant(ctx context.Context, grant TemporaryAccessGrant) error
	GetGrant(ctx context.Context, grantID id.GrantID) (TemporaryAccessGrant, error)
	UpdateGrant(ctx context.Context, grant TemporaryAccessGrant) error
	ListGrantsForBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]TemporaryAccessGrant, error)
	ListGrantsByUser(ctx context.Context, userID id.UserID) ([]TemporaryAccessGrant, error)

	SetActivation(ctx context.Context, userID id.UserID, activation EmergencyActivation) error
	GetActivation(ctx context.Context, userID id.UserID) (EmergencyActivation, error)
}
