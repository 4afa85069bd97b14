package access

import (
	"context"
	"sort"
	"sync"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore keeps the access module's state in maps. Safe for
// concurrent use; suitable for tests and single-node deployments.
type InMemoryStore struct {
	mu            sync.RWMutex
	matrices      map[id.MatrixID]AccessControlMatrix
	beneficiaries map[id.BeneficiaryID]Beneficiary
	grants        map[id.GrantID]TemporaryAccessGrant
	activations   map[id.UserID]EmergencyActivation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		matrices:      make(map[id.MatrixID]AccessControlMatrix),
		beneficiaries: make(map[id.BeneficiaryID]Beneficiary),
		grants:        make(map[id.GrantID]TemporaryAccessGrant),
		activations:   make(map[id.UserID]EmergencyActivation),
	}
}

func (s *InMemoryStore) CreateMatrix(_ context.Context, matrix AccessControlMatrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matrices[matrix.ID]; exists {
		return sentinel.ErrConflict
	}
	s.matrices[matrix.ID] = cloneMatrix(matrix)
	return nil
}

func (s *InMemoryStore) GetMatrix(_ context.Context, matrixID id.MatrixID) (AccessControlMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matrix, ok := s.matrices[matrixID]
	if !ok {
		return AccessControlMatrix{}, sentinel.ErrNotFound
	}
	return cloneMatrix(matrix), nil
}

func (s *InMemoryStore) UpdateMatrix(_ context.Context, matrix AccessControlMatrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matrices[matrix.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.matrices[matrix.ID] = cloneMatrix(matrix)
	return nil
}

func (s *InMemoryStore) ListMatricesByUser(_ context.Context, userID id.UserID) ([]AccessControlMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AccessControlMatrix
	for _, matrix := range s.matrices {
		if matrix.UserID == userID {
			out = append(out, cloneMatrix(matrix))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateBeneficiary(_ context.Context, beneficiary Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.beneficiaries[beneficiary.ID]; exists {
		return sentinel.ErrConflict
	}
	s.beneficiaries[beneficiary.ID] = beneficiary
	return nil
}

func (s *InMemoryStore) GetBeneficiary(_ context.Context, beneficiaryID id.BeneficiaryID) (Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	beneficiary, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return Beneficiary{}, sentinel.ErrNotFound
	}
	return beneficiary, nil
}

func (s *InMemoryStore) ListBeneficiariesByUser(_ context.Context, userID id.UserID) ([]Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Beneficiary
	for _, beneficiary := range s.beneficiaries {
		if beneficiary.UserID == userID {
			out = append(out, beneficiary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateGrant(_ context.Context, grant TemporaryAccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.grants[grant.ID]; exists {
		return sentinel.ErrConflict
	}
	s.grants[grant.ID] = grant
	return nil
}

func (s *InMemoryStore) GetGrant(_ context.Context, grantID id.GrantID) (TemporaryAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[grantID]
	if !ok {
		return TemporaryAccessGrant{}, sentinel.ErrNotFound
	}
	return grant, nil
}

func (s *InMemoryStore) UpdateGrant(_ context.Context, grant TemporaryAccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.grants[grant.ID] = grant
	return nil
}

func (s *InMemoryStore) ListGrantsForBeneficiary(_ context.Context, beneficiaryID id.BeneficiaryID) ([]TemporaryAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TemporaryAccessGrant
	for _, grant := range s.grants {
		if grant.BeneficiaryID == beneficiaryID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *InMemoryStore) ListGrantsByUser(_ context.Context, userID id.UserID) ([]TemporaryAccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TemporaryAccessGrant
	for _, grant := range s.grants {
		if grant.UserID == userID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *InMemoryStore) SetActivation(_ context.Context, userID id.UserID, activation EmergencyActivation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[userID] = activation
	return nil
}

func (s *InMemoryStore) GetActivation(_ context.Context, userID id.UserID) (EmergencyActivation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activations[userID], nil
}

func cloneMatrix(m AccessControlMatrix) AccessControlMatrix {
	out := m
	out.Rules = make([]AccessControlRule, len(m.Rules))
	for i, rule := range m.Rules {
		cloned := rule
		cloned.Permissions = rule.Permissions.Clone()
		cloned.Conditions = append([]RuleCondition(nil), rule.Conditions...)
		cloned.TimeConstraints = append([]TimeConstraint(nil), rule.TimeConstraints...)
		out.Rules[i] = cloned
	}
	return out
}
