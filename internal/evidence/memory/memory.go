// Package memory provides in-memory evidence collaborators. They back
// local wiring and tests; production deployments swap in real producer
// clients behind the same ports.
package memory

import (
	"context"
	"sync"

	"heirloom/internal/evidence"
	id "heirloom/pkg/domain"
)

// Snapshots holds all six evidence feeds behind one settable fixture.
// Setters replace the per-user snapshot wholesale, mirroring how real
// producers expose only current state.
type Snapshots struct {
	mu          sync.RWMutex
	emergencies map[id.UserID][]evidence.EmergencyAlert
	documents   map[id.UserID][]evidence.LegalDocument
	petitions   map[id.UserID][]evidence.Petition
	signals     map[id.UserID][]evidence.ThirdPartySignal
	overrides   map[id.UserID][]evidence.ManualOverride
	deadman     map[id.UserID]evidence.DeadmanStatus
}

func NewSnapshots() *Snapshots {
	return &Snapshots{
		emergencies: make(map[id.UserID][]evidence.EmergencyAlert),
		documents:   make(map[id.UserID][]evidence.LegalDocument),
		petitions:   make(map[id.UserID][]evidence.Petition),
		signals:     make(map[id.UserID][]evidence.ThirdPartySignal),
		overrides:   make(map[id.UserID][]evidence.ManualOverride),
		deadman:     make(map[id.UserID]evidence.DeadmanStatus),
	}
}

func (s *Snapshots) SetEmergencies(userID id.UserID, alerts []evidence.EmergencyAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencies[userID] = alerts
}

func (s *Snapshots) SetDocuments(userID id.UserID, docs []evidence.LegalDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[userID] = docs
}

func (s *Snapshots) SetPetitions(userID id.UserID, petitions []evidence.Petition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.petitions[userID] = petitions
}

func (s *Snapshots) SetSignals(userID id.UserID, signals []evidence.ThirdPartySignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[userID] = signals
}

func (s *Snapshots) SetOverrides(userID id.UserID, overrides []evidence.ManualOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[userID] = overrides
}

func (s *Snapshots) SetDeadman(userID id.UserID, status evidence.DeadmanStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadman[userID] = status
}

func (s *Snapshots) ActiveEmergencies(_ context.Context, userID id.UserID) ([]evidence.EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.EmergencyAlert{}, s.emergencies[userID]...), nil
}

func (s *Snapshots) VerifiedDocuments(_ context.Context, userID id.UserID) ([]evidence.LegalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.LegalDocument{}, s.documents[userID]...), nil
}

func (s *Snapshots) ActivePetitions(_ context.Context, userID id.UserID) ([]evidence.Petition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.Petition{}, s.petitions[userID]...), nil
}

func (s *Snapshots) ActiveSignals(_ context.Context, userID id.UserID) ([]evidence.ThirdPartySignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.ThirdPartySignal{}, s.signals[userID]...), nil
}

func (s *Snapshots) ActiveOverrides(_ context.Context, userID id.UserID) ([]evidence.ManualOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evidence.ManualOverride{}, s.overrides[userID]...), nil
}

func (s *Snapshots) Status(_ context.Context, userID id.UserID) (*evidence.DeadmanStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.deadman[userID]; ok {
		return &status, nil
	}
	return &evidence.DeadmanStatus{UserID: userID}, nil
}
