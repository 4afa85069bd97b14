package engine

import (
	"context"
	"fmt"
	"time"

	"heirloom/internal/evidence"
	"heirloom/internal/trigger"
	id "heirloom/pkg/domain"
)

// Evaluation is one evaluator's verdict before rule matching. The typed
// fact fields back condition resolution; Metadata carries free-form
// detail into the stored result.
type Evaluation struct {
	Triggered  bool
	Confidence float64
	Reason     string

	Severity      evidence.Severity
	Verified      bool
	DaysOverdue   int
	SignalCount   int
	PetitionCount int

	Metadata map[string]string
}

// Evaluator turns the current evidence snapshot for one user into a
// verdict. One implementation per evidence type, registered in the
// engine's lookup table; adding an evidence type means adding an
// implementation and a table entry.
type Evaluator interface {
	Evaluate(ctx context.Context, userID id.UserID, now time.Time) (Evaluation, error)
}

// Evaluators bundles the per-type lookup table.
type Evaluators map[trigger.EvidenceType]Evaluator

// NewEvaluators builds the standard table over the evidence ports.
func NewEvaluators(
	medical evidence.MedicalPort,
	legal evidence.LegalPort,
	petitions evidence.PetitionPort,
	signals evidence.SignalPort,
	overrides evidence.OverridePort,
	deadman evidence.DeadmanPort,
) Evaluators {
	return Evaluators{
		trigger.TypeMedicalEmergency:    &medicalEvaluator{port: medical},
		trigger.TypeLegalDocument:       &legalEvaluator{port: legal},
		trigger.TypeBeneficiaryPetition: &petitionEvaluator{port: petitions},
		trigger.TypeThirdPartySignal:    &signalEvaluator{port: signals},
		trigger.TypeManualOverride:      &overrideEvaluator{port: overrides},
		trigger.TypeInactivity:          &deadmanEvaluator{port: deadman},
	}
}

// Scoring is pure and separated from evidence fetching so the heuristics
// test without ports.

type medicalEvaluator struct {
	port evidence.MedicalPort
}

func (e *medicalEvaluator) Evaluate(ctx context.Context, userID id.UserID, _ time.Time) (Evaluation, error) {
	alerts, err := e.port.ActiveEmergencies(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("active emergencies: %w", err)
	}
	return scoreMedical(alerts), nil
}

// scoreMedical picks the highest-severity active emergency. Base
// confidence 0.5; critical raises it to 1.0 and high to 0.8; external
// verification adds 0.2 and strong device signal 0.1, both capped at 1.0.
func scoreMedical(alerts []evidence.EmergencyAlert) Evaluation {
	if len(alerts) == 0 {
		return Evaluation{Reason: "no active medical emergencies"}
	}

	worst := alerts[0]
	for _, alert := range alerts[1:] {
		if alert.Severity.AtLeast(worst.Severity) && alert.Severity != worst.Severity {
			worst = alert
		}
	}

	confidence := 0.5
	switch worst.Severity {
	case evidence.SeverityCritical:
		confidence = 1.0
	case evidence.SeverityHigh:
		confidence = 0.8
	}
	if worst.Verified {
		confidence = capConfidence(confidence + 0.2)
	}
	if worst.SignalStrength > 80 {
		confidence = capConfidence(confidence + 0.1)
	}

	return Evaluation{
		Triggered:  true,
		Confidence: confidence,
		Reason:     fmt.Sprintf("%s medical emergency detected via %s", worst.Severity, worst.DeviceType),
		Severity:   worst.Severity,
		Verified:   worst.Verified,
		Metadata: map[string]string{
			"severity":    string(worst.Severity),
			"device_type": worst.DeviceType,
		},
	}
}

type legalEvaluator struct {
	port evidence.LegalPort
}

func (e *legalEvaluator) Evaluate(ctx context.Context, userID id.UserID, _ time.Time) (Evaluation, error) {
	docs, err := e.port.VerifiedDocuments(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("verified documents: %w", err)
	}
	return scoreLegal(docs), nil
}

// scoreLegal: a verified death certificate is conclusive (1.0); any
// verified court order or medical directive is strong (0.8).
func scoreLegal(docs []evidence.LegalDocument) Evaluation {
	var supporting int
	for _, doc := range docs {
		if !doc.Verified {
			continue
		}
		if doc.Type == evidence.DocumentDeathCertificate {
			return Evaluation{
				Triggered:  true,
				Confidence: 1.0,
				Reason:     "verified death certificate on file from " + doc.Issuer,
				Verified:   true,
				Metadata:   map[string]string{"document_type": string(doc.Type)},
			}
		}
		supporting++
	}
	if supporting >= 1 {
		return Evaluation{
			Triggered:  true,
			Confidence: 0.8,
			Reason:     "verified legal filing on record",
			Verified:   true,
		}
	}
	return Evaluation{Reason: "no verified legal documents"}
}

type petitionEvaluator struct {
	port evidence.PetitionPort
}

func (e *petitionEvaluator) Evaluate(ctx context.Context, userID id.UserID, _ time.Time) (Evaluation, error) {
	petitions, err := e.port.ActivePetitions(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("active petitions: %w", err)
	}
	return scorePetitions(petitions), nil
}

// scorePetitions: any approved petition is conclusive; three or more
// pending petitions at high/critical urgency together are probable cause.
func scorePetitions(petitions []evidence.Petition) Evaluation {
	urgentPending := 0
	for _, petition := range petitions {
		if petition.Status == evidence.PetitionApproved {
			return Evaluation{
				Triggered:     true,
				Confidence:    1.0,
				Reason:        "beneficiary petition approved",
				PetitionCount: len(petitions),
				Metadata:      map[string]string{"beneficiary_id": petition.BeneficiaryID.String()},
			}
		}
		if petition.Status == evidence.PetitionPending && petition.Urgency.AtLeast(evidence.SeverityHigh) {
			urgentPending++
		}
	}
	if urgentPending >= 3 {
		return Evaluation{
			Triggered:     true,
			Confidence:    0.7,
			Reason:        fmt.Sprintf("%d urgent pending beneficiary petitions", urgentPending),
			PetitionCount: len(petitions),
		}
	}
	return Evaluation{Reason: "no approved or sufficient petitions", PetitionCount: len(petitions)}
}

type signalEvaluator struct {
	port evidence.SignalPort
}

func (e *signalEvaluator) Evaluate(ctx context.Context, userID id.UserID, _ time.Time) (Evaluation, error) {
	signals, err := e.port.ActiveSignals(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("active signals: %w", err)
	}
	return scoreSignals(signals), nil
}

// scoreSignals: a verified death notification scores 0.9; otherwise two
// or more distinct verified signal types corroborate each other (0.8).
func scoreSignals(signals []evidence.ThirdPartySignal) Evaluation {
	verifiedTypes := map[evidence.SignalType]bool{}
	for _, signal := range signals {
		if !signal.Verified {
			continue
		}
		if signal.Type == evidence.SignalDeathNotification {
			return Evaluation{
				Triggered:   true,
				Confidence:  0.9,
				Reason:      "verified death notification from " + signal.Source,
				Verified:    true,
				SignalCount: len(signals),
			}
		}
		verifiedTypes[signal.Type] = true
	}
	if len(verifiedTypes) >= 2 {
		return Evaluation{
			Triggered:   true,
			Confidence:  0.8,
			Reason:      fmt.Sprintf("%d distinct verified corroborating signals", len(verifiedTypes)),
			Verified:    true,
			SignalCount: len(signals),
		}
	}
	return Evaluation{Reason: "insufficient third-party corroboration", SignalCount: len(signals)}
}

type overrideEvaluator struct {
	port evidence.OverridePort
}

func (e *overrideEvaluator) Evaluate(ctx context.Context, userID id.UserID, _ time.Time) (Evaluation, error) {
	overrides, err := e.port.ActiveOverrides(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("active overrides: %w", err)
	}
	return scoreOverrides(overrides), nil
}

// scoreOverrides: authenticated overrides are always maximum confidence;
// the highest-priority one names the reason.
func scoreOverrides(overrides []evidence.ManualOverride) Evaluation {
	var best *evidence.ManualOverride
	for i := range overrides {
		if !overrides[i].Authenticated {
			continue
		}
		if best == nil || overrides[i].Priority.Rank() > best.Priority.Rank() {
			best = &overrides[i]
		}
	}
	if best == nil {
		return Evaluation{Reason: "no authenticated manual overrides"}
	}
	return Evaluation{
		Triggered:  true,
		Confidence: 1.0,
		Reason:     fmt.Sprintf("manual override by %s: %s", best.Initiator, best.Reason),
		Metadata: map[string]string{
			"priority":  string(best.Priority),
			"initiator": best.Initiator,
		},
	}
}

type deadmanEvaluator struct {
	port evidence.DeadmanPort
}

func (e *deadmanEvaluator) Evaluate(ctx context.Context, userID id.UserID, now time.Time) (Evaluation, error) {
	status, err := e.port.Status(ctx, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("deadman status: %w", err)
	}
	return scoreDeadman(status, now), nil
}

// scoreDeadman: confidence grows 0.1 per day overdue from a 0.5 base,
// capped at 1.0. Within the check-in window nothing fires.
func scoreDeadman(status *evidence.DeadmanStatus, now time.Time) Evaluation {
	if status == nil || !status.Enabled {
		return Evaluation{Reason: "dead man's switch not enabled"}
	}
	overdue, days := status.Overdue(now)
	if !overdue {
		return Evaluation{Reason: "check-in within interval"}
	}
	return Evaluation{
		Triggered:   true,
		Confidence:  capConfidence(0.5 + float64(days)*0.1),
		Reason:      fmt.Sprintf("check-in overdue by %d days", days),
		DaysOverdue: days,
		Metadata:    map[string]string{"interval_days": fmt.Sprintf("%d", status.IntervalDays)},
	}
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}
