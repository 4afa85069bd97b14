package access

import (
	"fmt"
	"time"

	"github.com/mssola/useragent"

	"heirloom/internal/evidence"
)

// ConditionType tags a rule condition.
type ConditionType string

const (
	ConditionTimeDelay            ConditionType = "time_delay"
	ConditionMFAVerified          ConditionType = "mfa_verified"
	ConditionLocation             ConditionType = "location"
	ConditionEmergencyTrigger     ConditionType = "emergency_trigger"
	ConditionInactivity           ConditionType = "inactivity"
	ConditionDeviceTrust          ConditionType = "device_trust"
	ConditionExternalVerification ConditionType = "external_verification"
	ConditionCustom               ConditionType = "custom"
)

// ReferenceEvent names the timestamp a time-delay condition counts from.
type ReferenceEvent string

const (
	ReferenceGrant      ReferenceEvent = "grant"
	ReferenceRequest    ReferenceEvent = "request"
	ReferenceLastAccess ReferenceEvent = "lastAccess"
	ReferenceActivation ReferenceEvent = "activation"
)

// RuleCondition gates a rule's contribution. Fields beyond Type are
// interpreted per condition type.
type RuleCondition struct {
	Type ConditionType `json:"type"`

	// time_delay
	DelayHours int            `json:"delay_hours,omitempty"`
	Reference  ReferenceEvent `json:"reference,omitempty"`

	// emergency_trigger: "any" as trigger type matches all
	RequiredSeverity    evidence.Severity `json:"required_severity,omitempty"`
	RequiredTriggerType string            `json:"required_trigger_type,omitempty"`

	// location
	AllowedLocations []string `json:"allowed_locations,omitempty"`

	// inactivity
	InactiveDays int `json:"inactive_days,omitempty"`

	// custom: names a predicate registered on the service
	Predicate string `json:"predicate,omitempty"`
}

// CustomPredicate is a caller-registered check backing custom conditions.
type CustomPredicate func(reqCtx RequestContext, now time.Time) bool

// RequestContext carries the per-request facts conditions check. The
// reference timestamps come from the caller's records; zero values mean
// the event has not happened.
type RequestContext struct {
	GrantedAt    time.Time
	RequestedAt  time.Time
	LastAccessAt time.Time
	ActivatedAt  time.Time

	MFAVerified                  bool
	ExternalVerificationComplete bool

	// Location is the caller-reported access location (country or
	// region code) checked by location conditions.
	Location string

	// DeviceTrusted and UserAgent describe the requesting device for
	// device-trust conditions.
	DeviceTrusted bool
	UserAgent     string
}

// conditionEnv is the evaluation-time state conditions check beyond the
// caller-supplied request context: the user's emergency activation, the
// dead-man-switch snapshot (nil when no port is wired or the lookup
// failed), and the registered custom predicates.
type conditionEnv struct {
	Activation EmergencyActivation
	Deadman    *evidence.DeadmanStatus
	Predicates map[string]CustomPredicate
}

// conditionOutcome reports one condition check. When unsatisfied,
// RequiredAction is a human-readable explanation of what unblocks it.
type conditionOutcome struct {
	Satisfied      bool
	RequiredAction string
}

func satisfied() conditionOutcome { return conditionOutcome{Satisfied: true} }

func blocked(action string) conditionOutcome {
	return conditionOutcome{RequiredAction: action}
}

// evalCondition checks one condition against the request context and the
// evaluation-time environment. Unknown condition types fail closed.
func evalCondition(cond RuleCondition, reqCtx RequestContext, env conditionEnv, now time.Time) conditionOutcome {
	switch cond.Type {
	case ConditionTimeDelay:
		return evalTimeDelay(cond, reqCtx, now)
	case ConditionEmergencyTrigger:
		return evalEmergencyTrigger(cond, env.Activation)
	case ConditionMFAVerified:
		if reqCtx.MFAVerified {
			return satisfied()
		}
		return blocked("complete multi-factor verification")
	case ConditionExternalVerification:
		if reqCtx.ExternalVerificationComplete {
			return satisfied()
		}
		return blocked("complete external identity verification")
	case ConditionLocation:
		return evalLocation(cond, reqCtx)
	case ConditionInactivity:
		return evalInactivity(cond, env.Deadman, now)
	case ConditionDeviceTrust:
		return evalDeviceTrust(reqCtx)
	case ConditionCustom:
		return evalCustom(cond, reqCtx, env.Predicates, now)
	default:
		return blocked(fmt.Sprintf("unsupported condition type %q", cond.Type))
	}
}

// evalTimeDelay is satisfied once now - referenceTime >= delayHours.
// While waiting it reports the remaining time and when access opens.
func evalTimeDelay(cond RuleCondition, reqCtx RequestContext, now time.Time) conditionOutcome {
	reference := reqCtx.referenceTime(cond.Reference)
	if reference.IsZero() {
		return blocked(fmt.Sprintf("no %s event recorded yet", cond.Reference))
	}
	availableAt := reference.Add(time.Duration(cond.DelayHours) * time.Hour)
	if !now.Before(availableAt) {
		return satisfied()
	}
	remaining := availableAt.Sub(now).Round(time.Minute)
	return blocked(fmt.Sprintf("wait %s (access available at %s)", remaining, availableAt.UTC().Format(time.RFC3339)))
}

// evalEmergencyTrigger checks the global activation against the rule's
// required severity and trigger type; "any" matches every trigger type.
func evalEmergencyTrigger(cond RuleCondition, activation EmergencyActivation) conditionOutcome {
	if !activation.Active {
		return blocked("requires an active emergency trigger")
	}
	if cond.RequiredTriggerType != "" && cond.RequiredTriggerType != "any" && cond.RequiredTriggerType != activation.TriggerType {
		return blocked(fmt.Sprintf("requires emergency trigger of type %s", cond.RequiredTriggerType))
	}
	if cond.RequiredSeverity != "" && !activation.Severity.AtLeast(cond.RequiredSeverity) {
		return blocked(fmt.Sprintf("requires emergency severity %s or above", cond.RequiredSeverity))
	}
	return satisfied()
}

// evalLocation requires a reported access location inside the rule's
// allowlist; an empty allowlist accepts any reported location.
func evalLocation(cond RuleCondition, reqCtx RequestContext) conditionOutcome {
	if reqCtx.Location == "" {
		return blocked("provide an access location")
	}
	if len(cond.AllowedLocations) == 0 {
		return satisfied()
	}
	for _, allowed := range cond.AllowedLocations {
		if allowed == reqCtx.Location {
			return satisfied()
		}
	}
	return blocked(fmt.Sprintf("access from %s is not permitted", reqCtx.Location))
}

// evalInactivity gates access on the estate owner having been out of
// contact for at least inactiveDays, read from the dead-man switch.
func evalInactivity(cond RuleCondition, deadman *evidence.DeadmanStatus, now time.Time) conditionOutcome {
	if deadman == nil || deadman.LastCheckIn.IsZero() {
		return blocked("owner inactivity status is unavailable")
	}
	inactiveDays := int(now.Sub(deadman.LastCheckIn).Hours() / 24)
	if inactiveDays >= cond.InactiveDays {
		return satisfied()
	}
	return blocked(fmt.Sprintf("owner checked in %d days ago, requires %d days of inactivity", inactiveDays, cond.InactiveDays))
}

// evalDeviceTrust requires the caller to vouch for the device and, when a
// user agent is presented, rejects automated clients.
func evalDeviceTrust(reqCtx RequestContext) conditionOutcome {
	if !reqCtx.DeviceTrusted {
		return blocked("access from a trusted device is required")
	}
	if reqCtx.UserAgent != "" && useragent.New(reqCtx.UserAgent).Bot() {
		return blocked("automated clients are not trusted devices")
	}
	return satisfied()
}

// evalCustom dispatches to a predicate registered on the service by
// name. Unregistered predicates fail closed.
func evalCustom(cond RuleCondition, reqCtx RequestContext, predicates map[string]CustomPredicate, now time.Time) conditionOutcome {
	if cond.Predicate == "" {
		return blocked("custom condition names no predicate")
	}
	predicate, ok := predicates[cond.Predicate]
	if !ok {
		return blocked(fmt.Sprintf("unknown custom predicate %q", cond.Predicate))
	}
	if predicate(reqCtx, now) {
		return satisfied()
	}
	return blocked(fmt.Sprintf("custom requirement %q is not met", cond.Predicate))
}

func (c RequestContext) referenceTime(ref ReferenceEvent) time.Time {
	switch ref {
	case ReferenceGrant:
		return c.GrantedAt
	case ReferenceRequest:
		return c.RequestedAt
	case ReferenceLastAccess:
		return c.LastAccessAt
	case ReferenceActivation:
		return c.ActivatedAt
	}
	return time.Time{}
}
