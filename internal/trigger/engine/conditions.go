package engine

import (
	"sort"
	"strconv"
	"strings"

	"heirloom/internal/trigger"
)

// EvalContext is the typed view of one trigger plus its fresh evaluation
// that rule conditions resolve against.
type EvalContext struct {
	Trigger        trigger.TriggerCondition
	Result         Evaluation
	OverrideActive bool
}

// fieldValue is a small tagged union: conditions compare strings,
// numbers, or booleans depending on the field.
type fieldValue struct {
	kind valueKind
	str  string
	num  float64
	b    bool
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
)

func stringValue(s string) fieldValue  { return fieldValue{kind: kindString, str: s} }
func numberValue(n float64) fieldValue { return fieldValue{kind: kindNumber, num: n} }
func boolValue(b bool) fieldValue      { return fieldValue{kind: kindBool, b: b} }

// resolve maps a condition field onto the evaluation context. Unknown
// fields fail the condition rather than erroring; a rule referencing a
// field this build does not know simply never matches.
func (c EvalContext) resolve(field trigger.Field) (fieldValue, bool) {
	switch field {
	case trigger.FieldTriggered:
		return boolValue(c.Result.Triggered), true
	case trigger.FieldConfidence:
		return numberValue(c.Result.Confidence), true
	case trigger.FieldSeverity:
		return stringValue(string(c.Result.Severity)), true
	case trigger.FieldVerified:
		return boolValue(c.Result.Verified), true
	case trigger.FieldDaysOverdue:
		return numberValue(float64(c.Result.DaysOverdue)), true
	case trigger.FieldSignalCount:
		return numberValue(float64(c.Result.SignalCount)), true
	case trigger.FieldPetitionCount:
		return numberValue(float64(c.Result.PetitionCount)), true
	case trigger.FieldTriggerType:
		return stringValue(string(c.Trigger.Type)), true
	case trigger.FieldTriggerPriority:
		return numberValue(float64(c.Trigger.Priority)), true
	case trigger.FieldOverrideActive:
		return boolValue(c.OverrideActive), true
	default:
		return fieldValue{}, false
	}
}

// evalCondition applies one operator. Comparisons between incompatible
// kinds are false, never errors.
func (c EvalContext) evalCondition(cond trigger.Condition) bool {
	value, ok := c.resolve(cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case trigger.OpEquals:
		return value.equalsLiteral(cond.Value)
	case trigger.OpNotEquals:
		return !value.equalsLiteral(cond.Value)
	case trigger.OpContains:
		return value.kind == kindString && strings.Contains(value.str, cond.Value)
	case trigger.OpGreaterThan:
		want, err := strconv.ParseFloat(cond.Value, 64)
		return err == nil && value.kind == kindNumber && value.num > want
	case trigger.OpLessThan:
		want, err := strconv.ParseFloat(cond.Value, 64)
		return err == nil && value.kind == kindNumber && value.num < want
	case trigger.OpIn:
		return value.inSet(cond.Values)
	case trigger.OpNotIn:
		return !value.inSet(cond.Values)
	default:
		return false
	}
}

func (v fieldValue) equalsLiteral(literal string) bool {
	switch v.kind {
	case kindString:
		return v.str == literal
	case kindBool:
		want, err := strconv.ParseBool(literal)
		return err == nil && v.b == want
	case kindNumber:
		want, err := strconv.ParseFloat(literal, 64)
		return err == nil && v.num == want
	}
	return false
}

func (v fieldValue) inSet(literals []string) bool {
	for _, literal := range literals {
		if v.equalsLiteral(literal) {
			return true
		}
	}
	return false
}

// matchGroup applies ALL/ANY/NONE semantics: every All holds, at least
// one Any holds when the group is present, and no None holds.
func (c EvalContext) matchGroup(group trigger.ConditionGroup) bool {
	for _, cond := range group.All {
		if !c.evalCondition(cond) {
			return false
		}
	}
	if len(group.Any) > 0 {
		matched := false
		for _, cond := range group.Any {
			if c.evalCondition(cond) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, cond := range group.None {
		if c.evalCondition(cond) {
			return false
		}
	}
	return true
}

// MatchRules returns the rules whose condition groups hold, sorted
// descending by priority.
func (c EvalContext) MatchRules(rules []trigger.Rule) []trigger.Rule {
	var matched []trigger.Rule
	for _, rule := range rules {
		if c.matchGroup(rule.Conditions) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority > matched[j].Priority })
	return matched
}
