package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"heirloom/internal/trigger"
)

func testContext() EvalContext {
	return EvalContext{
		Trigger: trigger.TriggerCondition{
			Type:     trigger.TypeMedicalEmergency,
			Priority: 5,
		},
		Result: Evaluation{
			Triggered:  true,
			Confidence: 0.85,
			Severity:   "high",
			Verified:   true,
		},
		OverrideActive: false,
	}
}

func TestEvalCondition(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		cond trigger.Condition
		want bool
	}{
		{"equals on string field", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "high"}, true},
		{"equals mismatch", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "critical"}, false},
		{"not_equals", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpNotEquals, Value: "critical"}, true},
		{"equals on bool field", trigger.Condition{Field: trigger.FieldVerified, Operator: trigger.OpEquals, Value: "true"}, true},
		{"equals on numeric field", trigger.Condition{Field: trigger.FieldTriggerPriority, Operator: trigger.OpEquals, Value: "5"}, true},
		{"greater_than holds", trigger.Condition{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "0.8"}, true},
		{"greater_than fails at boundary", trigger.Condition{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "0.85"}, false},
		{"less_than", trigger.Condition{Field: trigger.FieldConfidence, Operator: trigger.OpLessThan, Value: "0.9"}, true},
		{"greater_than on non-numeric field is false", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpGreaterThan, Value: "1"}, false},
		{"greater_than with garbage literal is false", trigger.Condition{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "lots"}, false},
		{"contains", trigger.Condition{Field: trigger.FieldTriggerType, Operator: trigger.OpContains, Value: "medical"}, true},
		{"in set", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpIn, Values: []string{"high", "critical"}}, true},
		{"not_in set", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpNotIn, Values: []string{"low", "medium"}}, true},
		{"in set miss", trigger.Condition{Field: trigger.FieldSeverity, Operator: trigger.OpIn, Values: []string{"low"}}, false},
		{"unknown field never matches", trigger.Condition{Field: "result.unknown", Operator: trigger.OpEquals, Value: "x"}, false},
		{"unknown operator never matches", trigger.Condition{Field: trigger.FieldSeverity, Operator: "regex", Value: ".*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctx.evalCondition(tt.cond))
		})
	}
}

func TestMatchGroup(t *testing.T) {
	ctx := testContext()

	t.Run("all conditions must hold", func(t *testing.T) {
		assert.True(t, ctx.matchGroup(trigger.ConditionGroup{All: []trigger.Condition{
			{Field: trigger.FieldTriggered, Operator: trigger.OpEquals, Value: "true"},
			{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "0.5"},
		}}))
		assert.False(t, ctx.matchGroup(trigger.ConditionGroup{All: []trigger.Condition{
			{Field: trigger.FieldTriggered, Operator: trigger.OpEquals, Value: "true"},
			{Field: trigger.FieldConfidence, Operator: trigger.OpGreaterThan, Value: "0.99"},
		}}))
	})

	t.Run("any needs one match when present", func(t *testing.T) {
		assert.True(t, ctx.matchGroup(trigger.ConditionGroup{Any: []trigger.Condition{
			{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "critical"},
			{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "high"},
		}}))
		assert.False(t, ctx.matchGroup(trigger.ConditionGroup{Any: []trigger.Condition{
			{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "critical"},
		}}))
	})

	t.Run("none vetoes", func(t *testing.T) {
		assert.False(t, ctx.matchGroup(trigger.ConditionGroup{None: []trigger.Condition{
			{Field: trigger.FieldVerified, Operator: trigger.OpEquals, Value: "true"},
		}}))
	})

	t.Run("empty group always matches", func(t *testing.T) {
		assert.True(t, ctx.matchGroup(trigger.ConditionGroup{}))
	})
}

func TestMatchRules(t *testing.T) {
	ctx := testContext()
	rules := []trigger.Rule{
		{Name: "low", Priority: 1},
		{Name: "never", Priority: 99, Conditions: trigger.ConditionGroup{All: []trigger.Condition{
			{Field: trigger.FieldSeverity, Operator: trigger.OpEquals, Value: "critical"},
		}}},
		{Name: "high", Priority: 10},
	}

	matched := ctx.MatchRules(rules)
	assert.Len(t, matched, 2)
	assert.Equal(t, "high", matched[0].Name, "matched rules sort descending by priority")
	assert.Equal(t, "low", matched[1].Name)
}

func TestCanonicalActions(t *testing.T) {
	matched := []trigger.Rule{
		{Priority: 10, Actions: []trigger.ActionConfig{
			{Type: trigger.ActionWait, DelayMinutes: 30},
			{Type: trigger.ActionNotify, Message: "from high priority rule"},
		}},
		{Priority: 1, Actions: []trigger.ActionConfig{
			{Type: trigger.ActionNotify, Message: "from low priority rule"},
			{Type: trigger.ActionGrantAccess},
		}},
	}

	actions := canonicalActions(matched)
	assert.Equal(t, []trigger.ActionType{trigger.ActionGrantAccess, trigger.ActionNotify, trigger.ActionWait}, actionTypes(actions))
	for _, action := range actions {
		if action.Type == trigger.ActionNotify {
			assert.Equal(t, "from high priority rule", action.Message, "higher-priority rule controls parameters")
		}
	}
}
