package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "heirloom/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := uuid.NewString()
		parsed, err := ParseUserID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
		assert.False(t, parsed.IsNil())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseUserID("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil uuid", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestNewIDsAreDistinct(t *testing.T) {
	assert.NotEqual(t, NewTriggerID(), NewTriggerID())
	assert.NotEqual(t, NewMatrixID(), NewMatrixID())
	assert.NotEqual(t, NewGrantID(), NewGrantID())
}

func TestZeroValueIsNil(t *testing.T) {
	assert.True(t, UserID{}.IsNil())
	assert.True(t, BeneficiaryID{}.IsNil())
	assert.True(t, TriggerID{}.IsNil())
	assert.True(t, MatrixID{}.IsNil())
	assert.True(t, RuleID{}.IsNil())
	assert.True(t, GrantID{}.IsNil())
}
