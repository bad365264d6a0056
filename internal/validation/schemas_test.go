package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	sv, err := NewSchemaValidator()
	require.NoError(t, err)
	return sv
}

func TestValidateFeedback(t *testing.T) {
	sv := newValidator(t)

	t.Run("accepts a complete submission", func(t *testing.T) {
		result := sv.ValidateFeedback(`{
			"user_id": "0b0e9c3e-233f-4a1c-9c2b-5d2f3a8e4f10",
			"item_id": "7f0a1d62-8a4e-4f0c-b1df-2f6f0f3f9a21",
			"feedback_type": "rate",
			"rating": 4.5,
			"context": {"season": "winter", "occasion": "evening"}
		}`)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("rejects an unknown feedback type", func(t *testing.T) {
		result := sv.ValidateFeedback(`{
			"user_id": "0b0e9c3e-233f-4a1c-9c2b-5d2f3a8e4f10",
			"item_id": "7f0a1d62-8a4e-4f0c-b1df-2f6f0f3f9a21",
			"feedback_type": "meh"
		}`)
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
	})

	t.Run("rejects missing required fields", func(t *testing.T) {
		result := sv.ValidateFeedback(`{"feedback_type": "like"}`)
		assert.False(t, result.Valid)
	})

	t.Run("rejects out of range rating", func(t *testing.T) {
		result := sv.ValidateFeedback(`{
			"user_id": "0b0e9c3e-233f-4a1c-9c2b-5d2f3a8e4f10",
			"item_id": "7f0a1d62-8a4e-4f0c-b1df-2f6f0f3f9a21",
			"feedback_type": "rate",
			"rating": 9
		}`)
		assert.False(t, result.Valid)
	})

	t.Run("rejects unexpected fields", func(t *testing.T) {
		result := sv.ValidateFeedback(`{
			"user_id": "0b0e9c3e-233f-4a1c-9c2b-5d2f3a8e4f10",
			"item_id": "7f0a1d62-8a4e-4f0c-b1df-2f6f0f3f9a21",
			"feedback_type": "like",
			"admin": true
		}`)
		assert.False(t, result.Valid)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		result := sv.ValidateFeedback(`{"user_id": `)
		assert.False(t, result.Valid)
	})
}

func TestValidateQuiz(t *testing.T) {
	sv := newValidator(t)

	t.Run("accepts a tiered submission", func(t *testing.T) {
		result := sv.ValidateQuiz(`{
			"answers": [
				{"question_id": "q1", "selected_trait_ids": ["woody", "citrus"], "tier": "primary"},
				{"question_id": "q2", "selected_trait_ids": ["musk"], "tier": "tertiary"}
			],
			"stated_audience_preference": "unisex"
		}`)
		assert.True(t, result.Valid)
	})

	t.Run("rejects an empty trait selection", func(t *testing.T) {
		result := sv.ValidateQuiz(`{
			"answers": [{"question_id": "q1", "selected_trait_ids": [], "tier": "primary"}]
		}`)
		assert.False(t, result.Valid)
	})

	t.Run("rejects an unknown tier", func(t *testing.T) {
		result := sv.ValidateQuiz(`{
			"answers": [{"question_id": "q1", "selected_trait_ids": ["woody"], "tier": "quaternary"}]
		}`)
		assert.False(t, result.Valid)
	})

	t.Run("rejects an unknown audience", func(t *testing.T) {
		result := sv.ValidateQuiz(`{
			"answers": [{"question_id": "q1", "selected_trait_ids": ["woody"], "tier": "primary"}],
			"stated_audience_preference": "everyone"
		}`)
		assert.False(t, result.Valid)
	})
}
