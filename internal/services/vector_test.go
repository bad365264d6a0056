package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	t.Run("zero vectors and length mismatches are zero", func(t *testing.T) {
		assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
		assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 0}))
		assert.Zero(t, cosineSimilarity(nil, nil))
	})
}

func TestBlendVectors(t *testing.T) {
	current := []float32{1, 0}
	target := []float32{0, 1}

	t.Run("positive alpha moves toward target", func(t *testing.T) {
		blended := blendVectors(current, target, 0.2)
		before := cosineSimilarity(current, target)
		after := cosineSimilarity(blended, target)
		assert.Greater(t, after, before)
	})

	t.Run("negative alpha moves away from target", func(t *testing.T) {
		start := blendVectors(current, target, 0.3)
		moved := blendVectors(start, target, -0.2)
		assert.Less(t, cosineSimilarity(moved, target), cosineSimilarity(start, target))
	})

	t.Run("result stays unit length", func(t *testing.T) {
		blended := blendVectors(current, target, 0.4)
		norm := 0.0
		for _, v := range blended {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		blendVectors(current, target, 0.5)
		assert.Equal(t, []float32{1, 0}, current)
		assert.Equal(t, []float32{0, 1}, target)
	})
}

func TestVectorDelta(t *testing.T) {
	assert.Zero(t, vectorDelta([]float32{1, 0}, []float32{1, 0}))
	assert.InDelta(t, math.Sqrt2, vectorDelta([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2.0, vectorDelta([]float32{1, 0}, []float32{-1, 0}), 1e-6)
}
