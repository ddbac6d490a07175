package fcnet

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLogitMaskNil(t *testing.T) {
	logits := []float32{0.5, -1.25, 3}
	got, err := ApplyLogitMask(logits, nil)
	require.NoError(t, err)
	if &got[0] != &logits[0] {
		t.Error("nil mask should return the logits as they are")
	}
}

func TestApplyLogitMaskAllOnes(t *testing.T) {
	logits := []float32{0.5, -1.25, 3, 1e-30, -0.0}
	got, err := ApplyLogitMask(logits, []float32{1, 1, 1, 1, 1})
	require.NoError(t, err)
	// the penalty term is exactly zero, so the logits are unchanged bit for bit
	if diff := cmp.Diff(logits, got); diff != "" {
		t.Errorf("all-ones mask changed the logits:\n%s", diff)
	}
}

func TestApplyLogitMaskAllZeros(t *testing.T) {
	logits := []float32{0.5, -1.25, 3}
	got, err := ApplyLogitMask(logits, []float32{0, 0, 0})
	require.NoError(t, err)
	for i := range got {
		assert.Equal(t, logits[i]+MaskPenalty, got[i], "entry %d", i)
	}
}

func TestApplyLogitMaskSuppression(t *testing.T) {
	logits := []float32{2, 2, 2, 2}
	masked, err := ApplyLogitMask(logits, []float32{1, 0, 1, 0})
	require.NoError(t, err)

	probs := softmaxRow(masked)
	assert.InDelta(t, 0.5, float64(probs[0]), 1e-5)
	assert.InDelta(t, 0.5, float64(probs[2]), 1e-5)
	assert.LessOrEqual(t, float64(probs[1]), 1e-6, "masked entry must be suppressed")
	assert.LessOrEqual(t, float64(probs[3]), 1e-6, "masked entry must be suppressed")
}

func TestApplyLogitMaskLengthMismatch(t *testing.T) {
	_, err := ApplyLogitMask([]float32{1, 2, 3}, []float32{1, 0})
	assert.Error(t, err)
}

func softmaxRow(logits []float32) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	retVal := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		retVal[i] = math.Exp(float64(l - max))
		sum += retVal[i]
	}
	for i := range retVal {
		retVal[i] /= sum
	}
	return retVal
}
