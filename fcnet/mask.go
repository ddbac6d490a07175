package fcnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// MaskPenalty is added to the logit of every invalid action. It is large
// enough to zero the action out after the softmax, while a mask value of
// 1 contributes exactly 0 and leaves the logit bit-for-bit unchanged.
const MaskPenalty float32 = -1e7

// ApplyLogitMask returns logits + MaskPenalty*(1-mask). Mask values of 1
// are valid actions; values of 0 are invalid. A nil mask returns the
// logits as they are.
func ApplyLogitMask(logits, mask []float32) ([]float32, error) {
	if mask == nil {
		return logits, nil
	}
	if len(mask) != len(logits) {
		return nil, errors.Errorf("mask length %d does not match logits length %d", len(mask), len(logits))
	}

	penalty := make([]float32, len(mask))
	copy(penalty, mask)
	vecf32.Scale(penalty, -1)          // -mask
	vecf32.Trans(penalty, 1)           // 1 - mask
	vecf32.Scale(penalty, MaskPenalty) // MaskPenalty * (1 - mask)

	retVal := make([]float32, len(logits))
	copy(retVal, logits)
	vecf32.Add(retVal, penalty)
	return retVal, nil
}
