package warpnet

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/warpdrive/warpnet/fcnet"
	"gorgonia.org/tensor"
)

// dummyForwarder produces well-formed but meaningless outputs: softmaxed
// random logits per head (still honoring the mask) and zero values. It
// stands in for the real network in tests of the surrounding plumbing.
type dummyForwarder struct {
	rows     int
	nvec     []int
	maskWide int
	rnd      *rand.Rand
}

func (d dummyForwarder) Forward(obs, mask []float32) (probs []*tensor.Dense, values *tensor.Dense, err error) {
	probs = make([]*tensor.Dense, len(d.nvec))
	off := 0
	for k, n := range d.nvec {
		backing := make([]float32, d.rows*n)
		for row := 0; row < d.rows; row++ {
			logits := make([]float32, n)
			for i := range logits {
				logits[i] = float32(d.rnd.NormFloat64())
			}
			if mask != nil {
				headOff := 0
				if d.maskWide != n {
					headOff = off
				}
				if logits, err = fcnet.ApplyLogitMask(logits, mask[row*d.maskWide+headOff:row*d.maskWide+headOff+n]); err != nil {
					return nil, nil, err
				}
			}
			copy(backing[row*n:], softmax32(logits))
		}
		probs[k] = tensor.New(tensor.WithShape(d.rows, n), tensor.WithBacking(backing))
		off += n
	}
	values = tensor.New(tensor.WithShape(d.rows), tensor.WithBacking(make([]float32, d.rows)))
	return probs, values, nil
}

func (d dummyForwarder) Close() error { return nil }

// softmax32 is a numerically stable softmax over a single row of logits.
func softmax32(logits []float32) []float32 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	retVal := make([]float32, len(logits))
	var sum float32
	for i, l := range logits {
		retVal[i] = math32.Exp(l - max)
		sum += retVal[i]
	}
	for i := range retVal {
		retVal[i] /= sum
	}
	return retVal
}
