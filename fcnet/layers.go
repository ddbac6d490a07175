package fcnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type maebe struct {
	err error
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) linear(input *G.Node, units int, name string) *G.Node {
	if m.err != nil {
		return nil
	}
	w := G.NewTensor(input.Graph(), Float, 2, G.WithShape(input.Shape()[1], units), G.WithInit(G.GlorotN(1.0)), G.WithName(name+"_w"))
	xw := m.do(func() (*G.Node, error) { return G.Mul(input, w) })
	b := G.NewTensor(xw.Graph(), Float, xw.Shape().Dims(), G.WithShape(xw.Shape().Clone()...), G.WithName(name+"_b"), G.WithInit(G.Zeroes()))
	return m.do(func() (*G.Node, error) { return G.Add(xw, b) })
}

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Reshape(input, to); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) softmax(input *G.Node) (retVal *G.Node) {
	return m.do(func() (*G.Node, error) { return G.SoftMax(input) })
}

// maskPenalty adds -1e7 * (1 - mask) to the logits, driving the
// post-softmax probability of masked-out entries towards zero while
// leaving unmasked logits untouched.
func (m *maebe) maskPenalty(logits, mask *G.Node) *G.Node {
	if m.err != nil {
		return nil
	}
	one := onesLike()
	penalty := m.do(func() (*G.Node, error) { return G.Sub(one, mask) })
	penalty = m.do(func() (*G.Node, error) { return G.Mul(penalty, penaltyConst()) })
	return m.do(func() (*G.Node, error) { return G.Add(logits, penalty) })
}

// xent is the average categorical cross entropy of a batch of
// probability rows against one-hot (or soft) label rows.
func (m *maebe) xent(probs, target *G.Node) (retVal *G.Node) {
	logp := m.do(func() (*G.Node, error) { return G.Log(probs) })
	ll := m.do(func() (*G.Node, error) { return G.HadamardProd(target, logp) })
	perRow := m.do(func() (*G.Node, error) { return G.Sum(ll, 1) })
	mean := m.do(func() (*G.Node, error) { return G.Mean(perRow) })
	return m.do(func() (*G.Node, error) { return G.Neg(mean) })
}

func onesLike() *G.Node {
	switch Float {
	case G.Float32:
		return G.NewConstant(float32(1))
	default:
		return G.NewConstant(float64(1))
	}
}

func penaltyConst() *G.Node {
	switch Float {
	case G.Float32:
		return G.NewConstant(MaskPenalty)
	default:
		return G.NewConstant(float64(MaskPenalty))
	}
}
