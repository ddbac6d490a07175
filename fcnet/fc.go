// Package fcnet implements the fully connected policy/value network that
// backs a single policy in a multi-agent training loop. The network is a
// gorgonia expression graph: a linear+ReLU trunk shared by one policy
// head per action dimension and a scalar value head. Action masking is
// applied in-graph as an additive logit penalty before the softmax.
package fcnet

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

// FC is the whole neural network architecture of the policy/value network.
//
// The policy heads and the value head share the trunk.
type FC struct {
	Config

	g *G.ExprGraph

	// labels, used only when the graph is built with gradients
	Π []*G.Node // one matrix of targets per action dimension
	V *G.Node   // value targets

	obs   *G.Node   // input, one row per (env, agent)
	masks []*G.Node // per-head mask inputs, nil when MaskWidth == 0

	policyOutputs []*G.Node
	valueOutput   *G.Node

	policyValues []G.Value // per-head probabilities predicted
	value        G.Value   // the value predicted
	cost         G.Value   // cost, for training recording
}

// New returns a new, uninitialized *FC.
func New(conf Config) *FC {
	return &FC{
		Config: conf,
	}
}

func (d *FC) Init() error {
	d.reset()
	d.g = G.NewGraph()
	probs, valueOutput := d.fwd()
	return d.bwd(probs, valueOutput)
}

func (d *FC) fwd() (probs []*G.Node, valueOutput *G.Node) {
	d.obs = G.NewMatrix(d.g, Float, G.WithShape(d.BatchSize, d.Features), G.WithName("Obs"))
	if d.MaskWidth > 0 {
		d.masks = make([]*G.Node, len(d.ActionSpace))
		for k, n := range d.ActionSpace {
			d.masks[k] = G.NewMatrix(d.g, Float, G.WithShape(d.BatchSize, n), G.WithName(fmt.Sprintf("ActionMask%d", k)))
		}
	}

	var m maebe

	// shared trunk
	out := d.obs
	for i, width := range d.FCDims {
		out = m.rectify(m.linear(out, width, fmt.Sprintf("FC%d", i)))
	}

	// policy heads
	d.policyValues = make([]G.Value, len(d.ActionSpace))
	for k, n := range d.ActionSpace {
		logits := m.linear(out, n, fmt.Sprintf("Policy%d", k))
		if d.masks != nil {
			logits = m.maskPenalty(logits, d.masks[k])
		}
		p := m.softmax(logits)
		d.policyOutputs = append(d.policyOutputs, p)
		G.Read(p, &d.policyValues[k])
		probs = append(probs, p)
	}

	// value head
	value := m.linear(out, 1, "Value")
	valueOutput = m.reshape(value, tensor.Shape{d.BatchSize})
	d.valueOutput = valueOutput
	G.Read(d.valueOutput, &d.value)

	return probs, valueOutput
}

func (d *FC) bwd(probs []*G.Node, valueOutput *G.Node) error {
	if d.FwdOnly {
		return nil
	}
	d.Π = make([]*G.Node, len(d.ActionSpace))
	for k, n := range d.ActionSpace {
		d.Π[k] = G.NewMatrix(d.g, Float, G.WithShape(d.BatchSize, n), G.WithName(fmt.Sprintf("Π%d", k)))
	}
	d.V = G.NewVector(d.g, Float, G.WithShape(d.BatchSize), G.WithName("V"))

	var m maebe
	var ccost *G.Node
	for k, p := range probs {
		pcost := m.xent(p, d.Π[k])
		if ccost == nil {
			ccost = pcost
			continue
		}
		prev := ccost
		ccost = m.do(func() (*G.Node, error) { return G.Add(prev, pcost) })
	}
	vcost := m.do(func() (*G.Node, error) { return G.Sub(valueOutput, d.V) })
	vcost = m.do(func() (*G.Node, error) { return G.Square(vcost) })
	vcost = m.do(func() (*G.Node, error) { return G.Mean(vcost) })
	ccost = m.do(func() (*G.Node, error) { return G.Add(ccost, vcost) })
	if m.err != nil {
		return m.err
	}
	G.Read(ccost, &d.cost)

	if _, err := G.Grad(ccost, d.Model()...); err != nil {
		return err
	}
	return nil
}

// Model returns the learnable parameters: the trunk, policy head and
// value head weights. Label and input nodes are excluded. An external
// optimizer steps these between forward/backward passes; the network
// itself never mutates them.
func (d *FC) Model() G.Nodes {
	retVal := make(G.Nodes, 0, d.g.Nodes().Len())
	for _, n := range d.g.AllNodes() {
		if n.IsVar() && !d.isInput(n) {
			retVal = append(retVal, n)
		}
	}
	return retVal
}

func (d *FC) isInput(n *G.Node) bool {
	if n == d.obs || n == d.V {
		return true
	}
	for _, mask := range d.masks {
		if n == mask {
			return true
		}
	}
	for _, pi := range d.Π {
		if n == pi {
			return true
		}
	}
	return false
}

// Graph exposes the expression graph, mainly so an external training
// loop can compile its own VM over it.
func (d *FC) Graph() *G.ExprGraph { return d.g }

// Inputs returns the observation input node and the per-head mask input
// nodes (nil when the network is unmasked), for callers that drive the
// graph with their own VM.
func (d *FC) Inputs() (obs *G.Node, masks []*G.Node) { return d.obs, d.masks }

// Cost returns the recorded combined cost of the last run, if the graph
// was built with gradients.
func (d *FC) Cost() G.Value { return d.cost }

func (d *FC) Clone() (*FC, error) {
	d2 := New(d.Config)
	if err := d2.Init(); err != nil {
		return nil, err
	}

	model := d.Model()
	model2 := d2.Model()
	for i, n := range model {
		if err := G.Let(model2[i], n.Value()); err != nil {
			return nil, err
		}
	}
	return d2, nil
}

// FC implements FCer
func (d *FC) FC() *FC { return d }

func (d *FC) reset() {
	d.g = nil
	d.Π = nil
	d.V = nil

	d.obs = nil
	d.masks = nil
	d.policyOutputs = nil
	d.valueOutput = nil
	d.policyValues = nil
}

func (d *FC) GobEncode() (retVal []byte, err error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, n := range d.Model() {
		v := n.Value()
		if err = enc.Encode(&v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (d *FC) GobDecode(p []byte) error {
	d.reset()
	if err := d.Init(); err != nil {
		return err
	}

	buf := bytes.NewBuffer(p)
	dec := gob.NewDecoder(buf)
	for _, n := range d.Model() {
		var v G.Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		G.Let(n, v)
	}
	return nil
}
