package fcnet

import (
	"bytes"
	"log"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Forwarder holds the state for a *FC and a VM. By using a Forwarder
// there is no longer a need to create a VM every time a forward pass
// needs to be run.
type Forwarder struct {
	d *FC
	m G.VM

	obs   *tensor.Dense
	masks []*tensor.Dense
	buf   *bytes.Buffer
}

// NewForwarder takes a *FC and builds a forward-only copy of it with its
// own VM and preallocated input tensors. The weights are copied from d,
// so an externally trained network can be swapped in by building a fresh
// Forwarder.
func NewForwarder(d *FC, toLog bool) (*Forwarder, error) {
	conf := d.Config
	conf.FwdOnly = true

	retVal := &Forwarder{
		d:   New(conf),
		obs: tensor.New(tensor.WithShape(conf.BatchSize, conf.Features), tensor.Of(Float)),
	}
	if err := retVal.d.Init(); err != nil {
		return nil, err
	}
	if conf.MaskWidth > 0 {
		retVal.masks = make([]*tensor.Dense, len(conf.ActionSpace))
		for k, n := range conf.ActionSpace {
			retVal.masks[k] = tensor.New(tensor.WithShape(conf.BatchSize, n), tensor.Of(Float))
		}
	}

	fwdModel := retVal.d.Model()
	for i, n := range d.Model() {
		original := n.Value().Data().([]float32)
		cloned := fwdModel[i].Value().Data().([]float32)
		copy(cloned, original)
	}

	retVal.buf = new(bytes.Buffer)
	if toLog {
		logger := log.New(retVal.buf, "", 0)
		retVal.m = G.NewTapeMachine(retVal.d.g,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		)
	} else {
		retVal.m = G.NewTapeMachine(retVal.d.g)
	}
	return retVal, nil
}

// FC implements FCer
func (f *Forwarder) FC() *FC { return f.d }

// Forward runs the network over one batch of flattened observations laid
// out row-major as [BatchSize, Features]. mask may be nil; otherwise it
// is row-major [BatchSize, MaskWidth] with 1 marking valid actions. It
// returns one probability matrix [BatchSize, n_k] per action dimension
// and a value vector of BatchSize scalars.
func (f *Forwarder) Forward(obs, mask []float32) (probs []*tensor.Dense, values *tensor.Dense, err error) {
	f.buf.Reset()
	if want := f.d.BatchSize * f.d.Features; len(obs) != want {
		return nil, nil, errors.Errorf("expected %d observation values, got %d", want, len(obs))
	}
	if mask != nil && f.d.MaskWidth == 0 {
		return nil, nil, errors.New("network was built without an action mask input")
	}
	if mask != nil {
		if want := f.d.BatchSize * f.d.MaskWidth; len(mask) != want {
			return nil, nil, errors.Errorf("expected %d mask values, got %d", want, len(mask))
		}
	}

	copy(f.obs.Data().([]float32), obs)
	f.letMasks(mask)

	f.m.Reset()
	if err := G.Let(f.d.obs, f.obs); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	for k, mt := range f.masks {
		if err := G.Let(f.d.masks[k], mt); err != nil {
			return nil, nil, errors.WithStack(err)
		}
	}
	if err := f.m.RunAll(); err != nil {
		return nil, nil, err
	}

	probs = make([]*tensor.Dense, len(f.d.ActionSpace))
	for k, n := range f.d.ActionSpace {
		backing := make([]float32, f.d.BatchSize*n)
		copy(backing, f.d.policyValues[k].Data().([]float32))
		probs[k] = tensor.New(tensor.WithShape(f.d.BatchSize, n), tensor.WithBacking(backing))
	}
	vbacking := make([]float32, f.d.BatchSize)
	copy(vbacking, f.d.value.Data().([]float32))
	values = tensor.New(tensor.WithShape(f.d.BatchSize), tensor.WithBacking(vbacking))
	return probs, values, nil
}

// letMasks spreads the flat mask over the per-head input tensors. When
// the mask covers the concatenated action space each head gets its own
// column range; when it is head-shaped every head sees the same values.
// A nil mask means everything is valid.
func (f *Forwarder) letMasks(mask []float32) {
	for k, mt := range f.masks {
		data := mt.Data().([]float32)
		n := f.d.ActionSpace[k]
		if mask == nil {
			for i := range data {
				data[i] = 1
			}
			continue
		}
		off := f.d.maskOffset(k)
		for row := 0; row < f.d.BatchSize; row++ {
			copy(data[row*n:(row+1)*n], mask[row*f.d.MaskWidth+off:row*f.d.MaskWidth+off+n])
		}
	}
}

// ExecLog returns the execution log. If the Forwarder was built with
// toLog = false it returns an empty string.
func (f *Forwarder) ExecLog() string { return f.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (f *Forwarder) Close() error { return f.m.Close() }
