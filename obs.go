package warpnet

import (
	"github.com/pkg/errors"
	"github.com/warpdrive/warpnet/spaces"
	"gorgonia.org/tensor"
)

// bufferName forms the data manager key for an observation buffer. key is
// the Dict entry name, or empty for a Box space.
func (m *Model) bufferName(key string) string {
	name := Observations
	if m.separatePlaceholders {
		name += "_" + m.policy
	}
	if key != "" {
		name += "_" + key
	}
	return name
}

// reshapeAndFlattenObs normalizes a raw buffer of shape [num_envs, ...]
// into [num_envs, num_agents, features]: the agent dimension is moved to
// the second position and everything trailing is flattened.
//
// The simulation lays observations out as (num_agents, *feature_dims)
// per environment when the agent dimension is "first". When it is
// "last" the axes are permuted to match that convention first.
func (m *Model) reshapeAndFlattenObs(obs *tensor.Dense) (*tensor.Dense, error) {
	numEnvs := obs.Shape()[0]
	numAgents := m.numAgentsPerBuffer()

	o := obs.Clone().(*tensor.Dense)
	switch m.agentDim {
	case AgentDimFirst:
	case AgentDimLast:
		if o.Dims() == 1 {
			// a rank-1 buffer carries no agent axis to move; it can only
			// be reinterpreted when this buffer holds a single agent
			if numAgents != 1 {
				return nil, errors.Errorf("rank-1 observation buffer with %d agents; cannot infer the agent dimension", numAgents)
			}
			if err := o.Reshape(o.Shape()[0], 1); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		if o.Dims() > 2 {
			axes := make([]int, o.Dims())
			axes[1] = o.Dims() - 1
			for i := 2; i < o.Dims(); i++ {
				axes[i] = i - 1
			}
			t, err := tensor.Transpose(o, axes...)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			o = t.(*tensor.Dense)
		}
	default:
		return nil, errors.Errorf("num_agents can only be the %q or %q dimension in the observations, got %v", AgentDimFirst, AgentDimLast, m.agentDim)
	}

	total := o.Shape().TotalSize()
	features := total / (numEnvs * numAgents)
	if features*numEnvs*numAgents != total {
		return nil, errors.Errorf("observation buffer of %d values does not divide into [%d, %d, features]", total, numEnvs, numAgents)
	}
	if err := o.Reshape(numEnvs, numAgents, features); err != nil {
		return nil, errors.WithStack(err)
	}
	return o, nil
}

// flattenedObs retrieves this policy's observation buffers from the data
// manager and assembles them into one [num_envs, num_agents, features]
// tensor. For Dict spaces the reserved action-mask entry is split out and
// stored for the next forward pass; the remaining entries are flattened
// and concatenated along the feature axis in Dict iteration order.
func (m *Model) flattenedObs() (*tensor.Dense, error) {
	m.actionMask = nil
	switch sp := m.obsSpace.(type) {
	case spaces.Box:
		raw, err := m.dm.Get(m.bufferName(""))
		if err != nil {
			return nil, errors.Wrapf(err, "retrieving %q", m.bufferName(""))
		}
		return m.reshapeAndFlattenObs(raw)
	case spaces.Dict:
		var flats []tensor.Tensor
		for _, key := range sp.Keys() {
			name := m.bufferName(key)
			raw, err := m.dm.Get(name)
			if err != nil {
				return nil, errors.Wrapf(err, "retrieving %q", name)
			}
			flat, err := m.reshapeAndFlattenObs(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "flattening %q", name)
			}
			if key == spaces.ActionMask {
				m.actionMask = flat
				continue
			}
			flats = append(flats, flat)
		}
		if len(flats) == 0 {
			return nil, errors.New("observation space holds nothing but the action mask")
		}
		if len(flats) == 1 {
			return flats[0].(*tensor.Dense), nil
		}
		cat, err := tensor.Concat(2, flats[0], flats[1:]...)
		if err != nil {
			return nil, errors.Wrap(err, "concatenating observation blocks")
		}
		return cat.(*tensor.Dense), nil
	}
	return nil, errors.New("observation space must be of Box or Dict type")
}

// selectAgents gathers the given agent rows along the agent axis of a
// [num_envs, num_agents, features] tensor, preserving their order.
func selectAgents(t *tensor.Dense, agentIDs []int) (*tensor.Dense, error) {
	var s slicer
	views := make([]tensor.Tensor, 0, len(agentIDs))
	for _, id := range agentIDs {
		v := s.Slice(t, nil, sli(id, id+1))
		if s.err != nil {
			return nil, errors.Wrapf(s.err, "selecting agent %d", id)
		}
		views = append(views, v.Materialize())
	}
	if len(views) == 1 {
		return views[0].(*tensor.Dense), nil
	}
	cat, err := tensor.Concat(1, views[0], views[1:]...)
	if err != nil {
		return nil, errors.Wrap(err, "concatenating agent rows")
	}
	return cat.(*tensor.Dense), nil
}
