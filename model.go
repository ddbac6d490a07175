// Package warpnet implements the policy/value network head of a
// WarpDrive-style multi-agent training loop. A Model is built once per
// policy: it resolves the policy's observation and action spaces,
// retrieves observation buffers from the device-resident data manager,
// flattens them per agent and feeds them through a fully connected
// network to produce per-action-dimension probabilities and a value
// estimate, honoring an optional action mask.
package warpnet

import (
	"log"

	"github.com/pkg/errors"
	"github.com/warpdrive/warpnet/fcnet"
	"github.com/warpdrive/warpnet/spaces"
	"gorgonia.org/tensor"
)

// Name identifies this model implementation.
const Name = "fully_connected"

// Model glues one policy's network to the environment and data manager.
type Model struct {
	env     Env
	dm      DataManager
	policy  string
	mapping PolicyMapping

	separatePlaceholders bool
	agentDim             AgentDim
	fastForward          bool

	obsSpace spaces.Space
	nvec     []int
	features int

	net *fcnet.FC
	fwd Forwarder

	// recomputed from the observation batch on every forward pass
	actionMask *tensor.Dense

	outEnc OutputEncoder
	step   int
}

// New constructs the network for one policy. separatePlaceholders says
// whether the data manager holds one observation buffer per policy or a
// single shared one; agentDim says where the agent dimension sits in the
// raw buffers. Space or configuration problems fail here, fast.
func New(env Env, dm DataManager, conf ModelConfig, policy string, mapping PolicyMapping, separatePlaceholders bool, agentDim AgentDim) (*Model, error) {
	if !agentDim.IsValid() {
		return nil, errors.Errorf("num_agents can only be the %q or %q dimension in the observations", AgentDimFirst, AgentDimLast)
	}
	if len(conf.FCDims) == 0 {
		return nil, errors.New("model config needs at least one trunk layer width")
	}
	agentIDs := mapping[policy]
	if len(agentIDs) == 0 {
		return nil, errors.Errorf("policy %q governs no agents", policy)
	}

	sample := agentIDs[0]
	obsSpace := env.ObservationSpace(sample)
	if obsSpace == nil {
		return nil, errors.Errorf("agent %d has no observation space", sample)
	}
	actSpace := env.ActionSpace(sample)
	if actSpace == nil {
		return nil, errors.Errorf("agent %d has no action space", sample)
	}

	m := &Model{
		env:                  env,
		dm:                   dm,
		policy:               policy,
		mapping:              mapping,
		separatePlaceholders: separatePlaceholders,
		agentDim:             agentDim,
		obsSpace:             obsSpace,
		nvec:                 actSpace.Nvec(),
		features:             spaces.FlattenedSize(obsSpace),
	}

	nnConf := fcnet.Config{
		FCDims:      conf.FCDims,
		Features:    m.features,
		BatchSize:   env.NumEnvs() * len(agentIDs),
		ActionSpace: m.nvec,
		MaskWidth:   m.maskWidth(),
	}
	if !nnConf.IsValid() {
		return nil, errors.Errorf("invalid network config %+v", nnConf)
	}
	m.net = fcnet.New(nnConf)
	if err := m.net.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing network")
	}
	fwd, err := fcnet.NewForwarder(m.net, false)
	if err != nil {
		return nil, errors.Wrap(err, "building forwarder")
	}
	m.fwd = fwd
	return m, nil
}

// maskWidth is the flattened per-agent width of the reserved action-mask
// entry, or 0 when the observation space carries none.
func (m *Model) maskWidth() int {
	d, ok := m.obsSpace.(spaces.Dict)
	if !ok {
		return 0
	}
	b, ok := d.Get(spaces.ActionMask)
	if !ok {
		return 0
	}
	return b.Size()
}

// numAgentsPerBuffer is the size of the agent dimension in the raw
// buffers this model reads: all agents when placeholders are shared,
// only the governed ones when each policy has its own.
func (m *Model) numAgentsPerBuffer() int {
	if m.separatePlaceholders {
		return len(m.mapping[m.policy])
	}
	return m.env.NumAgents()
}

// Net exposes the underlying network so an external optimizer can bind
// its parameters and labels.
func (m *Model) Net() *fcnet.FC { return m.net }

// FlattenedObsSize is the per-agent feature width fed to the trunk.
func (m *Model) FlattenedObsSize() int { return m.features }

// ActionSpace returns the per-dimension cardinalities of the policy's
// action space.
func (m *Model) ActionSpace() []int { return m.nvec }

// FastForwardMode reports whether per-agent selection is being skipped.
func (m *Model) FastForwardMode() bool { return m.fastForward }

// SetFastForwardMode turns on the fast path that skips per-agent row
// selection. It is only legal when a single policy with a discrete
// action space governs every agent, which makes the selection a no-op.
// The toggle is one-way and idempotent.
func (m *Model) SetFastForwardMode() {
	if m.fastForward {
		return
	}
	m.fastForward = true
	log.Printf("model %s (policy %s) turns on fast_forward_mode to speed up the forward "+
		"calculation: a single policy governs all agents, so the per-agent mapping is skipped", Name, m.policy)
}

// SetOutputEncoder attaches an encoder that observes every forward pass.
func (m *Model) SetOutputEncoder(enc OutputEncoder) { m.outEnc = enc }

// SwitchToInference rebuilds the forwarder from the current network
// weights. Call it after an external optimizer has stepped the
// parameters so forward passes see the new weights.
func (m *Model) SwitchToInference() error {
	if m.fwd != nil {
		if err := m.fwd.Close(); err != nil {
			return err
		}
	}
	fwd, err := fcnet.NewForwarder(m.net, false)
	if err != nil {
		return err
	}
	m.fwd = fwd
	return nil
}

// Forward runs one forward pass. When obs is nil the observations are
// retrieved from the data manager and assembled; when placeholders are
// shared across policies and fast-forward mode is off, only the rows of
// this policy's governed agents are fed to the trunk. A precomputed obs
// may be [num_envs, num_agents, features] or already flat.
//
// It returns one probability tensor [num_envs, num_agents, n_k] per
// action dimension, each row summing to 1, and the value estimates
// [num_envs, num_agents].
func (m *Model) Forward(obs *tensor.Dense) (probs []*tensor.Dense, values *tensor.Dense, err error) {
	agentIDs := m.mapping[m.policy]
	numEnvs := m.env.NumEnvs()
	numAgents := len(agentIDs)

	ip := obs
	if ip == nil {
		if ip, err = m.flattenedObs(); err != nil {
			return nil, nil, err
		}
		if !m.fastForward && !m.separatePlaceholders {
			if ip, err = selectAgents(ip, agentIDs); err != nil {
				return nil, nil, err
			}
			if m.actionMask != nil {
				if m.actionMask, err = selectAgents(m.actionMask, agentIDs); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	rows := numEnvs * numAgents
	if got := ip.Shape().TotalSize(); got != rows*m.features {
		return nil, nil, errors.Errorf("observation batch holds %d values, want %d ([%d, %d, %d])", got, rows*m.features, numEnvs, numAgents, m.features)
	}

	var maskData []float32
	if m.actionMask != nil {
		maskData = m.actionMask.Data().([]float32)
	}

	probs, flatValues, err := m.fwd.Forward(ip.Data().([]float32), maskData)
	if err != nil {
		return nil, nil, err
	}
	for k, p := range probs {
		if err = p.Reshape(numEnvs, numAgents, m.nvec[k]); err != nil {
			return nil, nil, errors.WithStack(err)
		}
	}
	if err = flatValues.Reshape(numEnvs, numAgents); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	m.step++
	if m.outEnc != nil {
		if err = m.outEnc.Encode(forwardState{policy: m.policy, step: m.step, probs: probs, values: flatValues}); err != nil {
			return nil, nil, errors.Wrap(err, "output encoder")
		}
	}
	return probs, flatValues, nil
}

// Close releases the forwarder's VM.
func (m *Model) Close() error {
	var allErrs manyErr
	if m.fwd != nil {
		if err := m.fwd.Close(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if m.outEnc != nil {
		if err := m.outEnc.Flush(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

type forwardState struct {
	policy string
	step   int
	probs  []*tensor.Dense
	values *tensor.Dense
}

func (f forwardState) Policy() string         { return f.policy }
func (f forwardState) Step() int              { return f.step }
func (f forwardState) Probs() []*tensor.Dense { return f.probs }
func (f forwardState) Values() *tensor.Dense  { return f.values }
