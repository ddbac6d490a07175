package warpnet

import (
	"io"

	"github.com/warpdrive/warpnet/spaces"
	"gorgonia.org/tensor"
)

// Observations is the base name of the observation buffers held by the
// data manager. Depending on the placeholder mode the full buffer name
// is "observations", "observations_<policy>", "observations_<key>" or
// "observations_<policy>_<key>".
const Observations = "observations"

// AgentDim says which dimension of a raw observation buffer indexes the
// agents: the one right after the environment dimension, or the last one.
type AgentDim byte

const (
	AgentDimFirst AgentDim = iota
	AgentDimLast
)

func (a AgentDim) IsValid() bool { return a == AgentDimFirst || a == AgentDimLast }

func (a AgentDim) String() string {
	switch a {
	case AgentDimFirst:
		return "first"
	case AgentDimLast:
		return "last"
	}
	return "invalid"
}

// DataManager hands out device-resident simulation buffers by name. It is
// an injected handle to the external GPU data store; the model never
// reaches for a global.
type DataManager interface {
	Get(name string) (*tensor.Dense, error)
}

// Env exposes the per-agent space descriptors and the batch geometry of
// the environment the model is built against.
type Env interface {
	ObservationSpace(agentID int) spaces.Space
	ActionSpace(agentID int) spaces.ActionSpace
	NumAgents() int
	NumEnvs() int
}

// PolicyMapping maps a policy tag to the ordered agent ids it governs.
// Every agent belongs to exactly one policy's list when policies share
// observation placeholders.
type PolicyMapping map[string][]int

// ModelConfig carries the model hyperparameters. FCDims is the width of
// each trunk layer, in order.
type ModelConfig struct {
	FCDims []int
}

// Forwarder is anything that can run a forward pass over a batch of
// flattened observations.
type Forwarder interface {
	Forward(obs, mask []float32) (probs []*tensor.Dense, values *tensor.Dense, err error)
	io.Closer
}

// ExecLogger is anything that can return the execution log.
type ExecLogger interface {
	ExecLog() string
}

// ForwardState is what an OutputEncoder sees after a forward pass.
type ForwardState interface {
	Policy() string
	Step() int
	Probs() []*tensor.Dense
	Values() *tensor.Dense
}

// OutputEncoder encodes successive forward states as whatever.
//
// An example OutputEncoder is the viz heatmap GIF encoder. Another
// example would be a logger.
type OutputEncoder interface {
	Encode(fs ForwardState) error
	Flush() error
}
