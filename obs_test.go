package warpnet

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warpdrive/warpnet/spaces"
	"gorgonia.org/tensor"
)

type fakeEnv struct {
	obs    spaces.Space
	act    spaces.ActionSpace
	agents int
	envs   int
}

func (e fakeEnv) ObservationSpace(agentID int) spaces.Space  { return e.obs }
func (e fakeEnv) ActionSpace(agentID int) spaces.ActionSpace { return e.act }
func (e fakeEnv) NumAgents() int                             { return e.agents }
func (e fakeEnv) NumEnvs() int                               { return e.envs }

type fakeDM struct {
	buffers   map[string]*tensor.Dense
	requested []string
}

func (dm *fakeDM) Get(name string) (*tensor.Dense, error) {
	dm.requested = append(dm.requested, name)
	b, ok := dm.buffers[name]
	if !ok {
		return nil, errors.Errorf("no buffer named %q", name)
	}
	return b, nil
}

func arange(n int) []float32 {
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = float32(i)
	}
	return retVal
}

func constant(n int, v float32) []float32 {
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = v
	}
	return retVal
}

// stripped-down model for exercising the observation plumbing without a
// network behind it
func obsModel(env Env, dm DataManager, obsSpace spaces.Space, agentDim AgentDim, separate bool, policy string, mapping PolicyMapping) *Model {
	return &Model{
		env:                  env,
		dm:                   dm,
		policy:               policy,
		mapping:              mapping,
		separatePlaceholders: separate,
		agentDim:             agentDim,
		obsSpace:             obsSpace,
	}
}

func TestBufferNames(t *testing.T) {
	env := fakeEnv{agents: 2, envs: 1}
	assert := assert.New(t)

	m := obsModel(env, nil, spaces.Box{Shape: []int{3}}, AgentDimFirst, false, "runner", nil)
	assert.Equal("observations", m.bufferName(""))

	m = obsModel(env, nil, spaces.Box{Shape: []int{3}}, AgentDimFirst, true, "runner", nil)
	assert.Equal("observations_runner", m.bufferName(""))

	m = obsModel(env, nil, nil, AgentDimFirst, false, "runner", nil)
	assert.Equal("observations_location", m.bufferName("location"))

	m = obsModel(env, nil, nil, AgentDimFirst, true, "tagger", nil)
	assert.Equal("observations_tagger_location", m.bufferName("location"))
}

func TestReshapeAndFlattenAgentsFirst(t *testing.T) {
	env := fakeEnv{agents: 3, envs: 2}
	m := obsModel(env, nil, nil, AgentDimFirst, false, "p", PolicyMapping{"p": {0, 1, 2}})

	in := tensor.New(tensor.WithShape(2, 3, 2, 2), tensor.WithBacking(arange(24)))
	out, err := m.reshapeAndFlattenObs(in)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, []int(out.Shape()))
	// agents-first data is already laid out correctly; flattening keeps the order
	assert.Equal(t, arange(24), out.Data().([]float32))
}

func TestReshapeAndFlattenAgentsLast(t *testing.T) {
	env := fakeEnv{agents: 3, envs: 2}
	m := obsModel(env, nil, nil, AgentDimLast, false, "p", PolicyMapping{"p": {0, 1, 2}})

	// [E, F, N] = [2, 2, 3], agent dimension last
	in := tensor.New(tensor.WithShape(2, 2, 3), tensor.WithBacking(arange(12)))
	out, err := m.reshapeAndFlattenObs(in)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 2}, []int(out.Shape()))

	// out[e, n, f] must equal in[e, f, n]
	for e := 0; e < 2; e++ {
		for n := 0; n < 3; n++ {
			for f := 0; f < 2; f++ {
				got, err := out.At(e, n, f)
				require.NoError(t, err)
				want := float32(e*6 + f*3 + n)
				assert.Equal(t, want, got, "out[%d,%d,%d]", e, n, f)
			}
		}
	}
}

func TestReshapeAndFlattenRank1(t *testing.T) {
	env := fakeEnv{agents: 1, envs: 4}
	m := obsModel(env, nil, nil, AgentDimLast, false, "p", PolicyMapping{"p": {0}})

	in := tensor.New(tensor.WithShape(4), tensor.WithBacking(arange(4)))
	out, err := m.reshapeAndFlattenObs(in)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1, 1}, []int(out.Shape()))
}

func TestReshapeAndFlattenRank1MultiAgent(t *testing.T) {
	env := fakeEnv{agents: 3, envs: 1}
	m := obsModel(env, nil, nil, AgentDimLast, false, "p", PolicyMapping{"p": {0, 1, 2}})

	in := tensor.New(tensor.WithShape(3), tensor.WithBacking(arange(3)))
	_, err := m.reshapeAndFlattenObs(in)
	assert.Error(t, err, "a rank-1 buffer with more than one agent is ambiguous")
}

func TestReshapeAndFlattenBadAgentDim(t *testing.T) {
	env := fakeEnv{agents: 1, envs: 1}
	m := obsModel(env, nil, nil, AgentDim(9), false, "p", PolicyMapping{"p": {0}})

	in := tensor.New(tensor.WithShape(1, 1, 2), tensor.WithBacking(arange(2)))
	_, err := m.reshapeAndFlattenObs(in)
	assert.Error(t, err)
}

func TestFlattenedObsDict(t *testing.T) {
	const E, N = 2, 2
	obsSpace := spaces.NewDict(
		spaces.Entry{Key: "a", Box: spaces.Box{Shape: []int{3}}},
		spaces.Entry{Key: spaces.ActionMask, Box: spaces.Box{Shape: []int{2}}},
		spaces.Entry{Key: "b", Box: spaces.Box{Shape: []int{4}}},
	)
	dm := &fakeDM{buffers: map[string]*tensor.Dense{
		"observations_a":           tensor.New(tensor.WithShape(E, N, 3), tensor.WithBacking(constant(E*N*3, 1))),
		"observations_action_mask": tensor.New(tensor.WithShape(E, N, 2), tensor.WithBacking(constant(E*N*2, 0))),
		"observations_b":           tensor.New(tensor.WithShape(E, N, 4), tensor.WithBacking(constant(E*N*4, 2))),
	}}
	env := fakeEnv{agents: N, envs: E}
	m := obsModel(env, dm, obsSpace, AgentDimFirst, false, "p", PolicyMapping{"p": {0, 1}})

	flat, err := m.flattenedObs()
	require.NoError(t, err)
	require.Equal(t, []int{E, N, 7}, []int(flat.Shape()))

	// concatenation follows dict order: "a" columns first, then "b"
	for e := 0; e < E; e++ {
		for n := 0; n < N; n++ {
			for f := 0; f < 7; f++ {
				got, err := flat.At(e, n, f)
				require.NoError(t, err)
				want := float32(1)
				if f >= 3 {
					want = 2
				}
				assert.Equal(t, want, got, "flat[%d,%d,%d]", e, n, f)
			}
		}
	}

	// mask was split out, flattened and stored
	require.NotNil(t, m.actionMask)
	assert.Equal(t, []int{E, N, 2}, []int(m.actionMask.Shape()))

	sort.Strings(dm.requested)
	assert.Equal(t, []string{"observations_a", "observations_action_mask", "observations_b"}, dm.requested)
}

func TestFlattenedObsBox(t *testing.T) {
	const E, N = 2, 3
	dm := &fakeDM{buffers: map[string]*tensor.Dense{
		"observations": tensor.New(tensor.WithShape(E, N, 5), tensor.WithBacking(arange(E * N * 5))),
	}}
	env := fakeEnv{agents: N, envs: E}
	m := obsModel(env, dm, spaces.Box{Shape: []int{5}}, AgentDimFirst, false, "p", PolicyMapping{"p": {0, 1, 2}})

	flat, err := m.flattenedObs()
	require.NoError(t, err)
	assert.Equal(t, []int{E, N, 5}, []int(flat.Shape()))
	assert.Nil(t, m.actionMask)
	assert.Equal(t, []string{"observations"}, dm.requested)
}

func TestSelectAgents(t *testing.T) {
	// [E, A, F] = [2, 4, 2]
	in := tensor.New(tensor.WithShape(2, 4, 2), tensor.WithBacking(arange(16)))
	out, err := selectAgents(in, []int{3, 1})
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 2}, []int(out.Shape()))

	// rows keep the requested order: agent 3 then agent 1
	assert.Equal(t, []float32{6, 7, 2, 3, 14, 15, 10, 11}, out.Data().([]float32))
}

func TestSelectAgentsSingle(t *testing.T) {
	in := tensor.New(tensor.WithShape(2, 3, 2), tensor.WithBacking(arange(12)))
	out, err := selectAgents(in, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, []int(out.Shape()))
	assert.Equal(t, []float32{2, 3, 8, 9}, out.Data().([]float32))
}
