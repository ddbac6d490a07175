// Command warpnet-demo wires a Model against an in-memory environment and
// data manager filled with random observations, runs a few forward passes
// and writes the policy distributions out as a heatmap GIF.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/warpdrive/warpnet"
	"github.com/warpdrive/warpnet/spaces"
	"github.com/warpdrive/warpnet/viz"
	"gorgonia.org/tensor"
)

const (
	numEnvs   = 4
	numAgents = 5
)

type demoEnv struct{}

func (demoEnv) ObservationSpace(agentID int) spaces.Space {
	return spaces.NewDict(
		spaces.Entry{Key: "location", Box: spaces.Box{Shape: []int{2}}},
		spaces.Entry{Key: spaces.ActionMask, Box: spaces.Box{Shape: []int{7}}},
		spaces.Entry{Key: "energy", Box: spaces.Box{Shape: []int{3}}},
	)
}

func (demoEnv) ActionSpace(agentID int) spaces.ActionSpace {
	return spaces.MultiDiscrete{4, 3}
}

func (demoEnv) NumAgents() int { return numAgents }
func (demoEnv) NumEnvs() int   { return numEnvs }

// demoDataManager fabricates buffers on demand instead of reading them
// off a device.
type demoDataManager struct {
	rnd *rand.Rand
}

func (dm demoDataManager) Get(name string) (*tensor.Dense, error) {
	var width int
	switch name {
	case "observations_location":
		width = 2
	case "observations_energy":
		width = 3
	case "observations_action_mask":
		width = 7
	default:
		return nil, fmt.Errorf("no buffer named %q", name)
	}
	backing := make([]float32, numEnvs*numAgents*width)
	for i := range backing {
		backing[i] = float32(dm.rnd.NormFloat64())
	}
	if name == "observations_action_mask" {
		for i := range backing {
			backing[i] = float32(dm.rnd.Intn(2))
		}
	}
	return tensor.New(tensor.WithShape(numEnvs, numAgents, width), tensor.WithBacking(backing)), nil
}

func main() {
	env := demoEnv{}
	dm := demoDataManager{rnd: rand.New(rand.NewSource(1337))}
	mapping := warpnet.PolicyMapping{"runner": {0, 1, 2, 3, 4}}

	model, err := warpnet.New(env, dm, warpnet.ModelConfig{FCDims: []int{32, 32}}, "runner", mapping, false, warpnet.AgentDimFirst)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer model.Close()

	f, err := os.Create("policy.gif")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	model.SetOutputEncoder(viz.NewEncoder(f))

	for i := 0; i < 8; i++ {
		probs, values, err := model.Forward(nil)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		fmt.Printf("step %d: value[0,0]=%1.3f\n", i, values.Data().([]float32)[0])
		for k, p := range probs {
			fmt.Printf("  head %d %v, first row %1.3v\n", k, p.Shape(), p.Data().([]float32)[:p.Shape()[2]])
		}
	}

	fmt.Println(model.Net().ToDot())
}
