package fcnet

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the layer-level dataflow of the network as a graphviz
// document: trunk layers in sequence, then the policy heads and the
// value head fanning out, with mask inputs feeding their heads.
func (d *FC) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("FC"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	addNode := func(name, label, shape string) {
		g.AddNode("FC", name, map[string]string{
			"label": fmt.Sprintf(`"%s"`, label),
			"shape": shape,
		})
	}

	addNode("obs", fmt.Sprintf("Obs [%d, %d]", d.BatchSize, d.Features), "box")
	prev := "obs"
	for i, width := range d.FCDims {
		name := fmt.Sprintf("fc%d", i)
		addNode(name, fmt.Sprintf("FC%d ReLU [%d]", i, width), "ellipse")
		g.AddEdge(prev, name, true, nil)
		prev = name
	}

	for k, n := range d.ActionSpace {
		head := fmt.Sprintf("policy%d", k)
		addNode(head, fmt.Sprintf("Policy%d softmax [%d]", k, n), "ellipse")
		g.AddEdge(prev, head, true, nil)
		if d.MaskWidth > 0 {
			mask := fmt.Sprintf("mask%d", k)
			addNode(mask, fmt.Sprintf("ActionMask%d [%d, %d]", k, d.BatchSize, n), "box")
			g.AddEdge(mask, head, true, nil)
		}
	}

	addNode("value", "Value [1]", "ellipse")
	g.AddEdge(prev, "value", true, nil)

	return g.String()
}
