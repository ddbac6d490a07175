// Package spaces describes the observation and action spaces of a
// multi-agent environment as closed sets of variants. Anything outside
// {Box, Dict} for observations and {Discrete, MultiDiscrete} for actions
// is unrepresentable, so space-kind dispatch is exhaustive at compile time.
package spaces

// ActionMask is the reserved Dict key holding per-agent action masks.
// Its entry never contributes to the flattened feature width.
const ActionMask = "action_mask"

// Space is an observation space descriptor. It is a sealed interface:
// the only implementations are Box and Dict.
type Space interface {
	isSpace()
}

// Box is a single contiguous block of features with a fixed per-agent shape.
type Box struct {
	Shape []int
}

func (Box) isSpace() {}

// Size is the number of scalar features in one agent's block.
func (b Box) Size() int { return prod(b.Shape) }

// Dict is an ordered mapping of named feature blocks. Iteration order is
// the order entries were given at construction, which also fixes the
// concatenation order of the flattened features.
type Dict struct {
	keys  []string
	boxes map[string]Box
}

func (Dict) isSpace() {}

// Entry names one sub-block of a Dict space.
type Entry struct {
	Key string
	Box Box
}

// NewDict builds a Dict space preserving the entry order.
func NewDict(entries ...Entry) Dict {
	d := Dict{
		keys:  make([]string, 0, len(entries)),
		boxes: make(map[string]Box, len(entries)),
	}
	for _, e := range entries {
		if _, ok := d.boxes[e.Key]; !ok {
			d.keys = append(d.keys, e.Key)
		}
		d.boxes[e.Key] = e.Box
	}
	return d
}

// Keys returns the entry names in iteration order.
func (d Dict) Keys() []string { return d.keys }

// Get returns the sub-block named by key.
func (d Dict) Get(key string) (Box, bool) {
	b, ok := d.boxes[key]
	return b, ok
}

// HasMask reports whether the reserved action-mask entry is present.
func (d Dict) HasMask() bool {
	_, ok := d.boxes[ActionMask]
	return ok
}

// FlattenedSize computes the per-agent feature width of a space: the
// product of the shape for a Box, or the sum of products over all Dict
// entries except the reserved action-mask entry.
func FlattenedSize(s Space) int {
	switch s := s.(type) {
	case Box:
		return s.Size()
	case Dict:
		var size int
		for _, key := range s.keys {
			if key == ActionMask {
				continue
			}
			size += s.boxes[key].Size()
		}
		return size
	}
	panic("spaces: nil Space")
}

// ActionSpace is an action space descriptor. It is a sealed interface:
// the only implementations are Discrete and MultiDiscrete.
type ActionSpace interface {
	isActionSpace()

	// Nvec returns the per-action-dimension cardinalities. A Discrete
	// space is a single dimension.
	Nvec() []int
}

// Discrete is a single action dimension with n choices.
type Discrete int

func (Discrete) isActionSpace() {}

func (d Discrete) Nvec() []int { return []int{int(d)} }

// MultiDiscrete is a fixed sequence of action dimensions, one cardinality each.
type MultiDiscrete []int

func (MultiDiscrete) isActionSpace() {}

func (m MultiDiscrete) Nvec() []int { return []int(m) }

func prod(dims []int) int {
	retVal := 1
	for _, d := range dims {
		retVal *= d
	}
	return retVal
}
