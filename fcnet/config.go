package fcnet

// Config configures the fully connected policy/value network.
type Config struct {
	FCDims   []int // hidden layer widths of the shared trunk
	Features int   // flattened per-agent observation width

	// BatchSize is the number of rows fed per forward pass,
	// i.e. num_envs * num_agents governed by this policy.
	BatchSize int

	// ActionSpace holds one cardinality per action dimension.
	ActionSpace []int

	// MaskWidth is the per-row width of the action mask, or 0 when the
	// observation space carries no mask. It must equal either the sum of
	// all head cardinalities (sliced per head) or the width of every
	// head (the same mask applied to each).
	MaskWidth int

	FwdOnly bool // is this a fwd only graph?
}

// DefaultConf is a reasonable starting configuration for the given
// observation width and action space.
func DefaultConf(features int, actionSpace ...int) Config {
	return Config{
		FCDims:      []int{64, 64},
		Features:    features,
		BatchSize:   1,
		ActionSpace: actionSpace,
	}
}

func (conf Config) IsValid() bool {
	return len(conf.FCDims) >= 1 &&
		minInt(conf.FCDims) >= 1 &&
		conf.Features >= 1 &&
		conf.BatchSize >= 1 &&
		len(conf.ActionSpace) >= 1 &&
		minInt(conf.ActionSpace) >= 2 &&
		conf.maskWidthValid()
}

func (conf Config) maskWidthValid() bool {
	if conf.MaskWidth == 0 {
		return true
	}
	if conf.MaskWidth == conf.totalActions() {
		return true
	}
	for _, n := range conf.ActionSpace {
		if n != conf.MaskWidth {
			return false
		}
	}
	return true
}

func (conf Config) totalActions() int {
	var total int
	for _, n := range conf.ActionSpace {
		total += n
	}
	return total
}

// maskOffset is the column in the mask backing where head k's slice
// starts. When the mask is shared across heads the offset is always 0.
func (conf Config) maskOffset(k int) int {
	if conf.MaskWidth != conf.totalActions() {
		return 0
	}
	var off int
	for i := 0; i < k; i++ {
		off += conf.ActionSpace[i]
	}
	return off
}

func minInt(xs []int) int {
	retVal := xs[0]
	for _, x := range xs[1:] {
		if x < retVal {
			retVal = x
		}
	}
	return retVal
}
