package temporal

import "github.com/Carmen-Shannon/oxy-stf/common"

// AccumulatorBuilderOption is a functional option used to configure an Accumulator during construction.
type AccumulatorBuilderOption func(*accumulator)

// WithBlendFactor sets the weight of the current frame in the resolve.
//
// Parameters:
//   - f: the weight in (0, 1]; 1 disables accumulation
//
// Returns:
//   - AccumulatorBuilderOption: a function that sets the blend factor
func WithBlendFactor(f float32) AccumulatorBuilderOption {
	return func(a *accumulator) {
		if f > 0 {
			a.blendFactor = common.Clamp(f, 0, 1)
		}
	}
}

// WithJitterPhases sets the length of the jitter cycle.
//
// Parameters:
//   - n: the number of distinct offsets before the sequence repeats
//
// Returns:
//   - AccumulatorBuilderOption: a function that sets the cycle length
func WithJitterPhases(n uint32) AccumulatorBuilderOption {
	return func(a *accumulator) {
		if n > 0 {
			a.phases = n
		}
	}
}

// WithPhase starts the jitter cycle at phase instead of 0. The orchestrator passes the
// previous accumulator's phase when it recreates one.
func WithPhase(phase uint32) AccumulatorBuilderOption {
	return func(a *accumulator) {
		a.phase = phase
	}
}
