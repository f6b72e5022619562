package config

import (
	"fmt"
	"sort"
	"strings"
)

// Macro names understood by the WGSL pre-processor.
const (
	MacroSTFEnabled    = "STF_ENABLED"
	MacroSTFLoad       = "STF_LOAD"
	MacroUseRayQuery   = "USE_RAY_QUERY"
	MacroThreadSizeX   = "THREAD_SIZE_X"
	MacroThreadSizeY   = "THREAD_SIZE_Y"
	MacroMotionVectors = "MOTION_VECTORS"
	MacroAlphaTested   = "ALPHA_TESTED"
	MacroDoubleSided   = "DOUBLE_SIDED"
)

// MacroSet is a set of pre-processor defines. Its Key is stable regardless of insertion order.
type MacroSet map[string]string

// Key returns a canonical "NAME=value;..." string sorted by name.
func (m MacroSet) Key() string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%s=%s;", n, m[n])
	}
	return sb.String()
}

// With returns a copy of the set with name defined to value.
func (m MacroSet) With(name, value string) MacroSet {
	out := make(MacroSet, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[name] = value
	return out
}

// ShaderMacros derives the defines for the producer pipelines from the configuration.
func (c RenderConfiguration) ShaderMacros() MacroSet {
	x, y := c.EffectiveThreadGroup()
	stf := c.SamplerType.STFEnabled()
	return MacroSet{
		MacroSTFEnabled:    flag(stf),
		MacroSTFLoad:       flag(stf && c.STFLoad),
		MacroUseRayQuery:   flag(c.ProducerMode == ProducerCompute),
		MacroThreadSizeX:   fmt.Sprint(x),
		MacroThreadSizeY:   fmt.Sprint(y),
		MacroMotionVectors: "0",
		MacroAlphaTested:   "0",
		MacroDoubleSided:   "0",
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
