package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-stf/engine/config"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/shader"
)

// ErrMissingShader is returned when a pipeline is created without the shader its type requires.
var ErrMissingShader = errors.New("pipeline: missing shader")

// PipelineType identifies whether a pipeline is a compute, render or ray tracing pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with a vertex and an optional fragment entry point.
	PipelineTypeRender

	// PipelineTypeRayTracing indicates a ray tracing pipeline launched per pixel from a ray generation entry point.
	PipelineTypeRayTracing
)

func (t PipelineType) String() string {
	switch t {
	case PipelineTypeRender:
		return "render"
	case PipelineTypeRayTracing:
		return "raytracing"
	default:
		return "compute"
	}
}

// pipeline is the implementation of the Pipeline interface.
// It holds the backend pipeline object and the state the backend needs to create it.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute, render or ray tracing
	pipelineType PipelineType
	// pipelineKey is the name of the pipeline, combined with the define set for cache lookups
	pipelineKey string
	// defines is the macro set every shader of the pipeline was pre-processed with
	defines config.MacroSet

	vertexShader, fragmentShader, computeShader, rayGenShader shader.Shader

	// handle is the backend object set by the renderer once the pipeline is compiled
	handle any

	// layouts is the union of the bind group layouts of every attached shader
	layouts map[uint32]gpu.BindGroupLayout

	// The following properties only apply to render pipelines.
	depthFormat         gpu.TextureFormat
	depthCompare        gpu.CompareFunction
	depthWriteEnabled   bool
	depthBias           int32
	depthBiasSlopeScale float32
	cullMode            gpu.CullMode
	topology            gpu.Topology
	colorFormats        []gpu.TextureFormat
}

// Pipeline defines the interface for a GPU pipeline, encapsulating a render pipeline
// (vertex + optional fragment shader), a compute pipeline or a ray tracing pipeline. It holds
// the configuration state required for creation and the merged bind group layouts used to
// build resource bindings against it.
type Pipeline interface {
	// Type returns the type of the pipeline.
	//
	// Returns:
	//   - PipelineType: the type of the pipeline
	Type() PipelineType

	// PipelineKey returns the name the pipeline was created with.
	//
	// Returns:
	//   - string: the pipeline name
	PipelineKey() string

	// Defines returns the macro set the pipeline's shaders were pre-processed with.
	//
	// Returns:
	//   - config.MacroSet: the define set, never nil
	Defines() config.MacroSet

	// Shader retrieves the shader attached for the specified stage.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve
	//
	// Returns:
	//   - shader.Shader: the shader for that stage, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Handle returns the backend pipeline object. The caller type asserts it to the backend's type.
	//
	// Returns:
	//   - any: the backend object, nil until the pipeline is compiled
	Handle() any

	// SetHandle stores the backend pipeline object. Called by the renderer when compiling.
	//
	// Parameters:
	//   - h: the backend object, nil once released
	SetHandle(h any)

	// BindGroupLayouts returns the union of every attached shader's layouts keyed by group.
	// Bindings declared by more than one stage carry the combined visibility.
	//
	// Returns:
	//   - map[uint32]gpu.BindGroupLayout: the merged layouts
	BindGroupLayouts() map[uint32]gpu.BindGroupLayout

	// BindGroupLayout returns the merged layout of a single group.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - gpu.BindGroupLayout: the merged layout
	//   - bool: false if no attached shader declares the group
	BindGroupLayout(group uint32) (gpu.BindGroupLayout, bool)

	// WorkgroupSize returns the workgroup size of the compute or ray generation shader.
	//
	// Returns:
	//   - [3]uint32: the workgroup size, zero for render pipelines
	WorkgroupSize() [3]uint32

	// DepthTestEnabled reports whether the pipeline has a depth attachment.
	DepthTestEnabled() bool

	// DepthWriteEnabled reports whether the pipeline writes depth.
	DepthWriteEnabled() bool

	// DepthFormat returns the depth attachment format, FormatUndefined without one.
	DepthFormat() gpu.TextureFormat

	// DepthCompare returns the depth comparison function.
	DepthCompare() gpu.CompareFunction

	// DepthBias returns the constant depth bias.
	DepthBias() int32

	// DepthBiasSlopeScale returns the slope scaled depth bias.
	DepthBiasSlopeScale() float32

	// CullMode returns which triangle faces are culled.
	CullMode() gpu.CullMode

	// Topology returns the primitive topology.
	Topology() gpu.Topology

	// ColorFormats returns the formats of the color attachments in location order.
	ColorFormats() []gpu.TextureFormat
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a new Pipeline with the provided options.
//
// Parameters:
//   - pipelineKey: the name of the pipeline, used in labels and cache keys
//   - pipelineType: the type of the pipeline
//   - opts: the builder options that attach shaders and configure render state
//
// Returns:
//   - Pipeline: the configured pipeline, not yet compiled
//   - error: ErrMissingShader if a required stage is absent, or an error if two stages disagree on a binding
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) (Pipeline, error) {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		defines:      config.MacroSet{},
		depthCompare: gpu.CompareAlways,
		cullMode:     gpu.CullNone,
		topology:     gpu.TopologyTriangleList,
	}
	for _, opt := range opts {
		opt(p)
	}

	var stages []shader.Shader
	switch pipelineType {
	case PipelineTypeRender:
		if p.vertexShader == nil {
			return nil, fmt.Errorf("%w: render pipeline %s has no vertex shader", ErrMissingShader, pipelineKey)
		}
		if p.fragmentShader == nil && len(p.colorFormats) > 0 {
			return nil, fmt.Errorf("%w: render pipeline %s has color targets but no fragment shader", ErrMissingShader, pipelineKey)
		}
		stages = []shader.Shader{p.vertexShader, p.fragmentShader}
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return nil, fmt.Errorf("%w: compute pipeline %s has no compute shader", ErrMissingShader, pipelineKey)
		}
		stages = []shader.Shader{p.computeShader}
	case PipelineTypeRayTracing:
		if p.rayGenShader == nil {
			return nil, fmt.Errorf("%w: ray tracing pipeline %s has no ray generation shader", ErrMissingShader, pipelineKey)
		}
		stages = []shader.Shader{p.rayGenShader}
	default:
		return nil, fmt.Errorf("pipeline %s: unknown type %d", pipelineKey, pipelineType)
	}

	layouts, err := mergeLayouts(stages)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pipelineKey, err)
	}
	p.layouts = layouts
	return p, nil
}

// mergeLayouts unions the bind group layouts of the given shaders. A binding declared by
// several stages must have the same kind in each; its visibility becomes the union and a
// texture sampled with filtering by any stage stays filterable.
func mergeLayouts(stages []shader.Shader) (map[uint32]gpu.BindGroupLayout, error) {
	merged := make(map[uint32]map[uint32]gpu.BindingLayoutEntry)
	for _, s := range stages {
		if s == nil {
			continue
		}
		for group, layout := range s.BindGroupLayouts() {
			entries, ok := merged[group]
			if !ok {
				entries = make(map[uint32]gpu.BindingLayoutEntry)
				merged[group] = entries
			}
			for _, e := range layout.Entries {
				existing, ok := entries[e.Binding]
				if !ok {
					entries[e.Binding] = e
					continue
				}
				if existing.Kind != e.Kind {
					return nil, fmt.Errorf("group %d binding %d declared as different resource kinds by %s", group, e.Binding, s.Key())
				}
				existing.Visibility |= e.Visibility
				existing.MinBindingSize = max(existing.MinBindingSize, e.MinBindingSize)
				if e.SampleType == gpu.SampleFloat {
					existing.SampleType = gpu.SampleFloat
				}
				entries[e.Binding] = existing
			}
		}
	}

	result := make(map[uint32]gpu.BindGroupLayout, len(merged))
	for group, entries := range merged {
		list := make([]gpu.BindingLayoutEntry, 0, len(entries))
		for _, e := range entries {
			list = append(list, e)
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].Binding < list[j].Binding
		})
		result[group] = gpu.BindGroupLayout{Group: group, Entries: list}
	}
	return result, nil
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Defines() config.MacroSet {
	return p.defines
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	case shader.ShaderTypeRayGen:
		return p.rayGenShader
	default:
		return nil
	}
}

func (p *pipeline) Handle() any {
	return p.handle
}

func (p *pipeline) SetHandle(h any) {
	p.handle = h
}

func (p *pipeline) BindGroupLayouts() map[uint32]gpu.BindGroupLayout {
	return p.layouts
}

func (p *pipeline) BindGroupLayout(group uint32) (gpu.BindGroupLayout, bool) {
	l, ok := p.layouts[group]
	return l, ok
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	switch p.pipelineType {
	case PipelineTypeCompute:
		return p.computeShader.WorkgroupSize()
	case PipelineTypeRayTracing:
		return p.rayGenShader.WorkgroupSize()
	default:
		return [3]uint32{}
	}
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthFormat != gpu.FormatUndefined
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthFormat() gpu.TextureFormat {
	return p.depthFormat
}

func (p *pipeline) DepthCompare() gpu.CompareFunction {
	return p.depthCompare
}

func (p *pipeline) DepthBias() int32 {
	return p.depthBias
}

func (p *pipeline) DepthBiasSlopeScale() float32 {
	return p.depthBiasSlopeScale
}

func (p *pipeline) CullMode() gpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() gpu.Topology {
	return p.topology
}

func (p *pipeline) ColorFormats() []gpu.TextureFormat {
	return p.colorFormats
}
