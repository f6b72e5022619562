package shader

import (
	"embed"
	"fmt"
	"maps"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
)

//go:embed assets/*.wgsl
var assetFS embed.FS

// ShaderType identifies the pipeline stage a shader's entry point belongs to.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment

	// ShaderTypeRayGen is a ray generation kernel launched once per pixel by a ray tracing pipeline.
	ShaderTypeRayGen
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	case ShaderTypeRayGen:
		return "raygen"
	default:
		return "compute"
	}
}

// Stage returns the binding visibility of the shader type.
func (t ShaderType) Stage() gpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return gpu.StageVertex
	case ShaderTypeFragment:
		return gpu.StageFragment
	case ShaderTypeRayGen:
		return gpu.StageRayTracing
	default:
		return gpu.StageCompute
	}
}

// shader is the implementation of the Shader interface.
// It holds all of the persistent shader data required for pipeline creation and resource binding.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	defines       map[string]string
	layouts       map[uint32]gpu.BindGroupLayout
	vertexLayouts []gpu.VertexBufferLayout
	structs       map[string]StructLayout
	workGroupSize [3]uint32
	entryPoint    string
	declarations  []Annotation
}

// Shader defines the interface for a pre-processed and reflected WGSL shader. It exposes the
// shader's key, final source, entry point, bind group layouts, vertex buffer layouts,
// struct layouts and workgroup size needed for pipeline creation and resource wiring.
type Shader interface {
	// Key retrieves the identifier the shader was created with.
	//
	// Returns:
	//   - string: the shader's key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code handed to the device
	Source() string

	// ShaderType returns the stage of the shader's entry point.
	//
	// Returns:
	//   - ShaderType: the shader type
	ShaderType() ShaderType

	// Defines returns a copy of the define set the source was pre-processed with.
	//
	// Returns:
	//   - map[string]string: define names to values
	Defines() map[string]string

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions for compute and ray generation shaders.
	// Returns [0, 0, 0] for raster shaders and [1, 1, 1] when @workgroup_size is not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// BindGroupLayout retrieves the reflected layout of a group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - gpu.BindGroupLayout: the layout of the group
	//   - bool: false if the shader declares nothing in that group
	BindGroupLayout(group uint32) (gpu.BindGroupLayout, bool)

	// BindGroupLayouts retrieves all reflected bind group layouts keyed by group index.
	//
	// Returns:
	//   - map[uint32]gpu.BindGroupLayout: the layouts
	BindGroupLayouts() map[uint32]gpu.BindGroupLayout

	// BindingFromName retrieves the binding index of a named resource variable.
	//
	// Parameters:
	//   - group: the bind group index
	//   - name: the WGSL variable name
	//
	// Returns:
	//   - uint32: the binding index
	//   - bool: true if the variable was found
	BindingFromName(group uint32, name string) (uint32, bool)

	// VertexLayouts retrieves the vertex buffer layouts of a vertex shader in declaration order.
	//
	// Returns:
	//   - []gpu.VertexBufferLayout: the layouts, nil for non-vertex shaders
	VertexLayouts() []gpu.VertexBufferLayout

	// StructLayout retrieves the reflected layout of a WGSL struct in the final source.
	//
	// Parameters:
	//   - name: the WGSL struct name
	//
	// Returns:
	//   - StructLayout: the reflected layout
	//   - bool: false if the struct is not declared or could not be resolved
	StructLayout(name string) (StructLayout, bool)

	// Declarations returns the @stf:group annotations expanded while pre-processing.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader pre-processes WGSL source against defines and reflects the result.
//
// Parameters:
//   - key: an identifier for the shader, used in labels and errors
//   - shaderType: the stage whose entry point is looked up
//   - source: the raw WGSL source
//   - defines: pre-processor defines, may be nil
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if pre-processing fails or the entry point is missing
func NewShader(key string, shaderType ShaderType, source string, defines map[string]string) (Shader, error) {
	if source == "" {
		return nil, fmt.Errorf("shader %s: empty source", key)
	}
	pp := NewPreProcessor(defines)
	processed, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: pre-process: %w", key, err)
	}

	s := &shader{
		key:          key,
		source:       processed,
		shaderType:   shaderType,
		defines:      maps.Clone(defines),
		declarations: append([]Annotation(nil), pp.Declarations()...),
	}
	if s.defines == nil {
		s.defines = map[string]string{}
	}

	s.entryPoint = parseEntryPoint(s.source, shaderType)
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %s: no %s entry point", key, shaderType)
	}

	s.structs = computeStructLayouts(parseStructBlocks(stripComments(s.source)))
	switch shaderType {
	case ShaderTypeVertex:
		s.vertexLayouts = parseVertexLayouts(s.source, s.entryPoint)
	case ShaderTypeCompute, ShaderTypeRayGen:
		s.workGroupSize = parseWorkgroupSize(s.source)
	}
	s.layouts = parseBindGroupLayouts(s.source, shaderType.Stage(), typeLayouts(s.structs))
	return s, nil
}

// Load reads an embedded shader asset and creates a Shader from it.
//
// Parameters:
//   - key: an identifier for the shader
//   - shaderType: the stage whose entry point is looked up
//   - asset: the file name under assets/, e.g. "gbuffer.wgsl"
//   - defines: pre-processor defines, may be nil
//
// Returns:
//   - Shader: the reflected shader
//   - error: an error if the asset is missing or invalid
func Load(key string, shaderType ShaderType, asset string, defines map[string]string) (Shader, error) {
	data, err := assetFS.ReadFile("assets/" + asset)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return NewShader(key, shaderType, string(data), defines)
}

// ReflectInclude reflects the struct layouts declared by a registered include.
// Host-side twins of shader structs check their encoded size against it.
func ReflectInclude(key AnnotationArg) (map[string]StructLayout, error) {
	src, err := IncludeSource(key)
	if err != nil {
		return nil, err
	}
	// includes may pull in other includes, expand them first
	processed, err := NewPreProcessor(nil).Process(src)
	if err != nil {
		return nil, fmt.Errorf("shader: include %s: %w", key, err)
	}
	return computeStructLayouts(parseStructBlocks(stripComments(processed))), nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) Defines() map[string]string {
	return maps.Clone(s.defines)
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayout(group uint32) (gpu.BindGroupLayout, bool) {
	l, ok := s.layouts[group]
	return l, ok
}

func (s *shader) BindGroupLayouts() map[uint32]gpu.BindGroupLayout {
	return s.layouts
}

func (s *shader) BindingFromName(group uint32, name string) (uint32, bool) {
	for _, e := range s.layouts[group].Entries {
		if e.Name == name {
			return e.Binding, true
		}
	}
	return 0, false
}

func (s *shader) VertexLayouts() []gpu.VertexBufferLayout {
	return s.vertexLayouts
}

func (s *shader) StructLayout(name string) (StructLayout, bool) {
	l, ok := s.structs[name]
	return l, ok
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
