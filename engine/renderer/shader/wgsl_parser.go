package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {gpu.VertexFloat32, 4},
	"vec2f":     {gpu.VertexFloat32x2, 8},
	"vec2<f32>": {gpu.VertexFloat32x2, 8},
	"vec3f":     {gpu.VertexFloat32x3, 12},
	"vec3<f32>": {gpu.VertexFloat32x3, 12},
	"vec4f":     {gpu.VertexFloat32x4, 16},
	"vec4<f32>": {gpu.VertexFloat32x4, 16},
	"u32":       {gpu.VertexUint32, 4},
	"vec4u":     {gpu.VertexUint32x4, 16},
	"vec4<u32>": {gpu.VertexUint32x4, 16},
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their texture sample type
var wgslSampleTypeMap = map[string]gpu.SampleType{
	"f32": gpu.SampleFloat,
	"i32": gpu.SampleSint,
	"u32": gpu.SampleUint,
}

// wgslStorageAccessMap maps WGSL access mode keywords to their storage texture access
var wgslStorageAccessMap = map[string]gpu.StorageAccess{
	"write":      gpu.AccessWriteOnly,
	"read":       gpu.AccessReadOnly,
	"read_write": gpu.AccessReadWrite,
}

// wgslTexelFormatMap maps WGSL texel format strings to the texture formats the renderer allocates.
var wgslTexelFormatMap = map[string]gpu.TextureFormat{
	"rgba8unorm":  gpu.FormatRGBA8Unorm,
	"rgba16float": gpu.FormatRGBA16Float,
	"r32uint":     gpu.FormatR32Uint,
	"r32float":    gpu.FormatR32Float,
	"rgba32float": gpu.FormatRGBA32Float,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> frame: LightingConstants;
	// or handle types: @group(1) @binding(3) var albedo: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseVertexLayouts extracts vertex buffer layouts from WGSL source code.
// It finds the structs taken as parameters by the vertex entry point that are pure vertex
// inputs (have @location attributes but no @builtin fields) and converts them into
// gpu.VertexBufferLayout entries in parameter order. Structs containing types that cannot
// be vertex attributes are skipped.
//
// Parameters:
//   - source: the pre-processed WGSL source code string
//   - entryPoint: the vertex entry point name
//
// Returns:
//   - []gpu.VertexBufferLayout: one layout per vertex input struct
func parseVertexLayouts(source, entryPoint string) []gpu.VertexBufferLayout {
	cleaned := stripComments(source)
	byName := make(map[string]parsedStruct)
	for _, ps := range parseStructBlocks(cleaned) {
		byName[ps.name] = ps
	}

	var result []gpu.VertexBufferLayout
	for _, typeName := range entryParamTypes(cleaned, entryPoint) {
		ps, ok := byName[typeName]
		if !ok || !isVertexInputStruct(ps) {
			continue
		}
		if layout, ok := buildVertexBufferLayout(ps); ok {
			result = append(result, layout)
		}
	}
	return result
}

// entryParamTypes returns the parameter types of function name in declaration order.
func entryParamTypes(source, name string) []string {
	loc := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(name) + `\s*\(`).FindStringIndex(source)
	if loc == nil {
		return nil
	}
	depth := 1
	start := loc[1]
	end := start
	for end < len(source) && depth > 0 {
		switch source[end] {
		case '(':
			depth++
		case ')':
			depth--
		}
		end++
	}
	params := source[start : end-1]

	var types []string
	for _, param := range splitAtTopLevelCommas(params) {
		if fm := fieldRegex.FindStringSubmatch(strings.TrimSpace(param)); fm != nil {
			types = append(types, strings.TrimSpace(fm[2]))
		}
	}
	return types
}

// parseBindGroupLayouts extracts all @group(N) @binding(M) resource declarations from WGSL
// source and returns them as gpu.BindGroupLayout values keyed by group index.
// Each layout's entries are sorted by binding index. The provided visibility flag is
// applied to all entries, corresponding to the shader stage that declared them.
//
// Parameters:
//   - source: the pre-processed WGSL source code string
//   - visibility: the shader stage visibility flag to set on each entry
//   - structSizes: reflected struct layouts used to fill MinBindingSize
//
// Returns:
//   - map[uint32]gpu.BindGroupLayout: layouts keyed by group index
func parseBindGroupLayouts(source string, visibility gpu.ShaderStage, structSizes map[string]wgslTypeLayout) map[uint32]gpu.BindGroupLayout {
	groups := make(map[uint32][]gpu.BindingLayoutEntry)
	cleaned := stripComments(source)

	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		addressSpace := strings.TrimSpace(match[3])
		typeName := strings.TrimSpace(match[5])

		entry := classifyResource(uint32(binding), visibility, addressSpace, typeName)
		entry.Name = strings.TrimSpace(match[4])

		// float textures only ever read with textureLoad may be bound to unfilterable formats
		if entry.Kind == gpu.BindingSampledTexture && entry.SampleType == gpu.SampleFloat && !isFilteredSample(cleaned, entry.Name) {
			entry.SampleType = gpu.SampleUnfilterableFloat
		}

		if isBufferKind(entry.Kind) && !isRuntimeArray(typeName) {
			if layout, ok := resolveTypeLayout(typeName, structSizes); ok && layout.size > 0 {
				entry.MinBindingSize = layout.size
			}
		}

		groups[uint32(group)] = append(groups[uint32(group)], entry)
	}

	result := make(map[uint32]gpu.BindGroupLayout, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = gpu.BindGroupLayout{Group: g, Entries: entries}
	}
	return result
}

func isFilteredSample(source, name string) bool {
	re := regexp.MustCompile(`textureSample\w*\(\s*` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(source)
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1. Returns [1, 1, 1] if no @workgroup_size annotation is found.
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseEntryPoint finds the first entry point of the given stage. Ray generation kernels
// are written as compute entry points and launched per pixel by the ray tracing pipeline.
func parseEntryPoint(source string, shaderType ShaderType) string {
	cleaned := stripComments(source)

	var re *regexp.Regexp
	switch shaderType {
	case ShaderTypeVertex:
		re = vertexEntryRegex
	case ShaderTypeFragment:
		re = fragmentEntryRegex
	case ShaderTypeCompute, ShaderTypeRayGen:
		re = computeEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(cleaned); match != nil {
		return match[1]
	}
	return ""
}

func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
