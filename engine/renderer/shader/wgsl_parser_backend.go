package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"
)

// wgslPrimitiveLayoutMap holds size and alignment for the host-shareable scalar, vector,
// matrix and atomic types, in both the templated and the shorthand spelling.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = buildPrimitiveLayouts()

func buildPrimitiveLayouts() map[string]wgslTypeLayout {
	m := map[string]wgslTypeLayout{
		"f32":         {4, 4},
		"i32":         {4, 4},
		"u32":         {4, 4},
		"bool":        {4, 4},
		"atomic<u32>": {4, 4},
		"atomic<i32>": {4, 4},
		"mat3x3<f32>": {48, 16},
		"mat3x3f":     {48, 16},
		"mat4x4<f32>": {64, 16},
		"mat4x4f":     {64, 16},
	}
	// vec3 pads to the alignment of vec4
	vec := map[int]wgslTypeLayout{2: {8, 8}, 3: {12, 16}, 4: {16, 16}}
	for _, scalar := range []string{"f32", "i32", "u32"} {
		for n, layout := range vec {
			name := "vec" + strconv.Itoa(n)
			m[name+"<"+scalar+">"] = layout
			m[name+scalar[:1]] = layout
		}
	}
	return m
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives
// and previously-computed struct layouts. Fixed-size arrays resolve to their full size,
// runtime-sized arrays resolve to one element stride.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "ViewConstants", "array<vec4f, 4>"
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: true if the type could be resolved
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return wgslTypeLayout{}, false
	}
	inner := typeName[6 : len(typeName)-1]
	parts := strings.SplitN(inner, ",", 2)

	elemLayout, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elemLayout.align, elemLayout.size)

	if len(parts) == 2 {
		count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return wgslTypeLayout{}, false
		}
		return wgslTypeLayout{count * stride, elemLayout.align}, true
	}
	return wgslTypeLayout{stride, elemLayout.align}, true
}

// computeStructLayout places each field at its next aligned offset and rounds the total
// up to the largest member alignment. A trailing runtime-sized array contributes its
// offset only. Builtin fields are not host-shareable and are skipped.
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (StructLayout, bool) {
	out := StructLayout{Name: ps.name, Fields: make([]FieldLayout, 0, len(ps.fields))}
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}

		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return StructLayout{}, false
		}

		offset = roundUpAlign(fieldLayout.align, offset)
		size := fieldLayout.size
		if isRuntimeArray(field.typeName) {
			size = 0
		}
		out.Fields = append(out.Fields, FieldLayout{Name: field.name, Type: field.typeName, Offset: offset, Size: size})
		offset += size

		if fieldLayout.align > maxAlign {
			maxAlign = fieldLayout.align
		}
	}

	out.Align = maxAlign
	out.Size = roundUpAlign(maxAlign, offset)
	return out, true
}

// computeStructLayouts resolves every struct in dependency order. Structs referencing
// unknown types are left out.
func computeStructLayouts(structs []parsedStruct) map[string]StructLayout {
	resolved := make(map[string]StructLayout, len(structs))
	sizes := make(map[string]wgslTypeLayout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]

		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, sizes); ok {
				resolved[ps.name] = layout
				sizes[ps.name] = wgslTypeLayout{layout.Size, layout.Align}
				progress = true
			} else {
				next = append(next, ps)
			}
		}

		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}

	return resolved
}

func typeLayouts(layouts map[string]StructLayout) map[string]wgslTypeLayout {
	out := make(map[string]wgslTypeLayout, len(layouts))
	for name, l := range layouts {
		out[name] = wgslTypeLayout{l.Size, l.Align}
	}
	return out
}

func isRuntimeArray(typeName string) bool {
	return strings.HasPrefix(typeName, "array<") && !strings.Contains(typeName, ",")
}

func isBufferKind(k gpu.BindingKind) bool {
	return k == gpu.BindingUniformBuffer || k == gpu.BindingStorageBuffer || k == gpu.BindingReadOnlyStorageBuffer
}

func classifyResource(binding uint32, visibility gpu.ShaderStage, addressSpace, typeName string) gpu.BindingLayoutEntry {
	entry := gpu.BindingLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
	}

	if addressSpace != "" {
		switch {
		case addressSpace == "uniform":
			entry.Kind = gpu.BindingUniformBuffer
		case strings.HasPrefix(addressSpace, "storage") && strings.Contains(addressSpace, "read_write"):
			entry.Kind = gpu.BindingStorageBuffer
		default:
			entry.Kind = gpu.BindingReadOnlyStorageBuffer
		}
		return entry
	}

	switch {
	case typeName == "sampler":
		entry.Kind = gpu.BindingSampler
	case typeName == "sampler_comparison":
		entry.Kind = gpu.BindingComparisonSampler
	case typeName == "acceleration_structure":
		entry.Kind = gpu.BindingAccelerationStructure
	case strings.HasPrefix(typeName, "texture_storage_"):
		entry.Kind = gpu.BindingStorageTexture
		classifyStorageTexture(typeName, &entry)
	case strings.HasPrefix(typeName, "texture_depth_"):
		entry.Kind = gpu.BindingDepthTexture
		entry.SampleType = gpu.SampleDepth
	case strings.HasPrefix(typeName, "texture_"):
		entry.Kind = gpu.BindingSampledTexture
		_, param := splitTypeParams(typeName)
		if st, ok := wgslSampleTypeMap[param]; ok {
			entry.SampleType = st
		}
	}

	return entry
}

func classifyStorageTexture(typeName string, entry *gpu.BindingLayoutEntry) {
	_, params := splitTypeParams(typeName)

	parts := strings.SplitN(params, ",", 2)
	if format, ok := wgslTexelFormatMap[strings.TrimSpace(parts[0])]; ok {
		entry.StorageFormat = format
	}
	if len(parts) == 2 {
		if access, ok := wgslStorageAccessMap[strings.TrimSpace(parts[1])]; ok {
			entry.StorageAccess = access
		}
	}
}

func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments drops line comments and nested block comments. Newlines are kept so
// the remaining source has the same line structure.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			for i+1 < len(source) && source[i+1] != '\n' {
				i++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

func buildVertexBufferLayout(ps parsedStruct) (gpu.VertexBufferLayout, bool) {
	attrs := make([]gpu.VertexAttribute, 0, len(ps.fields))
	var offset uint64

	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return gpu.VertexBufferLayout{}, false
		}
		attrs = append(attrs, gpu.VertexAttribute{
			Location: uint32(f.location),
			Format:   info.format,
			Offset:   offset,
		})
		offset += info.size
	}

	return gpu.VertexBufferLayout{Stride: offset, Attributes: attrs}, true
}

func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
