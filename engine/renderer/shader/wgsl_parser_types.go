package shader

import "github.com/Carmen-Shannon/oxy-stf/engine/renderer/gpu"

// vertexFormatInfo holds the vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format gpu.VertexFormat
	size   uint64
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
// Used to compute MinBindingSize for buffer bindings and to check Go twins of shader structs.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// FieldLayout is the reflected placement of one struct member.
type FieldLayout struct {
	Name   string
	Type   string
	Offset uint64
	Size   uint64
}

// StructLayout is the reflected host-shareable layout of a WGSL struct.
type StructLayout struct {
	Name   string
	Size   uint64
	Align  uint64
	Fields []FieldLayout
}

// Field returns the member with the given name.
func (l StructLayout) Field(name string) (FieldLayout, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayout{}, false
}
