// annotations.go defines the annotation types, argument constants, and parser for the
// WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed with
// @stf: that drive shared struct injection and bind group declaration. The parsed results
// are stored as Annotation values and consumed by the PreProcessor.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@stf:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered shared struct at the
	// annotation site. It is consumed entirely during pre-processing.
	//
	// Syntax: // @stf:include <struct_type>
	//
	// Example: // @stf:include frame
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// whose type is resolved from the struct registry, and records the declaration.
	//
	// Syntax: // @stf:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: // @stf:group 0 0 uniform frame frame
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation represents a single parsed @stf: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = struct type key
	//   - group:   [0] = address space, [1] = var name, [2] = struct type key, optionally array<key>
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source.
	Line int

	// Group is the @group index for group annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// Struct type arguments. Each maps to an embedded WGSL asset under assets/include.
const (
	// AnnotationArgFrame identifies the per-frame LightingConstants block with its view and STF fields.
	AnnotationArgFrame AnnotationArg = "frame"

	// AnnotationArgVertex identifies the VertexInput struct shared by every raster pass.
	AnnotationArgVertex AnnotationArg = "vertex"

	// AnnotationArgInstance identifies the InstanceData struct holding current and previous transforms.
	AnnotationArgInstance AnnotationArg = "instance"

	// AnnotationArgMaterial identifies the MaterialData struct.
	AnnotationArgMaterial AnnotationArg = "material"

	// AnnotationArgBVH identifies the BVHNode, TLASInstance and MeshRecord structs used by traversal kernels.
	AnnotationArgBVH AnnotationArg = "bvh"

	// AnnotationArgShadow identifies the ShadowConstants struct of the cascaded shadow pass.
	AnnotationArgShadow AnnotationArg = "shadow"

	// AnnotationArgSTF identifies the stochastic texture filtering helpers, which depend on frame.
	AnnotationArgSTF AnnotationArg = "stf"
)

// Address space arguments of @stf:group annotations.
const (
	annotationArgUniform   AnnotationArg = "uniform"
	annotationArgRead      AnnotationArg = "read"
	annotationArgReadWrite AnnotationArg = "read_write"
)

// validStructTypes lists all AnnotationArg values accepted as struct type arguments.
var validStructTypes = []AnnotationArg{
	AnnotationArgFrame,
	AnnotationArgVertex,
	AnnotationArgInstance,
	AnnotationArgMaterial,
	AnnotationArgBVH,
	AnnotationArgShadow,
	AnnotationArgSTF,
}

var validAddressSpaces = []AnnotationArg{
	annotationArgUniform,
	annotationArgRead,
	annotationArgReadWrite,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @stf: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @stf annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @stf include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @stf include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @stf group annotation requires five arguments (group, binding, address space, name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q: %w", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q: %w", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @stf group annotation", lineNum, args[3])
		}
		typeArg := args[5]
		if inner, ok := strings.CutPrefix(typeArg, "array<"); ok {
			typeArg = strings.TrimSuffix(inner, ">")
		}
		if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @stf group annotation", lineNum, typeArg)
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown annotation type %q", lineNum, args[0])
	}
}
