// pre_processor.go implements the WGSL shader pre-processor. It evaluates conditional
// compilation directives against a define set, substitutes define values into the remaining
// code, and expands @stf: annotations into shared struct sources and generated bind group
// declarations.
//
// Directives occupy a whole line:
//
//	#if NAME      active when NAME is defined to a value other than "0" or ""
//	#ifdef NAME   active when NAME is defined
//	#ifndef NAME  active when NAME is not defined
//	#else
//	#endif
package shader

import (
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

//go:embed assets/include/*.wgsl
var includeFS embed.FS

// registryEntry pairs a WGSL struct source with the type name emitted by @stf:group declarations.
type registryEntry struct {
	// File is the asset holding the struct source.
	File string

	// Type is the WGSL type name emitted in @stf:group declarations.
	Type string
}

// structRegistry maps struct type argument keys to their embedded source and type name.
var structRegistry = map[AnnotationArg]registryEntry{
	AnnotationArgFrame:    {File: "assets/include/frame.wgsl", Type: "LightingConstants"},
	AnnotationArgVertex:   {File: "assets/include/vertex.wgsl", Type: "VertexInput"},
	AnnotationArgInstance: {File: "assets/include/instance.wgsl", Type: "InstanceData"},
	AnnotationArgMaterial: {File: "assets/include/material.wgsl", Type: "MaterialData"},
	AnnotationArgBVH:      {File: "assets/include/bvh.wgsl", Type: "BVHNode"},
	AnnotationArgShadow:   {File: "assets/include/shadow.wgsl", Type: "ShadowConstants"},
	AnnotationArgSTF:      {File: "assets/include/stf.wgsl", Type: ""},
}

// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
var addressSpaceRegistry = map[AnnotationArg]string{
	annotationArgUniform:   "var<uniform>",
	annotationArgRead:      "var<storage, read>",
	annotationArgReadWrite: "var<storage, read_write>",
}

// IncludeSource returns the WGSL source registered for a struct type key.
//
// Parameters:
//   - key: the struct type argument, e.g. AnnotationArgFrame
//
// Returns:
//   - string: the WGSL source text
//   - error: an error if the key is not registered
func IncludeSource(key AnnotationArg) (string, error) {
	entry, ok := structRegistry[key]
	if !ok {
		return "", fmt.Errorf("shader: unknown include %q", key)
	}
	data, err := includeFS.ReadFile(entry.File)
	if err != nil {
		return "", fmt.Errorf("shader: read include %q: %w", key, err)
	}
	return string(data), nil
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	defines map[string]string

	// substitute matches every defined name as a whole word. Nil when there are no defines.
	substitute *regexp.Regexp

	// declarations accumulates AnnotationTypeBindingGroup annotations during a Process call.
	declarations []Annotation

	// included tracks struct keys already injected during a Process call.
	included map[AnnotationArg]bool
}

// PreProcessor processes raw WGSL shader source code containing directives and @stf:
// annotations into plain WGSL.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it. Inactive conditional
	// blocks are dropped, define values are substituted into active lines, @stf:include
	// annotations are replaced with the registered struct source (once per key), and
	// @stf:group annotations are replaced with generated @group/@binding declarations.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the processed WGSL shader source code
	//   - error: an error if a directive is unbalanced or an annotation is malformed
	Process(source string) (string, error)

	// Declarations returns the @stf:group annotations collected during the most recent
	// call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that evaluates directives against defines.
//
// Parameters:
//   - defines: macro names and values, may be nil
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(defines map[string]string) PreProcessor {
	p := &preProcessor{defines: make(map[string]string, len(defines))}
	names := make([]string, 0, len(defines))
	for k, v := range defines {
		p.defines[k] = v
		names = append(names, regexp.QuoteMeta(k))
	}
	if len(names) > 0 {
		// longest first so a name that prefixes another never wins the alternation
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		p.substitute = regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)
	}
	return p
}

// condFrame is one level of the #if stack.
type condFrame struct {
	parentActive bool
	taken        bool
	active       bool
	line         int
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	p.included = make(map[AnnotationArg]bool)

	out, err := p.process(source, "")
	if err != nil {
		return "", err
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) process(source, origin string) ([]string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var stack []condFrame

	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if directive, arg, ok := parseDirective(trimmed); ok {
			switch directive {
			case "if", "ifdef", "ifndef":
				if arg == "" {
					return nil, p.errorf(origin, lineNum, "#%s requires a name", directive)
				}
				cond := p.evaluate(directive, arg)
				parent := active()
				stack = append(stack, condFrame{parentActive: parent, taken: cond, active: parent && cond, line: lineNum})
			case "else":
				if len(stack) == 0 {
					return nil, p.errorf(origin, lineNum, "#else without #if")
				}
				top := &stack[len(stack)-1]
				top.active = top.parentActive && !top.taken
				top.taken = true
			case "endif":
				if len(stack) == 0 {
					return nil, p.errorf(origin, lineNum, "#endif without #if")
				}
				stack = stack[:len(stack)-1]
			default:
				return nil, p.errorf(origin, lineNum, "unknown directive #%s", directive)
			}
			continue
		}

		if !active() {
			continue
		}

		a, err := parseAnnotation(line, lineNum)
		if err != nil {
			return nil, p.wrap(origin, err)
		}
		if a == nil {
			out = append(out, p.substituteLine(line))
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			key := a.Args[0]
			if p.included[key] {
				continue
			}
			p.included[key] = true
			src, err := IncludeSource(key)
			if err != nil {
				return nil, p.errorf(origin, lineNum, "%v", err)
			}
			expanded, err := p.process(src, string(key))
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		case AnnotationTypeBindingGroup:
			addrSpace := addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				wgslType = fmt.Sprintf("array<%s>", structRegistry[AnnotationArg(inner)].Type)
			} else {
				wgslType = structRegistry[a.Args[2]].Type
			}
			if wgslType == "" || wgslType == "array<>" {
				return nil, p.errorf(origin, lineNum, "struct type %q cannot be bound", a.Args[2])
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		}
	}

	if len(stack) > 0 {
		return nil, p.errorf(origin, stack[len(stack)-1].line, "unterminated conditional block")
	}
	return out, nil
}

func (p *preProcessor) evaluate(directive, name string) bool {
	v, ok := p.defines[name]
	switch directive {
	case "ifdef":
		return ok
	case "ifndef":
		return !ok
	default:
		return ok && v != "" && v != "0"
	}
}

func (p *preProcessor) substituteLine(line string) string {
	if p.substitute == nil || strings.HasPrefix(strings.TrimSpace(line), "//") {
		return line
	}
	return p.substitute.ReplaceAllStringFunc(line, func(name string) string {
		return p.defines[name]
	})
}

func (p *preProcessor) errorf(origin string, line int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if origin != "" {
		return fmt.Errorf("include %s: line %d: %s", origin, line, msg)
	}
	return fmt.Errorf("line %d: %s", line, msg)
}

func (p *preProcessor) wrap(origin string, err error) error {
	if origin != "" {
		return fmt.Errorf("include %s: %w", origin, err)
	}
	return err
}

// parseDirective splits a "#name arg" line. Lines not starting with '#' are not directives.
func parseDirective(trimmed string) (name, arg string, ok bool) {
	rest, found := strings.CutPrefix(trimmed, "#")
	if !found {
		return "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", false
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return fields[0], arg, true
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
