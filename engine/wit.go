package engine

import (
	"regexp"
	"sort"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/managed-runtime/errors"
)

// WIT metadata sidecars describe the managed type surface of a core
// image. The mapping is:
//
//	package ns:name;          namespace of every type in the file
//	resource player { ... }   reference class "player"
//	record player-state {...} fields of class "player"
//	record point { ... }      standalone value class "point"
//	enum color { ... }        enum class "color"
//	constructor(a: s32);      constructor overload
//	m: func(a: s32) -> bool;  instance method
//	m: static func() -> u32;  static method
//	get-x / set-x func pairs  property "x" with those accessors
//	use other:pkg/{t};        external type reference
//
// Base classes and interfaces have no WIT syntax; they ride on doc
// comments immediately before the resource:
//
//	/// @base ns:base.entity
//	/// @implements ns:base.drawable
var (
	packageRe  = regexp.MustCompile(`^package\s+([a-zA-Z0-9_:\-./@]+);`)
	useRe      = regexp.MustCompile(`^use\s+([a-zA-Z0-9_:\-./@]+)/\{([^}]*)\};`)
	resourceRe = regexp.MustCompile(`^resource\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*\{`)
	recordRe   = regexp.MustCompile(`^record\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*\{`)
	enumRe     = regexp.MustCompile(`^enum\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*\{`)
	ctorRe     = regexp.MustCompile(`^constructor\s*\(([^)]*)\)\s*;`)
	funcRe     = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*(static\s+)?func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?;`)
	fieldRe    = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*([^,]+),?$`)
	enumCaseRe = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)\s*,?$`)
)

const stateSuffix = "-state"

// ParseMetadata parses WIT metadata text into type definitions plus the
// set of externally referenced type names.
func ParseMetadata(text string) ([]TypeDef, []string, error) {
	var (
		namespace string
		refs      []string
		order     []string
		pendBase  string
		pendIfs   []string
	)
	classes := make(map[string]*TypeDef)
	records := make(map[string][]FieldDef)
	recordOrder := []string{}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		switch {
		case line == "" || isComment(line):
			if v, ok := annotation(line, "@base"); ok {
				pendBase = v
			}
			if v, ok := annotation(line, "@implements"); ok {
				pendIfs = append(pendIfs, v)
			}

		case packageRe.MatchString(line):
			namespace = packageRe.FindStringSubmatch(line)[1]

		case useRe.MatchString(line):
			m := useRe.FindStringSubmatch(line)
			for _, name := range strings.Split(m[2], ",") {
				name = strings.TrimSpace(name)
				if name != "" {
					refs = append(refs, m[1]+"."+name)
				}
			}

		case resourceRe.MatchString(line):
			name := resourceRe.FindStringSubmatch(line)[1]
			def := &TypeDef{
				Namespace:  namespace,
				Name:       name,
				Size:       8,
				Alignment:  8,
				Base:       pendBase,
				Interfaces: pendIfs,
			}
			pendBase, pendIfs = "", nil

			end, err := parseResourceBody(lines, i+1, def)
			if err != nil {
				return nil, nil, err
			}
			i = end
			deriveProperties(def)
			classes[name] = def
			order = append(order, name)

		case recordRe.MatchString(line):
			name := recordRe.FindStringSubmatch(line)[1]
			fields, end, err := parseFieldBody(lines, i+1, name)
			if err != nil {
				return nil, nil, err
			}
			i = end
			records[name] = fields
			recordOrder = append(recordOrder, name)

		case enumRe.MatchString(line):
			name := enumRe.FindStringSubmatch(line)[1]
			def := &TypeDef{
				Namespace: namespace,
				Name:      name,
				Size:      4,
				Alignment: 4,
				ValueType: true,
				Enum:      true,
			}
			end, err := parseEnumBody(lines, i+1, def)
			if err != nil {
				return nil, nil, err
			}
			i = end
			classes[name] = def
			order = append(order, name)
		}
	}

	// Attach "<class>-state" records as class fields; the rest become
	// standalone value classes.
	for _, name := range recordOrder {
		fields := records[name]
		owner := strings.TrimSuffix(name, stateSuffix)
		if owner != name {
			if def, ok := classes[owner]; ok {
				def.Fields = fields
				def.Size, def.Alignment = layout(fields)
				continue
			}
		}
		size, align := layout(fields)
		def := &TypeDef{
			Namespace: namespace,
			Name:      name,
			Size:      size,
			Alignment: align,
			ValueType: true,
			Fields:    fields,
		}
		classes[name] = def
		order = append(order, name)
	}

	defs := make([]TypeDef, 0, len(order))
	for _, name := range order {
		defs = append(defs, *classes[name])
	}
	if len(defs) == 0 {
		return nil, nil, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "no type definitions found"))
	}

	refs = append(refs, externalRefs(defs)...)
	sort.Strings(refs)
	return defs, dedup(refs), nil
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "//")
}

func annotation(line, key string) (string, bool) {
	if !strings.HasPrefix(line, "///") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "///"))
	if !strings.HasPrefix(rest, key+" ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(rest, key+" ")), true
}

func parseResourceBody(lines []string, start int, def *TypeDef) (int, error) {
	token := uint32(1)
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "}":
			return i, nil
		case line == "" || isComment(line):
			continue
		case ctorRe.MatchString(line):
			params, err := parseParamTypes(ctorRe.FindStringSubmatch(line)[1])
			if err != nil {
				return 0, err
			}
			def.Constructors = append(def.Constructors, params)
		case funcRe.MatchString(line):
			m := funcRe.FindStringSubmatch(line)
			params, err := parseParamTypes(m[3])
			if err != nil {
				return 0, err
			}
			ret, err := parseResultType(m[4])
			if err != nil {
				return 0, err
			}
			def.Methods = append(def.Methods, MethodDef{
				Name:   m[1],
				Token:  token,
				Static: strings.TrimSpace(m[2]) != "",
				Params: params,
				Return: ret,
			})
			token++
		default:
			return 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unexpected line in resource "+def.Name+": "+line))
		}
	}
	return 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unterminated resource "+def.Name))
}

func parseFieldBody(lines []string, start int, name string) ([]FieldDef, int, error) {
	var fields []FieldDef
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "}":
			return fields, i, nil
		case line == "" || isComment(line):
			continue
		case fieldRe.MatchString(line):
			m := fieldRe.FindStringSubmatch(line)
			fields = append(fields, FieldDef{Name: m[1], Type: parseTypeDesc(m[2])})
		default:
			return nil, 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unexpected line in record "+name+": "+line))
		}
	}
	return nil, 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unterminated record "+name))
}

func parseEnumBody(lines []string, start int, def *TypeDef) (int, error) {
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "}":
			return i, nil
		case line == "" || isComment(line):
			continue
		case enumCaseRe.MatchString(line):
			name := enumCaseRe.FindStringSubmatch(line)[1]
			def.Fields = append(def.Fields, FieldDef{Name: name, Type: TypeDesc{Name: "s32"}})
		default:
			return 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unexpected line in enum "+def.Name+": "+line))
		}
	}
	return 0, errors.ParseFailed("metadata", errors.Usage(errors.PhaseParse, "unterminated enum "+def.Name))
}

func parseParamTypes(s string) ([]TypeDesc, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []TypeDesc
	for _, p := range splitParams(s) {
		typStr := p
		if idx := strings.LastIndex(p, ":"); idx != -1 {
			typStr = strings.TrimSpace(p[idx+1:])
		}
		out = append(out, parseTypeDesc(typStr))
	}
	return out, nil
}

func parseResultType(s string) (TypeDesc, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeDesc{Name: "void", Void: true}, nil
	}
	return parseTypeDesc(s), nil
}

// splitParams splits a parameter list, tolerating nested parens and
// generic angle brackets.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

// parseTypeDesc maps a WIT type expression to a type descriptor.
// Primitives are validated through the WIT parser; anything it rejects
// is taken as a named class type.
func parseTypeDesc(s string) TypeDesc {
	s = strings.TrimSpace(s)
	if s == "" || s == "void" {
		return TypeDesc{Name: "void", Void: true}
	}

	byRef := false
	if inner, ok := unwrap(s, "borrow<"); ok {
		byRef = true
		s = inner
	}

	if _, err := wit.ParseType(s); err == nil {
		return TypeDesc{Name: s, ByRef: byRef}
	}
	return TypeDesc{Name: s, Struct: strings.HasSuffix(s, stateSuffix), ByRef: byRef}
}

func unwrap(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ">") {
		return strings.TrimSuffix(strings.TrimPrefix(s, prefix), ">"), true
	}
	return s, false
}

// deriveProperties folds get-x/set-x accessor pairs into property
// definitions. The accessor methods stay in Methods; the property records
// which of them back it.
func deriveProperties(def *TypeDef) {
	type accessors struct {
		getter, setter string
		typ            TypeDesc
		seen           int
	}
	props := make(map[string]*accessors)
	var order []string

	touch := func(name string) *accessors {
		if p, ok := props[name]; ok {
			return p
		}
		p := &accessors{}
		props[name] = p
		order = append(order, name)
		return p
	}

	for _, m := range def.Methods {
		if m.Static {
			continue
		}
		if name, ok := strings.CutPrefix(m.Name, "get-"); ok && len(m.Params) == 0 && !m.Return.Void {
			p := touch(name)
			p.getter = m.Name
			p.typ = m.Return
			p.seen++
		}
		if name, ok := strings.CutPrefix(m.Name, "set-"); ok && len(m.Params) == 1 {
			p := touch(name)
			p.setter = m.Name
			if p.getter == "" {
				p.typ = m.Params[0]
			}
			p.seen++
		}
	}

	for _, name := range order {
		p := props[name]
		def.Properties = append(def.Properties, PropertyDef{
			Name:   name,
			Getter: p.getter,
			Setter: p.setter,
			Type:   p.typ,
		})
	}
}

var primitiveLayout = map[string]uint32{
	"bool": 1, "u8": 1, "s8": 1,
	"u16": 2, "s16": 2,
	"u32": 4, "s32": 4, "f32": 4, "char": 4,
	"u64": 8, "s64": 8, "f64": 8,
	"string": 8,
}

func layout(fields []FieldDef) (size, align uint32) {
	align = 1
	for _, f := range fields {
		fs, ok := primitiveLayout[f.Type.Name]
		if !ok {
			fs = 8
		}
		if fs > align {
			align = fs
		}
		if rem := size % fs; rem != 0 {
			size += fs - rem
		}
		size += fs
	}
	if rem := size % align; rem != 0 {
		size += align - rem
	}
	if size == 0 {
		size = align
	}
	return size, align
}

// externalRefs collects named types used in signatures that no local
// definition satisfies.
func externalRefs(defs []TypeDef) []string {
	local := make(map[string]bool, len(defs))
	for i := range defs {
		local[defs[i].Name] = true
	}

	var refs []string
	note := func(t TypeDesc) {
		if t.Void || primitiveLayout[t.Name] != 0 {
			return
		}
		if !local[t.Name] {
			refs = append(refs, t.Name)
		}
	}

	for i := range defs {
		d := &defs[i]
		if d.Base != "" {
			refs = append(refs, d.Base)
		}
		refs = append(refs, d.Interfaces...)
		for _, sig := range d.Constructors {
			for _, t := range sig {
				note(t)
			}
		}
		for _, m := range d.Methods {
			for _, t := range m.Params {
				note(t)
			}
			note(m.Return)
		}
		for _, f := range d.Fields {
			note(f.Type)
		}
	}
	return refs
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
