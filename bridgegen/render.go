package bridgegen

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

// RenderConfig controls code generation.
type RenderConfig struct {
	// PackageName for the generated file; defaults to "models".
	PackageName string
	// BridgePath is the import path of the bridge package.
	BridgePath string
	// UseAcronyms renders well-known acronym segments in full caps.
	UseAcronyms bool
	// SkipAbstract omits abstract types from the output.
	SkipAbstract bool
	// Enums generates string constants from @values constraints.
	Enums bool
	// Registration emits a RegisterModels function that registers every
	// generated type, players before the relations that link them.
	Registration bool
}

// DefaultConfig returns the generator defaults.
func DefaultConfig() RenderConfig {
	return RenderConfig{
		PackageName:  "models",
		BridgePath:   "github.com/typebridge/typebridge/bridge",
		UseAcronyms:  true,
		SkipAbstract: true,
		Enums:        true,
		Registration: true,
	}
}

// Render writes the generated Go source for a schema to w.
func Render(w io.Writer, schema *Schema, cfg RenderConfig) error {
	if cfg.PackageName == "" {
		cfg.PackageName = "models"
	}
	if cfg.BridgePath == "" {
		cfg.BridgePath = "github.com/typebridge/typebridge/bridge"
	}

	attrTypes := make(map[string]string, len(schema.Attributes))
	for _, a := range schema.Attributes {
		attrTypes[a.Name] = a.ValueType
	}

	data := &renderData{
		PackageName:  cfg.PackageName,
		BridgePath:   cfg.BridgePath,
		NeedsTime:    needsTime(schema, attrTypes),
		Registration: cfg.Registration,
	}

	if cfg.Enums {
		for _, a := range schema.Attributes {
			if len(a.Values) > 0 {
				data.Enums = append(data.Enums, buildEnum(a, cfg))
			}
		}
	}
	for _, e := range schema.Entities {
		if cfg.SkipAbstract && e.Abstract {
			continue
		}
		data.Entities = append(data.Entities, buildEntity(e, attrTypes, cfg))
	}
	for _, r := range schema.Relations {
		if cfg.SkipAbstract && r.Abstract {
			continue
		}
		data.Relations = append(data.Relations, buildRelation(r, schema, attrTypes, cfg))
	}

	return modelsTemplate.Execute(w, data)
}

type renderData struct {
	PackageName  string
	BridgePath   string
	NeedsTime    bool
	Registration bool
	Enums        []enumData
	Entities     []typeData
	Relations    []typeData
}

type enumData struct {
	AttrName string
	GoPrefix string
	Values   []enumValue
}

type enumValue struct {
	GoName string
	Value  string
}

type typeData struct {
	GoName   string
	TypeName string
	Comment  string
	Roles    []fieldData
	Fields   []fieldData
}

type fieldData struct {
	GoName string
	GoType string
	Tag    string
}

func buildEnum(a AttributeSpec, cfg RenderConfig) enumData {
	prefix := goName(a.Name, cfg)
	e := enumData{AttrName: a.Name, GoPrefix: prefix}
	for _, v := range a.Values {
		e.Values = append(e.Values, enumValue{GoName: prefix + goName(v, cfg), Value: v})
	}
	return e
}

func buildEntity(e EntitySpec, attrTypes map[string]string, cfg RenderConfig) typeData {
	t := typeData{GoName: goName(e.Name, cfg), TypeName: e.Name}
	if e.Parent != "" {
		t.Comment = "inherits from " + e.Parent
	}
	for _, o := range e.Owns {
		t.Fields = append(t.Fields, buildField(o, attrTypes, cfg))
	}
	return t
}

func buildRelation(r RelationSpec, schema *Schema, attrTypes map[string]string, cfg RenderConfig) typeData {
	t := typeData{GoName: goName(r.Name, cfg), TypeName: r.Name}
	if r.Parent != "" {
		t.Comment = "inherits from " + r.Parent
	}
	for _, rel := range r.Relates {
		player := findRolePlayer(r.Name, rel.Role, schema)
		if player == "" {
			player = rel.Role
		}
		t.Roles = append(t.Roles, fieldData{
			GoName: goName(rel.Role, cfg),
			GoType: "*" + goName(player, cfg),
			Tag:    fmt.Sprintf("`typeql:\"role:%s\"`", rel.Role),
		})
	}
	for _, o := range r.Owns {
		t.Fields = append(t.Fields, buildField(o, attrTypes, cfg))
	}
	return t
}

func buildField(o OwnsSpec, attrTypes map[string]string, cfg RenderConfig) fieldData {
	f := fieldData{GoName: goName(o.Attribute, cfg)}

	goType := valueTypeToGo(attrTypes[o.Attribute])
	switch {
	case isMulti(o):
		f.GoType = "[]" + goType
	case isOptional(o):
		f.GoType = "*" + goType
	default:
		f.GoType = goType
	}

	tagParts := []string{o.Attribute}
	if o.Key {
		tagParts = append(tagParts, "key")
	}
	if o.Unique {
		tagParts = append(tagParts, "unique")
	}
	if o.Card != "" {
		tagParts = append(tagParts, "card="+o.Card)
	}
	f.Tag = fmt.Sprintf("`typeql:\"%s\"`", strings.Join(tagParts, ","))
	return f
}

// isMulti reports whether an owns cardinality allows more than one value:
// an open upper bound or an explicit max above 1.
func isMulti(o OwnsSpec) bool {
	if o.Card == "" {
		return false
	}
	min, max, ok := parseCard(o.Card)
	if !ok {
		return false
	}
	return max == nil || *max > 1 || min > 1
}

func isOptional(o OwnsSpec) bool {
	if o.Key {
		return false
	}
	if o.Card == "" {
		return true
	}
	return strings.HasPrefix(o.Card, "0")
}

// parseCard reads "M", "M..", "M..N".
func parseCard(expr string) (int, *int, bool) {
	min := 0
	before, after, found := strings.Cut(expr, "..")
	if _, err := fmt.Sscanf(before, "%d", &min); err != nil {
		return 0, nil, false
	}
	if !found {
		m := min
		return min, &m, true
	}
	if after == "" {
		return min, nil, true
	}
	var m int
	if _, err := fmt.Sscanf(after, "%d", &m); err != nil {
		return 0, nil, false
	}
	return min, &m, true
}

func findRolePlayer(relName, roleName string, schema *Schema) string {
	for _, e := range schema.Entities {
		for _, p := range e.Plays {
			if p.Relation == relName && p.Role == roleName {
				return e.Name
			}
		}
	}
	return ""
}

func goName(name string, cfg RenderConfig) string {
	if cfg.UseAcronyms {
		return ToPascalAcronyms(name)
	}
	return ToPascal(name)
}

func valueTypeToGo(valueType string) string {
	switch valueType {
	case "string":
		return "string"
	case "integer", "long":
		return "int64"
	case "double":
		return "float64"
	case "boolean":
		return "bool"
	case "datetime", "date":
		return "time.Time"
	default:
		return "string"
	}
}

func needsTime(schema *Schema, attrTypes map[string]string) bool {
	usesTime := func(owns []OwnsSpec) bool {
		for _, o := range owns {
			switch attrTypes[o.Attribute] {
			case "datetime", "date":
				return true
			}
		}
		return false
	}
	for _, e := range schema.Entities {
		if usesTime(e.Owns) {
			return true
		}
	}
	for _, r := range schema.Relations {
		if usesTime(r.Owns) {
			return true
		}
	}
	return false
}

var modelsTemplate = template.Must(template.New("models").Parse(`// Code generated by bridgegen. DO NOT EDIT.

package {{.PackageName}}

import (
	"{{.BridgePath}}"
{{- if .NeedsTime}}
	"time"
{{- end}}
)
{{- if .Enums}}
{{range .Enums}}
// {{.GoPrefix}} values for the "{{.AttrName}}" attribute.
const (
{{- range .Values}}
	{{.GoName}} = "{{.Value}}"
{{- end}}
)
{{end}}
{{- end}}
{{range .Entities}}
{{- if .Comment}}
// {{.GoName}} {{.Comment}}.
{{- end}}
type {{.GoName}} struct {
	bridge.BaseEntity
{{- range .Fields}}
	{{.GoName}} {{.GoType}} {{.Tag}}
{{- end}}
}
{{end}}
{{- range .Relations}}
{{- if .Comment}}
// {{.GoName}} {{.Comment}}.
{{- end}}
type {{.GoName}} struct {
	bridge.BaseRelation
{{- range .Roles}}
	{{.GoName}} {{.GoType}} {{.Tag}}
{{- end}}
{{- range .Fields}}
	{{.GoName}} {{.GoType}} {{.Tag}}
{{- end}}
}
{{end}}
{{- if .Registration}}
// RegisterModels registers every generated type. Entities register before
// the relations whose roles they play.
func RegisterModels() {
{{- range .Entities}}
	bridge.MustRegister[{{.GoName}}]()
{{- end}}
{{- range .Relations}}
	bridge.MustRegister[{{.GoName}}]()
{{- end}}
}
{{- end}}
`))
