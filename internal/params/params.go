// Package params extracts OpenSCAD Customizer parameter metadata from
// source text, answering a "kind: parameters" request without running
// any backend. It never touches the render/cache path: parameter specs
// are not fingerprinted and never produce STL bytes.
package params

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the inferred scalar type of a parameter, derived from its
// default-value literal.
type Kind string

const (
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
	KindVector  Kind = "vector"
	KindUnknown Kind = "unknown"
)

// Range describes a Customizer "// [min:step:max]" or "// [min:max]"
// annotation, when present.
type Range struct {
	Min, Max, Step float64
	HasStep        bool
}

// ParameterSpec describes one Customizer-exposed variable.
type ParameterSpec struct {
	Name    string
	Default string
	Kind    Kind
	Group   string
	Range   *Range
	Options []string
}

var (
	groupPattern   = regexp.MustCompile(`^\s*/\*\s*\[(.+?)\]\s*\*/\s*$`)
	assignPattern  = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*=\s*([^;]+);\s*(//.*)?$`)
	rangePattern   = regexp.MustCompile(`\[\s*(-?[\d.]+)\s*:\s*(-?[\d.]+)\s*(?::\s*(-?[\d.]+)\s*)?\]`)
	optionsPattern = regexp.MustCompile(`\[\s*((?:"[^"]*"|[\w.+-]+)\s*(?:,\s*(?:"[^"]*"|[\w.+-]+)\s*)*)\]`)
)

// ExtractParameters scans scad line by line for top-level "name = value;"
// assignments, associating each with the most recent "/* [Group] */"
// marker comment and any trailing "// [min:max]", "// [min:step:max]", or
// "// [opt1, opt2]" customizer annotation on the same line.
func ExtractParameters(scad string) []ParameterSpec {
	var out []ParameterSpec
	group := ""

	for _, line := range strings.Split(scad, "\n") {
		if m := groupPattern.FindStringSubmatch(line); m != nil {
			group = strings.TrimSpace(m[1])
			continue
		}

		m := assignPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		def := strings.TrimSpace(m[2])
		comment := m[3]

		spec := ParameterSpec{
			Name:    name,
			Default: def,
			Kind:    classify(def),
			Group:   group,
		}

		if comment != "" {
			if rm := rangePattern.FindStringSubmatch(comment); rm != nil {
				r := &Range{}
				r.Min, _ = strconv.ParseFloat(rm[1], 64)
				if rm[3] != "" {
					step, _ := strconv.ParseFloat(rm[2], 64)
					r.Step = step
					r.HasStep = true
					r.Max, _ = strconv.ParseFloat(rm[3], 64)
				} else {
					r.Max, _ = strconv.ParseFloat(rm[2], 64)
				}
				spec.Range = r
			} else if om := optionsPattern.FindStringSubmatch(comment); om != nil {
				for _, opt := range strings.Split(om[1], ",") {
					spec.Options = append(spec.Options, strings.Trim(strings.TrimSpace(opt), `"`))
				}
			}
		}

		out = append(out, spec)
	}
	return out
}

func classify(def string) Kind {
	switch {
	case def == "true" || def == "false":
		return KindBool
	case strings.HasPrefix(def, `"`):
		return KindString
	case strings.HasPrefix(def, "["):
		return KindVector
	default:
		if _, err := strconv.ParseFloat(def, 64); err == nil {
			return KindNumber
		}
		return KindUnknown
	}
}
