// pre_processor.go specializes WGSL sources before they are handed to the shader compiler.
// Named function constants are applied by rewriting module-scope `override` declarations into
// `const` declarations carrying the supplied value, so every pipeline that uses constants gets
// its own specialized module.
package device

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// overrideDeclRegex matches a module-scope override declaration with an optional @id attribute,
// optional type and optional initializer. It captures the name, the type and the initializer.
var overrideDeclRegex = regexp.MustCompile(`(?m)^\s*(?:@id\(\s*\d+\s*\)\s*)?override\s+(\w+)\s*(?::\s*(\w+))?\s*(?:=\s*([^;]+))?;`)

// PreProcessor rewrites WGSL source before compilation.
type PreProcessor interface {
	// Process applies the processor's constants to source.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the specialized source
	//   - error: an error if a constant does not name an override, or an override is left without a value
	Process(source string) (string, error)

	// Overrides returns the override names found by the most recent Process call, in source order.
	//
	// Returns:
	//   - []string: the override names
	Overrides() []string
}

type preProcessor struct {
	constants FunctionConstants
	overrides []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that specializes overrides with constants.
//
// Parameters:
//   - constants: named values; may be nil
//
// Returns:
//   - PreProcessor: the pre-processor
func NewPreProcessor(constants FunctionConstants) PreProcessor {
	return &preProcessor{constants: constants}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.overrides = p.overrides[:0]
	applied := make(map[string]bool, len(p.constants))

	var missing []string
	out := overrideDeclRegex.ReplaceAllStringFunc(source, func(decl string) string {
		m := overrideDeclRegex.FindStringSubmatch(decl)
		name, typeName, initializer := m[1], m[2], strings.TrimSpace(m[3])
		p.overrides = append(p.overrides, name)

		value, ok := p.constants[name]
		if !ok {
			if initializer == "" {
				missing = append(missing, name)
			}
			return decl
		}
		applied[name] = true

		indent := decl[:len(decl)-len(strings.TrimLeft(decl, " \t\r\n"))]
		if typeName == "" {
			typeName = inferOverrideType(initializer)
		}
		return indent + "const " + name + ": " + typeName + " = " + formatConstant(typeName, value) + ";"
	})

	for name := range p.constants {
		if !applied[name] {
			return "", errors.Newf("function constant %q does not match any override declaration", name)
		}
	}
	if len(missing) > 0 {
		return "", errors.Newf("override declarations without a value: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func (p *preProcessor) Overrides() []string {
	return p.overrides
}

// inferOverrideType guesses the scalar type of an untyped override from its initializer.
func inferOverrideType(initializer string) string {
	switch {
	case initializer == "true" || initializer == "false":
		return "bool"
	case strings.HasSuffix(initializer, "u"):
		return "u32"
	case strings.HasSuffix(initializer, "i"):
		return "i32"
	case strings.ContainsAny(initializer, ".eEf"):
		return "f32"
	default:
		return "i32"
	}
}

// formatConstant renders value as a WGSL literal of typeName.
func formatConstant(typeName string, value float64) string {
	switch typeName {
	case "bool":
		return strconv.FormatBool(value != 0)
	case "u32":
		return strconv.FormatUint(uint64(value), 10) + "u"
	case "i32":
		return strconv.FormatInt(int64(value), 10) + "i"
	default:
		s := strconv.FormatFloat(value, 'f', -1, 32)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	}
}
