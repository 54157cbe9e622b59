package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNoJSON is returned when a completion contains no JSON value.
var ErrNoJSON = errors.New("no JSON found in response")

var jsonPattern = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// OutputParser extracts structured data from model responses.
type OutputParser struct{}

// NewOutputParser creates a parser.
func NewOutputParser() *OutputParser {
	return &OutputParser{}
}

// ParseJSONOutput extracts the outermost JSON object or array from text, tolerating
// markdown fences, surrounding prose and common formatting slips.
func (p *OutputParser) ParseJSONOutput(text string) (json.RawMessage, error) {
	match := jsonPattern.FindString(text)
	if match == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(match)) {
		return json.RawMessage(match), nil
	}

	cleaned := p.fixJSON(match)
	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	return json.RawMessage(cleaned), nil
}

// fixJSON repairs trailing commas, unquoted keys and single-quoted strings. Only text
// outside string literals is touched, so apostrophes and commas inside values survive.
func (p *OutputParser) fixJSON(jsonStr string) string {
	var (
		b    strings.Builder
		last byte // last non-space byte written outside a string
	)
	b.Grow(len(jsonStr) + 16)

	for i := 0; i < len(jsonStr); i++ {
		c := jsonStr[i]
		switch {
		case c == '"':
			i = copyDoubleQuoted(&b, jsonStr, i)
			last = '"'
		case c == '\'':
			i = convertSingleQuoted(&b, jsonStr, i)
			last = '"'
		case c == ',' && closesNext(jsonStr, i+1):
			// trailing comma, dropped
		case isIdentStart(c) && (last == '{' || last == ','):
			j := i + 1
			for j < len(jsonStr) && isIdentPart(jsonStr[j]) {
				j++
			}
			if k := skipSpace(jsonStr, j); k < len(jsonStr) && jsonStr[k] == ':' {
				b.WriteByte('"')
				b.WriteString(jsonStr[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(jsonStr[i:j])
			}
			last = jsonStr[j-1]
			i = j - 1
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				last = c
			}
		}
	}
	return b.String()
}

// copyDoubleQuoted writes the string literal opening at s[i] unchanged and returns the
// index of its closing quote.
func copyDoubleQuoted(b *strings.Builder, s string, i int) int {
	b.WriteByte('"')
	for i++; i < len(s); i++ {
		b.WriteByte(s[i])
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return i
		}
	}
	return i
}

// convertSingleQuoted rewrites the 'literal' opening at s[i] as a double-quoted one.
func convertSingleQuoted(b *strings.Builder, s string, i int) int {
	b.WriteByte('"')
	for i++; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			b.WriteByte(c)
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteByte('"')
			return i
		default:
			b.WriteByte(c)
		}
	}
	return i
}

func closesNext(s string, i int) bool {
	i = skipSpace(s, i)
	return i < len(s) && (s[i] == '}' || s[i] == ']')
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || ('0' <= c && c <= '9') }

// JSONValidator checks model output against JSON schemas. Schemas are compiled once.
type JSONValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewJSONValidator compiles the named schemas.
func NewJSONValidator(schemas map[string][]byte) (*JSONValidator, error) {
	v := &JSONValidator{schemas: make(map[string]*gojsonschema.Schema, len(schemas))}
	for name, raw := range schemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks if data conforms to the named schema.
func (v *JSONValidator) Validate(name string, data json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
