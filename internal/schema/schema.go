// Package schema validates tool payloads against the JSON-Schema subset used by
// the catalog: object/array/string/number/integer/boolean/null types, required,
// enum, minimum, maximum, minLength and additionalProperties=false.
//
// Schemas are interpreted structurally; nothing is generated or evaluated.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Rule string

const (
	RuleType         Rule = "type"
	RuleRequired     Rule = "required"
	RuleEnum         Rule = "enum"
	RuleMinLength    Rule = "minLength"
	RuleMinimum      Rule = "minimum"
	RuleMaximum      Rule = "maximum"
	RuleUnrecognized Rule = "additionalProperties"
)

type FieldError struct {
	Path    string
	Rule    Rule
	Message string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Message)
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "; ")
}

type node struct {
	types      []string
	properties map[string]*node
	required   []string
	enum       []any
	minimum    *float64
	maximum    *float64
	minLength  *int
	items      *node
	closed     bool
}

// Validator is safe for concurrent use; it holds no mutable state.
type Validator struct {
	root *node
	err  error
}

// Compile builds a validator. It never fails: a malformed or non-object schema
// yields a validator that accepts only an empty payload, and Err reports why.
func Compile(raw any) *Validator {
	m, ok := raw.(map[string]any)
	if !ok {
		return &Validator{err: fmt.Errorf("schema is %T, not an object", raw)}
	}
	if m == nil {
		return &Validator{err: fmt.Errorf("schema is a nil object")}
	}
	root, err := compileNode(m, "(root)")
	if err != nil {
		return &Validator{err: err}
	}
	if len(root.types) > 0 && !(len(root.types) == 1 && root.types[0] == "object") {
		return &Validator{err: fmt.Errorf("root schema type must be object, got %v", root.types)}
	}
	root.types = []string{"object"}
	return &Validator{root: root}
}

// Err reports the compile problem that put the validator in fail-safe mode.
func (v *Validator) Err() error {
	return v.err
}

// Validate checks payload and returns a shallow copy of it. Extra keys are kept
// unless the schema closes the object.
func (v *Validator) Validate(payload any) (map[string]any, error) {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return nil, &ValidationError{Fields: []FieldError{{
			Path: "(root)", Rule: RuleType, Message: fmt.Sprintf("expected object, got %s", describe(payload)),
		}}}
	}
	var errs []FieldError
	if v.root == nil {
		for _, key := range sortedKeys(obj) {
			errs = append(errs, FieldError{
				Path: key, Rule: RuleUnrecognized,
				Message: fmt.Sprintf("unrecognized key '%s' (action schema unavailable)", key),
			})
		}
	} else {
		validate(v.root, obj, "", &errs)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		out[k] = val
	}
	return out, nil
}

func compileNode(m map[string]any, path string) (*node, error) {
	n := &node{}
	if t, ok := m["type"]; ok {
		switch typed := t.(type) {
		case string:
			n.types = []string{typed}
		case []any:
			for _, item := range typed {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s: type entries must be strings", path)
				}
				n.types = append(n.types, s)
			}
		default:
			return nil, fmt.Errorf("%s: type must be a string or list", path)
		}
		for _, typ := range n.types {
			switch typ {
			case "object", "array", "string", "number", "integer", "boolean", "null":
			default:
				return nil, fmt.Errorf("%s: unsupported type %q", path, typ)
			}
		}
	}
	if props, ok := m["properties"]; ok {
		pm, ok := props.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: properties must be an object", path)
		}
		n.properties = make(map[string]*node, len(pm))
		for name, sub := range pm {
			subMap, ok := sub.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: property schema must be an object", path, name)
			}
			child, err := compileNode(subMap, joinPath(path, name))
			if err != nil {
				return nil, err
			}
			n.properties[name] = child
		}
	}
	if req, ok := m["required"]; ok {
		list, ok := req.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: required must be a list", path)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: required entries must be strings", path)
			}
			n.required = append(n.required, s)
		}
	}
	if enum, ok := m["enum"]; ok {
		list, ok := enum.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: enum must be a list", path)
		}
		n.enum = list
	}
	var err error
	if n.minimum, err = optionalNumber(m, "minimum", path); err != nil {
		return nil, err
	}
	if n.maximum, err = optionalNumber(m, "maximum", path); err != nil {
		return nil, err
	}
	if raw, ok := m["minLength"]; ok {
		f, ok := toFloat(raw)
		if !ok || f < 0 || f != math.Trunc(f) {
			return nil, fmt.Errorf("%s: minLength must be a non-negative integer", path)
		}
		l := int(f)
		n.minLength = &l
	}
	if items, ok := m["items"]; ok {
		im, ok := items.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: items must be an object", path)
		}
		if n.items, err = compileNode(im, path+"[]"); err != nil {
			return nil, err
		}
	}
	if ap, ok := m["additionalProperties"]; ok {
		if b, isBool := ap.(bool); isBool && !b {
			n.closed = true
		}
	}
	return n, nil
}

func optionalNumber(m map[string]any, key, path string) (*float64, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a number", path, key)
	}
	return &f, nil
}

func validate(n *node, value any, path string, errs *[]FieldError) {
	display := path
	if display == "" {
		display = "(root)"
	}
	if len(n.types) > 0 && !matchesAny(n.types, value) {
		*errs = append(*errs, FieldError{
			Path: display, Rule: RuleType,
			Message: fmt.Sprintf("expected %s, got %s", strings.Join(n.types, " or "), describe(value)),
		})
		return
	}
	if len(n.enum) > 0 && !inEnum(n.enum, value) {
		*errs = append(*errs, FieldError{
			Path: display, Rule: RuleEnum,
			Message: fmt.Sprintf("must be one of %s", formatEnum(n.enum)),
		})
	}
	if s, ok := value.(string); ok && n.minLength != nil && utf8.RuneCountInString(s) < *n.minLength {
		*errs = append(*errs, FieldError{
			Path: display, Rule: RuleMinLength,
			Message: fmt.Sprintf("must be at least %d characters long", *n.minLength),
		})
	}
	if f, ok := numeric(value); ok {
		if n.minimum != nil && f < *n.minimum {
			*errs = append(*errs, FieldError{
				Path: display, Rule: RuleMinimum,
				Message: fmt.Sprintf("must be >= %s", formatNumber(*n.minimum)),
			})
		}
		if n.maximum != nil && f > *n.maximum {
			*errs = append(*errs, FieldError{
				Path: display, Rule: RuleMaximum,
				Message: fmt.Sprintf("must be <= %s", formatNumber(*n.maximum)),
			})
		}
	}
	if obj, ok := value.(map[string]any); ok {
		for _, key := range n.required {
			if _, present := obj[key]; !present {
				*errs = append(*errs, FieldError{
					Path: joinPath(path, key), Rule: RuleRequired,
					Message: fmt.Sprintf("missing required property '%s'", key),
				})
			}
		}
		for _, key := range sortedKeys(obj) {
			child, known := n.properties[key]
			switch {
			case known:
				validate(child, obj[key], joinPath(path, key), errs)
			case n.closed:
				*errs = append(*errs, FieldError{
					Path: joinPath(path, key), Rule: RuleUnrecognized,
					Message: fmt.Sprintf("unrecognized key '%s'", key),
				})
			}
		}
		return
	}
	if n.items != nil {
		if list, ok := asSlice(value); ok {
			for i, item := range list {
				validate(n.items, item, fmt.Sprintf("%s[%d]", display, i), errs)
			}
		}
	}
}

func matchesAny(types []string, value any) bool {
	for _, typ := range types {
		if matches(typ, value) {
			return true
		}
	}
	return false
}

func matches(typ string, value any) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	case "object":
		m, ok := value.(map[string]any)
		return ok && m != nil
	case "array":
		_, ok := asSlice(value)
		return ok
	case "number":
		_, ok := numeric(value)
		return ok
	case "integer":
		f, ok := numeric(value)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	}
	return false
}

func asSlice(value any) ([]any, bool) {
	if list, ok := value.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// numeric accepts every Go number type plus json.Number; strings never count.
func numeric(value any) (float64, bool) {
	switch value.(type) {
	case string, bool, nil:
		return 0, false
	}
	return toFloat(value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func inEnum(enum []any, value any) bool {
	vf, vNum := numeric(value)
	for _, candidate := range enum {
		if cf, cNum := numeric(candidate); cNum && vNum {
			if cf == vf {
				return true
			}
			continue
		}
		if reflect.DeepEqual(candidate, value) {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, 0, len(enum))
	for _, item := range enum {
		buf, err := json.Marshal(item)
		if err != nil {
			parts = append(parts, fmt.Sprint(item))
			continue
		}
		parts = append(parts, string(buf))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	}
	if _, ok := numeric(value); ok {
		return "number"
	}
	if _, ok := asSlice(value); ok {
		return "array"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(base, key string) string {
	if base == "" || base == "(root)" {
		return key
	}
	return base + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
