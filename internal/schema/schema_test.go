package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func fieldsOf(t *testing.T, err error) []FieldError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Fields
}

const tokenSchema = `{
  "type": "object",
  "properties": {
    "chain_id": {"type": ["string", "integer"]},
    "contract_address": {"type": "string", "minLength": 42},
    "limit": {"type": "integer", "minimum": 1, "maximum": 100},
    "kind": {"type": "string", "enum": ["transfer", "mint"]},
    "tags": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["chain_id", "contract_address"],
  "additionalProperties": false
}`

func TestValidateReportsEveryMissingRequiredField(t *testing.T) {
	v := Compile(mustSchema(t, tokenSchema))
	require.NoError(t, v.Err())

	_, err := v.Validate(map[string]any{})
	fields := fieldsOf(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "chain_id", fields[0].Path)
	assert.Equal(t, RuleRequired, fields[0].Rule)
	assert.Equal(t, "contract_address", fields[1].Path)
	assert.Contains(t, err.Error(), "missing required property 'contract_address'")
}

func TestValidateRules(t *testing.T) {
	v := Compile(mustSchema(t, tokenSchema))
	addr := "0x0000000000000000000000000000000000000001"

	cases := []struct {
		name    string
		payload map[string]any
		path    string
		rule    Rule
	}{
		{"union type mismatch", map[string]any{"chain_id": true, "contract_address": addr}, "chain_id", RuleType},
		{"integer rejects fraction", map[string]any{"chain_id": 1.5, "contract_address": addr}, "chain_id", RuleType},
		{"min length", map[string]any{"chain_id": "pacific-1", "contract_address": "0x1"}, "contract_address", RuleMinLength},
		{"minimum", map[string]any{"chain_id": 1329, "contract_address": addr, "limit": 0}, "limit", RuleMinimum},
		{"maximum", map[string]any{"chain_id": 1329, "contract_address": addr, "limit": 500}, "limit", RuleMaximum},
		{"enum", map[string]any{"chain_id": 1329, "contract_address": addr, "kind": "burn"}, "kind", RuleEnum},
		{"array items", map[string]any{"chain_id": 1329, "contract_address": addr, "tags": []any{"a", 2}}, "tags[1]", RuleType},
		{"unrecognized key", map[string]any{"chain_id": 1329, "contract_address": addr, "extra": 1}, "extra", RuleUnrecognized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.payload)
			fields := fieldsOf(t, err)
			require.Len(t, fields, 1)
			assert.Equal(t, tc.path, fields[0].Path)
			assert.Equal(t, tc.rule, fields[0].Rule)
		})
	}
}

func TestValidateIsIdempotentAndDoesNotMutate(t *testing.T) {
	v := Compile(mustSchema(t, tokenSchema))
	payload := map[string]any{
		"chain_id":         "pacific-1",
		"contract_address": "0x0000000000000000000000000000000000000001",
		"tags":             []any{"a"},
	}

	first, err := v.Validate(payload)
	require.NoError(t, err)
	second, err := v.Validate(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, payload, first)

	first["chain_id"] = "changed"
	assert.Equal(t, "pacific-1", payload["chain_id"])
}

func TestValidateKeepsExtraKeysOnOpenSchemas(t *testing.T) {
	v := Compile(mustSchema(t, `{"type":"object","properties":{"a":{"type":"string"}}}`))
	out, err := v.Validate(map[string]any{"a": "x", "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out["b"])
}

func TestNestedClosedObjects(t *testing.T) {
	v := Compile(mustSchema(t, `{
	  "type": "object",
	  "properties": {"query": {"type": "object", "properties": {"page": {"type": "integer"}}, "additionalProperties": false}}
	}`))
	_, err := v.Validate(map[string]any{"query": map[string]any{"page": 1, "size": 2}})
	fields := fieldsOf(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "query.size", fields[0].Path)
}

func TestFailSafeValidator(t *testing.T) {
	for name, raw := range map[string]any{
		"nil":          nil,
		"nil map":      map[string]any(nil),
		"string":       "not a schema",
		"array root":   map[string]any{"type": "array"},
		"bad property": map[string]any{"type": "object", "properties": map[string]any{"a": 3}},
		"bad type":     map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "decimal"}}},
	} {
		t.Run(name, func(t *testing.T) {
			v := Compile(raw)
			assert.Error(t, v.Err())

			out, err := v.Validate(map[string]any{})
			require.NoError(t, err)
			assert.Empty(t, out)

			_, err = v.Validate(map[string]any{"x": 1})
			fields := fieldsOf(t, err)
			require.Len(t, fields, 1)
			assert.Equal(t, RuleUnrecognized, fields[0].Rule)
		})
	}
}

func TestValidateRejectsNonObjectPayload(t *testing.T) {
	v := Compile(mustSchema(t, tokenSchema))
	for _, payload := range []any{nil, "x", []any{1}, map[string]any(nil)} {
		_, err := v.Validate(payload)
		fields := fieldsOf(t, err)
		assert.Equal(t, "(root)", fields[0].Path)
		assert.Equal(t, RuleType, fields[0].Rule)
	}
}

func TestNumericKindsAndEnumComparison(t *testing.T) {
	v := Compile(mustSchema(t, `{"type":"object","properties":{"n":{"type":"integer","enum":[1,2]}}}`))
	for _, n := range []any{int(1), int64(2), float64(1), json.Number("2")} {
		_, err := v.Validate(map[string]any{"n": n})
		assert.NoError(t, err, "value %v (%T)", n, n)
	}
	_, err := v.Validate(map[string]any{"n": "1"})
	assert.Error(t, err)
}
