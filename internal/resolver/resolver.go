// Package resolver reshapes raw executor results for actions that declare a
// resolver selector.
package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/executor"
)

// Resolver transforms a successful result. Returning an error leaves the raw
// result in place.
type Resolver interface {
	Name() string
	Resolve(raw executor.Result, payload map[string]any) (executor.Result, error)
}

type Func struct {
	name string
	fn   func(raw executor.Result, payload map[string]any) (executor.Result, error)
}

func (f Func) Name() string { return f.name }

func (f Func) Resolve(raw executor.Result, payload map[string]any) (executor.Result, error) {
	return f.fn(raw, payload)
}

type Set struct {
	byName map[string]Resolver
}

func NewSet(resolvers ...Resolver) *Set {
	s := &Set{byName: make(map[string]Resolver, len(resolvers))}
	for _, r := range resolvers {
		s.byName[strings.ToLower(r.Name())] = r
	}
	return s
}

// Default registers extract_abi, search_assets and pointer_relationships.
func Default() *Set {
	return NewSet(
		Func{name: "extract_abi", fn: ExtractABI},
		Func{name: "search_assets", fn: SearchAssets},
		Func{name: "pointer_relationships", fn: PointerRelationships},
	)
}

func (s *Set) Get(name string) (Resolver, bool) {
	r, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

func (s *Set) Known(name string) bool {
	_, ok := s.Get(name)
	return ok
}

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func decodeBody(raw executor.Result) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("response body is not JSON: %w", err)
	}
	return v, nil
}

func withBody(raw executor.Result, v any) (executor.Result, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return executor.Result{}, err
	}
	raw.Body = strings.TrimRight(buf.String(), "\n")
	raw.ContentType = "application/json"
	return raw, nil
}

// envelope looks for key at the top level, then under data and result.
func envelope(v any, key string) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if found, ok := obj[key]; ok {
		return found, true
	}
	for _, wrapper := range []string{"data", "result"} {
		if inner, ok := obj[wrapper].(map[string]any); ok {
			if found, ok := inner[key]; ok {
				return found, true
			}
		}
	}
	return nil, false
}
