// Package catalog holds the immutable endpoint descriptions served by the
// dispatcher. The catalog is decoded once at start-up and never mutated.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Pseudo-methods for endpoints that are not plain HTTP verbs.
const (
	MethodLocal = "LOCAL"
	MethodRPC   = "RPC"
	MethodLCD   = "LCD"
)

type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
)

type ExecutionParam struct {
	Name string        `json:"name"`
	In   ParamLocation `json:"in"`
}

// SchemeRef names one security scheme and the scopes it must grant.
type SchemeRef struct {
	Name   string
	Scopes []string
}

// SecurityRequirement is an AND-group: every scheme must be satisfied together.
// An endpoint lists requirements in OR order.
type SecurityRequirement []SchemeRef

func (r SecurityRequirement) String() string {
	if len(r) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(r))
	for _, ref := range r {
		names = append(names, ref.Name)
	}
	return strings.Join(names, "+")
}

type Endpoint struct {
	Name            string                        `json:"name"`
	Resource        string                        `json:"resource"`
	Topic           string                        `json:"topic,omitempty"`
	Description     string                        `json:"description"`
	InputSchema     map[string]any                `json:"input_schema"`
	Method          string                        `json:"method"`
	Path            string                        `json:"path"`
	Params          []ExecutionParam              `json:"params,omitempty"`
	BodyContentType string                        `json:"body_content_type,omitempty"`
	RawSecurity     openapi3.SecurityRequirements `json:"security,omitempty"`
	Executor        string                        `json:"executor,omitempty"`
	Resolver        string                        `json:"resolver,omitempty"`
	StaticResponse  any                           `json:"static_response,omitempty"`
	Snippets        *bool                         `json:"snippets,omitempty"`

	Security []SecurityRequirement `json:"-"`
}

// IsStatic reports whether the endpoint answers from its static payload.
func (e *Endpoint) IsStatic() bool {
	return e.Method == MethodLocal
}

func (e *Endpoint) SnippetsEnabled() bool {
	return e.Snippets == nil || *e.Snippets
}

// ParamsIn returns the execution parameters declared for one location.
func (e *Endpoint) ParamsIn(in ParamLocation) []ExecutionParam {
	out := make([]ExecutionParam, 0, len(e.Params))
	for _, p := range e.Params {
		if p.In == in {
			out = append(out, p)
		}
	}
	return out
}

type Resource struct {
	Name    string
	Topic   string
	Actions map[string]*Endpoint
}

// ActionNames returns the sorted action names of the resource.
func (r *Resource) ActionNames() []string {
	names := make([]string, 0, len(r.Actions))
	for name := range r.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Catalog struct {
	BaseURL   string
	Schemes   map[string]*openapi3.SecurityScheme
	Resources map[string]*Resource
}

type document struct {
	BaseURL         string                              `json:"base_url"`
	SecuritySchemes map[string]*openapi3.SecurityScheme `json:"security_schemes"`
	Endpoints       []*Endpoint                         `json:"endpoints"`
}

//go:embed data/catalog.yaml
var embedded []byte

// Default decodes the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Load decodes a catalog file, falling back to the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(buf)
}

// Parse decodes YAML or JSON catalog bytes and groups endpoints into resources.
func Parse(raw []byte) (*Catalog, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	cat := &Catalog{
		BaseURL:   strings.TrimRight(strings.TrimSpace(doc.BaseURL), "/"),
		Schemes:   doc.SecuritySchemes,
		Resources: map[string]*Resource{},
	}
	if cat.Schemes == nil {
		cat.Schemes = map[string]*openapi3.SecurityScheme{}
	}
	for i, ep := range doc.Endpoints {
		if ep == nil {
			return nil, fmt.Errorf("catalog endpoint #%d is empty", i)
		}
		if err := normalize(ep, cat.Schemes); err != nil {
			return nil, err
		}
		res, ok := cat.Resources[ep.Resource]
		if !ok {
			res = &Resource{Name: ep.Resource, Topic: ep.Topic, Actions: map[string]*Endpoint{}}
			cat.Resources[ep.Resource] = res
		}
		if res.Topic != ep.Topic {
			return nil, fmt.Errorf("resource %s declares conflicting topics %q and %q", ep.Resource, res.Topic, ep.Topic)
		}
		if _, dup := res.Actions[ep.Name]; dup {
			return nil, fmt.Errorf("duplicate action %s in resource %s", ep.Name, ep.Resource)
		}
		res.Actions[ep.Name] = ep
	}
	return cat, nil
}

// CheckSelectors verifies every executor and resolver selector is known.
// Unknown selectors are configuration errors surfaced at start-up.
func (c *Catalog) CheckSelectors(knownExecutor, knownResolver func(string) bool) error {
	var problems []string
	for _, name := range c.ResourceNames() {
		res := c.Resources[name]
		for _, action := range res.ActionNames() {
			ep := res.Actions[action]
			if ep.IsStatic() {
				continue
			}
			if ep.Executor != "" && !knownExecutor(ep.Executor) {
				problems = append(problems, fmt.Sprintf("%s/%s: unknown executor %q", name, action, ep.Executor))
			}
			if ep.Resolver != "" && !knownResolver(ep.Resolver) {
				problems = append(problems, fmt.Sprintf("%s/%s: unknown resolver %q", name, action, ep.Resolver))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid catalog selectors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ResourceNames returns all resource names sorted lexicographically.
func (c *Catalog) ResourceNames() []string {
	names := make([]string, 0, len(c.Resources))
	for name := range c.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeDocument reads YAML 1.2 (a JSON superset) and re-encodes it as JSON so
// the openapi3 unmarshalers run. Plain scalars such as y or off stay strings.
func decodeDocument(raw []byte) (document, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return document{}, err
	}
	buf, err := json.Marshal(jsonTree(tree))
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

// jsonTree rewrites non-string mapping keys, which encoding/json cannot marshal.
func jsonTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = jsonTree(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = jsonTree(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = jsonTree(item)
		}
		return t
	}
	return v
}

func normalize(ep *Endpoint, schemes map[string]*openapi3.SecurityScheme) error {
	ep.Name = strings.TrimSpace(ep.Name)
	ep.Resource = strings.TrimSpace(ep.Resource)
	if ep.Name == "" || ep.Resource == "" {
		return fmt.Errorf("catalog endpoint %q/%q needs both resource and name", ep.Resource, ep.Name)
	}
	if ep.Topic == "" {
		ep.Topic = DefaultTopic(ep.Resource)
	}
	ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
	if ep.Method == "" {
		ep.Method = "GET"
	}
	ep.Executor = strings.ToLower(strings.TrimSpace(ep.Executor))
	ep.Resolver = strings.ToLower(strings.TrimSpace(ep.Resolver))
	for _, p := range ep.Params {
		switch p.In {
		case InPath, InQuery, InHeader:
		default:
			return fmt.Errorf("%s/%s: parameter %s has unsupported location %q", ep.Resource, ep.Name, p.Name, p.In)
		}
	}
	ep.Security = make([]SecurityRequirement, 0, len(ep.RawSecurity))
	for _, raw := range ep.RawSecurity {
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		group := make(SecurityRequirement, 0, len(names))
		for _, name := range names {
			if _, ok := schemes[name]; !ok {
				return fmt.Errorf("%s/%s: security requirement references unknown scheme %q", ep.Resource, ep.Name, name)
			}
			group = append(group, SchemeRef{Name: name, Scopes: append([]string(nil), raw[name]...)})
		}
		ep.Security = append(ep.Security, group)
	}
	return nil
}

// DefaultTopic derives a topic from a namespace-qualified resource name.
func DefaultTopic(resource string) string {
	if i := strings.Index(resource, "_"); i > 0 {
		return resource[:i]
	}
	return resource
}
