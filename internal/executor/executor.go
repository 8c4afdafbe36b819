// Package executor turns a validated payload and an endpoint description into
// one upstream call and a normalized result. Each protocol is a separate
// Executor selected by the endpoint's executor field.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
	"github.com/ggonzalez94/insights-mcp/internal/security"
)

// DefaultName is used when an endpoint names no executor.
const DefaultName = "api"

type Request struct {
	Resource   string
	Action     string
	Endpoint   *catalog.Endpoint
	Payload    map[string]any
	BaseURL    string
	Decoration security.Decoration
}

// Result is the normalized upstream answer.
type Result struct {
	Status      int
	StatusText  string
	ContentType string
	Body        string
}

// Text renders the result the way tool callers receive it.
func (r Result) Text() string {
	return fmt.Sprintf("API Response (Status: %d):\n%s", r.Status, r.Body)
}

type Executor interface {
	Name() string
	Execute(ctx context.Context, req Request) (Result, error)
}

// Set maps selector names to executors. It is read-only after construction.
type Set struct {
	byName map[string]Executor
}

func NewSet(executors ...Executor) *Set {
	s := &Set{byName: make(map[string]Executor, len(executors))}
	for _, e := range executors {
		s.byName[strings.ToLower(e.Name())] = e
	}
	return s
}

// Deps are the collaborators shared by the built-in executors.
type Deps struct {
	HTTP   *httpx.Client
	Chains *registry.Registry
}

// Default registers api, rpc, lcd, gateway and ethers.
func Default(deps Deps) *Set {
	if deps.Chains == nil {
		deps.Chains = registry.Default()
	}
	return NewSet(
		NewAPI(deps.HTTP),
		NewRPC(deps.HTTP, deps.Chains),
		NewLCD(deps.HTTP, deps.Chains),
		NewGateway(deps.HTTP, deps.Chains),
		NewEthers(deps.HTTP.HTTPClient(), deps.Chains),
	)
}

// Get resolves a selector; the empty selector means DefaultName.
func (s *Set) Get(name string) (Executor, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultName
	}
	e, ok := s.byName[name]
	return e, ok
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
