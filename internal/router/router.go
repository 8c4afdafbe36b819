// Package router resolves (resource, action) pairs against the catalog.
// Lookups are exact, case-sensitive map reads with no I/O.
package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/policy"
)

type Kind string

const (
	KindResource Kind = "resource"
	KindAction   Kind = "action"
)

// NotFoundError lists the valid alternatives so the caller can self-correct.
type NotFoundError struct {
	Kind      Kind
	Name      string
	Resource  string
	Available []string
}

func (e *NotFoundError) Error() string {
	available := strings.Join(e.Available, ", ")
	if e.Kind == KindAction {
		return fmt.Sprintf("Unknown action '%s' for resource '%s'. Available actions: %s", e.Name, e.Resource, available)
	}
	return fmt.Sprintf("Unknown resource '%s'. Available resources: %s", e.Name, available)
}

type Router struct {
	resources map[string]*catalog.Resource
	names     []string
	topics    map[string][]string
}

// New indexes the catalog resources whose topic passes the allowlist.
func New(cat *catalog.Catalog, allowedTopics []string) *Router {
	r := &Router{
		resources: map[string]*catalog.Resource{},
		topics:    map[string][]string{},
	}
	for _, name := range cat.ResourceNames() {
		res := cat.Resources[name]
		if !policy.TopicAllowed(allowedTopics, res.Topic) {
			continue
		}
		r.resources[name] = res
		r.names = append(r.names, name)
		r.topics[res.Topic] = append(r.topics[res.Topic], name)
	}
	return r
}

// Resources returns the sorted resource names.
func (r *Router) Resources() []string {
	return append([]string(nil), r.names...)
}

func (r *Router) FindResource(name string) (*catalog.Resource, error) {
	res, ok := r.resources[name]
	if !ok {
		nf := &NotFoundError{Kind: KindResource, Name: name, Available: r.Resources()}
		return nil, clierr.Wrap(clierr.CodeRouting, "resource lookup", nf)
	}
	return res, nil
}

func (r *Router) FindAction(resource, action string) (*catalog.Endpoint, error) {
	res, err := r.FindResource(resource)
	if err != nil {
		return nil, err
	}
	ep, ok := res.Actions[action]
	if !ok {
		nf := &NotFoundError{Kind: KindAction, Name: action, Resource: resource, Available: res.ActionNames()}
		return nil, clierr.Wrap(clierr.CodeRouting, "action lookup", nf)
	}
	return ep, nil
}

// Topics returns the sorted topic names.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// ResourcesForTopic returns the sorted resources of one topic namespace.
func (r *Router) ResourcesForTopic(topic string) []string {
	return append([]string(nil), r.topics[topic]...)
}
