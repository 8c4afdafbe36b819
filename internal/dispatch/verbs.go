package dispatch

import (
	"errors"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/router"
	"github.com/ggonzalez94/insights-mcp/internal/schema"
)

type ResourceList struct {
	Resources []string `json:"resources"`
}

type ActionSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ActionList struct {
	Resource string          `json:"resource"`
	Actions  []ActionSummary `json:"actions"`
}

type ActionSchema struct {
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Schema   map[string]any `json:"schema"`
}

// ListResources returns the sorted resource names, optionally limited to one topic.
func (d *Dispatcher) ListResources(topic string) (ResourceList, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ResourceList{Resources: d.router.Resources()}, nil
	}
	names := d.router.ResourcesForTopic(topic)
	if len(names) == 0 {
		return ResourceList{}, clierr.New(clierr.CodeRouting,
			fmt.Sprintf("Unknown topic '%s'. Available topics: %s", topic, strings.Join(d.router.Topics(), ", ")))
	}
	return ResourceList{Resources: names}, nil
}

// ListResourceActions returns the actions of one resource sorted by name.
func (d *Dispatcher) ListResourceActions(resource string) (ActionList, error) {
	res, err := d.router.FindResource(resource)
	if err != nil {
		return ActionList{}, err
	}
	out := ActionList{Resource: res.Name, Actions: make([]ActionSummary, 0, len(res.Actions))}
	for _, name := range res.ActionNames() {
		out.Actions = append(out.Actions, ActionSummary{Name: name, Description: res.Actions[name].Description})
	}
	return out, nil
}

// GetResourceActionSchema returns the raw input schema tree of one action.
func (d *Dispatcher) GetResourceActionSchema(resource, action string) (ActionSchema, error) {
	ep, err := d.router.FindAction(resource, action)
	if err != nil {
		return ActionSchema{}, err
	}
	return ActionSchema{Resource: resource, Action: action, Schema: ep.InputSchema}, nil
}

// PayloadError is a schema violation plus the schema the caller should follow.
type PayloadError struct {
	Resource string
	Action   string
	Fields   *schema.ValidationError
	Schema   string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("Invalid payload for %s/%s: %s. Expected schema: %s", e.Resource, e.Action, e.Fields.Error(), e.Schema)
}

func (e *PayloadError) Unwrap() error { return e.Fields }

// Describe converts any pipeline error into the plain diagnostic returned to
// callers. Routing and payload errors drop the internal wrapping context.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var nf *router.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	var perr *PayloadError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	if typed, ok := clierr.As(err); ok && typed.Code == clierr.CodeNetwork {
		return "Request failed: " + typed.Error()
	}
	return err.Error()
}
