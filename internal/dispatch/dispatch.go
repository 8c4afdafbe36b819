// Package dispatch is the execution engine behind every tool call. It routes a
// (resource, action) pair to its endpoint, validates the payload, negotiates
// credentials, runs the selected executor and applies the optional resolver.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/executor"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/journal"
	"github.com/ggonzalez94/insights-mcp/internal/metrics"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
	"github.com/ggonzalez94/insights-mcp/internal/resolver"
	"github.com/ggonzalez94/insights-mcp/internal/router"
	"github.com/ggonzalez94/insights-mcp/internal/schema"
	"github.com/ggonzalez94/insights-mcp/internal/security"
	"github.com/ggonzalez94/insights-mcp/internal/snippet"
)

// StaticExecutor labels LOCAL endpoints in metrics and journal rows.
const StaticExecutor = "static"

// Recorder persists one row per invocation. *journal.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

type Options struct {
	Catalog *catalog.Catalog
	// Topics restricts the exposed resources; empty exposes everything.
	Topics []string
	// BaseURL overrides the catalog base URL for the api executor.
	BaseURL    string
	Executors  *executor.Set
	Resolvers  *resolver.Set
	Negotiator *security.Negotiator
	Chains     *registry.Registry
	Metrics    *metrics.Metrics
	Journal    Recorder
	Logger     zerolog.Logger
	Now        func() time.Time
	NewID      func() string
}

type Dispatcher struct {
	catalog    *catalog.Catalog
	router     *router.Router
	baseURL    string
	execs      *executor.Set
	resolvers  *resolver.Set
	negotiator *security.Negotiator
	chains     *registry.Registry
	metrics    *metrics.Metrics
	journal    Recorder
	validators map[string]*schema.Validator
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// New checks every executor and resolver selector and compiles every input
// schema. Unknown selectors fail here rather than on the first call.
func New(opts Options) (*Dispatcher, error) {
	if opts.Catalog == nil {
		return nil, clierr.New(clierr.CodeConfig, "dispatcher needs a catalog")
	}
	if opts.Executors == nil {
		return nil, clierr.New(clierr.CodeConfig, "dispatcher needs an executor set")
	}
	if opts.Resolvers == nil {
		opts.Resolvers = resolver.Default()
	}
	if opts.Chains == nil {
		opts.Chains = registry.Default()
	}
	if opts.Negotiator == nil {
		opts.Negotiator = security.NewNegotiator(opts.Catalog.Schemes, security.Options{Logger: opts.Logger})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if err := opts.Catalog.CheckSelectors(opts.Executors.Known, opts.Resolvers.Known); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "load catalog", err)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = opts.Catalog.BaseURL
	}

	d := &Dispatcher{
		catalog:    opts.Catalog,
		router:     router.New(opts.Catalog, opts.Topics),
		baseURL:    baseURL,
		execs:      opts.Executors,
		resolvers:  opts.Resolvers,
		negotiator: opts.Negotiator,
		chains:     opts.Chains,
		metrics:    opts.Metrics,
		journal:    opts.Journal,
		validators: map[string]*schema.Validator{},
		log:        opts.Logger,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	for _, name := range opts.Catalog.ResourceNames() {
		res := opts.Catalog.Resources[name]
		for _, action := range res.ActionNames() {
			v := schema.Compile(res.Actions[action].InputSchema)
			if err := v.Err(); err != nil {
				d.log.Warn().Err(err).Str("resource", name).Str("action", action).
					Msg("input schema is malformed; action accepts only an empty payload")
			}
			d.validators[key(name, action)] = v
		}
	}
	return d, nil
}

func key(resource, action string) string {
	return resource + "/" + action
}

// Router exposes the lookup layer for front-ends that list topics.
func (d *Dispatcher) Router() *router.Router {
	return d.router
}

// Outcome is the terminal state of one invocation.
type Outcome struct {
	RequestID string
	Text      string
	Body      string
	IsError   bool
	Status    int
	Code      clierr.Code
	Executor  string
	Latency   time.Duration
	Err       error
}

// Invoke runs the whole pipeline. It never returns an error: failures become
// an error Outcome whose Text is the caller-facing diagnostic.
func (d *Dispatcher) Invoke(ctx context.Context, resource, action string, payload any) Outcome {
	start := d.now()
	out := Outcome{RequestID: d.newID()}
	log := d.log.With().Str("request_id", out.RequestID).Str("resource", resource).Str("action", action).Logger()

	result, execName, err := d.invoke(ctx, log, resource, action, payload)
	elapsed := d.now().Sub(start)
	out.Executor = execName
	out.Latency = elapsed
	if err != nil {
		out.IsError = true
		out.Err = err
		out.Code = clierr.CodeOf(err)
		out.Text = Describe(err)
		out.Status = statusOf(err)
	} else {
		out.Status = result.Status
		out.Text = result.Text()
		out.Body = result.Body
	}

	outcome := clierr.TypeName(out.Code)
	resLabel, actLabel := resource, action
	if out.Code == clierr.CodeRouting {
		resLabel, actLabel = "(unknown)", "(unknown)"
	}
	d.metrics.ObserveInvocation(resLabel, actLabel, outcome)
	d.record(ctx, log, journal.Entry{
		RequestID:  out.RequestID,
		Resource:   resource,
		Action:     action,
		Executor:   execName,
		Status:     out.Status,
		ErrorType:  errorType(out),
		Latency:    elapsed,
		RecordedAt: start,
	})

	log.Debug().Str("executor", execName).Dur("duration", elapsed).Str("outcome", outcome).Msg("invocation finished")
	return out
}

func (d *Dispatcher) invoke(ctx context.Context, log zerolog.Logger, resource, action string, payload any) (executor.Result, string, error) {
	ep, err := d.router.FindAction(resource, action)
	if err != nil {
		return executor.Result{}, "", err
	}
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return executor.Result{}, "", clierr.New(clierr.CodeInput,
			fmt.Sprintf("Payload for %s/%s must be a JSON object, got %s", resource, action, kindOf(payload)))
	}
	validated, err := d.validators[key(resource, action)].Validate(obj)
	if err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			return executor.Result{}, "", clierr.Wrap(clierr.CodeValidation, "validate payload", err)
		}
		perr := &PayloadError{Resource: resource, Action: action, Fields: verr, Schema: compactJSON(ep.InputSchema)}
		return executor.Result{}, "", clierr.Wrap(clierr.CodeValidation, "validate payload", perr)
	}

	if ep.IsStatic() {
		res, err := executor.StaticResult(ep.StaticResponse)
		return res, StaticExecutor, err
	}

	decision := d.negotiator.Negotiate(ctx, ep.Security)
	if decision.Unauthenticated() {
		d.metrics.ObserveUnauthenticated(resource, action)
	}

	exec, ok := d.execs.Get(ep.Executor)
	if !ok {
		// CheckSelectors ran in New, so this only trips on a hand-built catalog.
		return executor.Result{}, ep.Executor, clierr.New(clierr.CodeConfig, "unknown executor "+ep.Executor)
	}
	execStart := d.now()
	raw, err := exec.Execute(ctx, executor.Request{
		Resource:   resource,
		Action:     action,
		Endpoint:   ep,
		Payload:    validated,
		BaseURL:    d.baseURL,
		Decoration: decision.Decoration,
	})
	d.metrics.ObserveExecutor(exec.Name(), d.now().Sub(execStart))
	if err != nil {
		log.Info().Err(err).Str("executor", exec.Name()).Msg("executor returned an error")
		return executor.Result{}, exec.Name(), err
	}

	if ep.Resolver == "" {
		return raw, exec.Name(), nil
	}
	res, ok := d.resolvers.Get(ep.Resolver)
	if !ok {
		return raw, exec.Name(), nil
	}
	resolved, err := safeResolve(res, raw, validated)
	if err != nil {
		log.Warn().Err(err).Str("resolver", res.Name()).Msg("resolver failed; returning the raw result")
		return raw, exec.Name(), nil
	}
	return resolved, exec.Name(), nil
}

// safeResolve turns a resolver panic into an error so the raw result survives.
func safeResolve(r resolver.Resolver, raw executor.Result, payload map[string]any) (out executor.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolver %s panicked: %v", r.Name(), p)
		}
	}()
	return r.Resolve(raw, payload)
}

func (d *Dispatcher) record(ctx context.Context, log zerolog.Logger, e journal.Entry) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Msg("journal write failed")
	}
}

func errorType(o Outcome) string {
	if !o.IsError {
		return ""
	}
	return clierr.TypeName(o.Code)
}

func statusOf(err error) int {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case map[string]any:
		// Only a typed-nil map reaches here; non-nil objects are accepted.
		return "null object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// Snippet renders example client code for one action. Actions that opt out
// report snippet.NotSupported before the language is considered.
func (d *Dispatcher) Snippet(resource, action, language string, payload map[string]any) (string, error) {
	ep, err := d.router.FindAction(resource, action)
	if err != nil {
		return "", err
	}
	if !ep.SnippetsEnabled() || ep.IsStatic() {
		return "", clierr.New(clierr.CodeInput, snippet.NotSupported)
	}
	if _, ok := snippet.NormalizeLanguage(language); !ok {
		return snippet.Render(language, snippet.Request{})
	}
	req, err := snippet.Build(ep, d.catalog.Schemes, d.baseURL, d.chains, payload)
	if err != nil {
		return "", err
	}
	return snippet.Render(language, req)
}
