package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/executor"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/journal"
	"github.com/ggonzalez94/insights-mcp/internal/metrics"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
	"github.com/ggonzalez94/insights-mcp/internal/resolver"
	"github.com/ggonzalez94/insights-mcp/internal/router"
	"github.com/ggonzalez94/insights-mcp/internal/security"
	"github.com/ggonzalez94/insights-mcp/internal/snippet"
)

type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("network disabled in test")
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memoryJournal) Record(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryJournal) last() journal.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

type fixture struct {
	d         *Dispatcher
	metrics   *metrics.Metrics
	journal   *memoryJournal
	transport *countingTransport
}

type fixtureOptions struct {
	baseURL   string
	env       map[string]string
	resolvers *resolver.Set
	offline   bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	client := httpx.New(0)
	f := &fixture{metrics: metrics.New(), journal: &memoryJournal{}}
	if opts.offline {
		f.transport = &countingTransport{}
		client.HTTPClient().Transport = f.transport
	}
	env := opts.env
	negotiator := security.NewNegotiator(cat.Schemes, security.Options{
		HTTPClient: client.HTTPClient(),
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Logger: zerolog.Nop(),
	})
	chains := registry.Default()
	f.d, err = New(Options{
		Catalog:    cat,
		BaseURL:    opts.baseURL,
		Executors:  executor.Default(executor.Deps{HTTP: client, Chains: chains}),
		Resolvers:  opts.resolvers,
		Negotiator: negotiator,
		Chains:     chains,
		Metrics:    f.metrics,
		Journal:    f.journal,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func TestInvokeReportsEveryMissingRequiredField(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	out := f.d.Invoke(context.Background(), "insights_erc20", "get_erc20_token_info", map[string]any{})
	require.True(t, out.IsError)
	assert.Equal(t, clierr.CodeValidation, out.Code)
	assert.Contains(t, out.Text, "Invalid payload for insights_erc20/get_erc20_token_info")
	assert.Contains(t, out.Text, "missing required property 'chain_id'")
	assert.Contains(t, out.Text, "missing required property 'contract_address'")
	assert.Contains(t, out.Text, "Expected schema: {")
	assert.Zero(t, f.transport.calls.Load())

	entry := f.journal.last()
	assert.Equal(t, "validation_error", entry.ErrorType)
	assert.Equal(t, out.RequestID, entry.RequestID)
}

func TestInvokeRPCWithoutRoutingNeverTouchesNetwork(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	out := f.d.Invoke(context.Background(), "general_rpc_lcd", "call_evm_rpc", map[string]any{"rpc_method": "eth_blockNumber"})
	require.True(t, out.IsError)
	assert.True(t, strings.HasPrefix(out.Text, "Missing 'endpoint' or 'chain_id'"), out.Text)
	assert.Equal(t, clierr.CodeExecutor, out.Code)
	assert.Equal(t, "rpc", out.Executor)
	assert.Zero(t, f.transport.calls.Load())
}

func TestGetResourceActionSchema(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	got, err := f.d.GetResourceActionSchema("smart_contract", "download_abi")
	require.NoError(t, err)
	assert.Equal(t, "smart_contract", got.Resource)
	assert.Equal(t, "download_abi", got.Action)
	assert.Contains(t, got.Schema["required"], "contract_address")
}

func TestRoutingErrorsListSortedAlternatives(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	out := f.d.Invoke(context.Background(), "nope", "x", map[string]any{})
	require.True(t, out.IsError)
	assert.Equal(t, clierr.CodeRouting, out.Code)
	assert.Equal(t, "Unknown resource 'nope'. Available resources: gateway_search, general_rpc_lcd, insights_address, insights_erc20, insights_pointer, network_info, smart_contract", out.Text)

	_, err := f.d.ListResourceActions("smart_contract")
	require.NoError(t, err)
	out = f.d.Invoke(context.Background(), "smart_contract", "nope", map[string]any{})
	assert.Equal(t, "Unknown action 'nope' for resource 'smart_contract'. Available actions: download_abi, get_contract_info, query_contract", out.Text)

	var nf *router.NotFoundError
	_, err = f.d.GetResourceActionSchema("smart_contract", "nope")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, router.KindAction, nf.Kind)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `insights_mcp_invocations_total{action="(unknown)",outcome="routing_error",resource="(unknown)"} 1`)
}

func TestInvokeRejectsNonObjectPayload(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	for want, payload := range map[string]any{
		"null":        nil,
		"array":       []any{1},
		"string":      "x",
		"null object": map[string]any(nil),
	} {
		out := f.d.Invoke(context.Background(), "smart_contract", "download_abi", payload)
		require.True(t, out.IsError)
		assert.Equal(t, clierr.CodeInput, out.Code)
		assert.Contains(t, out.Text, "must be a JSON object, got "+want)
	}
}

func TestListResources(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	all, err := f.d.ListResources("")
	require.NoError(t, err)
	assert.Len(t, all.Resources, 7)
	assert.Equal(t, "gateway_search", all.Resources[0])

	contracts, err := f.d.ListResources("contracts")
	require.NoError(t, err)
	assert.Equal(t, []string{"smart_contract"}, contracts.Resources)

	_, err = f.d.ListResources("unknown")
	require.Error(t, err)
	assert.Equal(t, clierr.CodeRouting, clierr.CodeOf(err))

	actions, err := f.d.ListResourceActions("general_rpc_lcd")
	require.NoError(t, err)
	require.Len(t, actions.Actions, 3)
	assert.Equal(t, "call_cosmos_rpc", actions.Actions[0].Name)
	assert.NotEmpty(t, actions.Actions[0].Description)
}

func TestStaticEndpointNeedsNoNetwork(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	out := f.d.Invoke(context.Background(), "network_info", "list_supported_chains", map[string]any{})
	require.False(t, out.IsError, out.Text)
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, StaticExecutor, out.Executor)
	assert.True(t, strings.HasPrefix(out.Text, "API Response (Status: 200):\n"))
	assert.Contains(t, out.Text, `"chain_id": "pacific-1"`)
	assert.Zero(t, f.transport.calls.Load())
}

func newUpstream(t *testing.T, contentType, body string, status int, seen *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.Header.Clone()
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInvokeAppliesSecurityAndResolver(t *testing.T) {
	var seen http.Header
	srv := newUpstream(t, "application/json",
		`{"compiler":"solc-0.8.20","abi":[{"type":"function","name":"decimals","inputs":[],"outputs":[{"type":"uint8"}]}]}`,
		http.StatusOK, &seen)
	f := newFixture(t, fixtureOptions{
		baseURL: srv.URL,
		env:     map[string]string{"API_KEY_INSIGHTSAPIKEY": "k-123"},
	})

	out := f.d.Invoke(context.Background(), "smart_contract", "download_abi", map[string]any{"contract_address": "0xabc"})
	require.False(t, out.IsError, out.Text)
	assert.Equal(t, "k-123", seen.Get("x-api-key"))
	assert.Contains(t, out.Text, `"name": "decimals"`)
	assert.NotContains(t, out.Text, "compiler")
	assert.Equal(t, "api", out.Executor)

	entry := f.journal.last()
	assert.Equal(t, 200, entry.Status)
	assert.Empty(t, entry.ErrorType)
	n, err := testutil.GatherAndCount(f.metrics.Registry(), "insights_mcp_unauthenticated_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolverFailureReturnsRawResult(t *testing.T) {
	srv := newUpstream(t, "text/html", "<html>maintenance</html>", http.StatusOK, nil)
	f := newFixture(t, fixtureOptions{baseURL: srv.URL})

	out := f.d.Invoke(context.Background(), "smart_contract", "download_abi", map[string]any{"contract_address": "0xabc"})
	require.False(t, out.IsError, out.Text)
	assert.Equal(t, "API Response (Status: 200):\n<html>maintenance</html>", out.Text)
	n, err := testutil.GatherAndCount(f.metrics.Registry(), "insights_mcp_unauthenticated_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type panicResolver struct{ name string }

func (p panicResolver) Name() string { return p.name }

func (panicResolver) Resolve(executor.Result, map[string]any) (executor.Result, error) {
	panic("boom")
}

func TestResolverPanicReturnsRawResult(t *testing.T) {
	srv := newUpstream(t, "application/json", `{"abi":[]}`, http.StatusOK, nil)
	f := newFixture(t, fixtureOptions{
		baseURL:   srv.URL,
		resolvers: resolver.NewSet(panicResolver{"extract_abi"}, panicResolver{"search_assets"}, panicResolver{"pointer_relationships"}),
	})

	out := f.d.Invoke(context.Background(), "smart_contract", "download_abi", map[string]any{"contract_address": "0xabc"})
	require.False(t, out.IsError, out.Text)
	assert.Equal(t, "API Response (Status: 200):\n{\n  \"abi\": []\n}", out.Text)
}

func TestUpstreamErrorCarriesStatus(t *testing.T) {
	srv := newUpstream(t, "application/json", `{"error":"token not found"}`, http.StatusNotFound, nil)
	f := newFixture(t, fixtureOptions{baseURL: srv.URL})

	out := f.d.Invoke(context.Background(), "insights_erc20", "get_erc20_token_info", map[string]any{
		"chain_id":         "pacific-1",
		"contract_address": "0x0000000000000000000000000000000000000001",
	})
	require.True(t, out.IsError)
	assert.Equal(t, clierr.CodeNetwork, out.Code)
	assert.Equal(t, 404, out.Status)
	assert.True(t, strings.HasPrefix(out.Text, "Request failed: "), out.Text)
	assert.Contains(t, out.Text, "token not found")
	assert.Equal(t, "network_error", f.journal.last().ErrorType)
}

func TestNewRejectsUnknownSelectors(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
base_url: https://example.test
endpoints:
  - resource: demo_things
    name: fetch
    executor: grpc
    input_schema: {type: object}
`))
	require.NoError(t, err)
	_, err = New(Options{Catalog: cat, Executors: executor.Default(executor.Deps{HTTP: httpx.New(0)}), Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeConfig, clierr.CodeOf(err))
	assert.Contains(t, err.Error(), `unknown executor "grpc"`)
}

func TestMalformedSchemaFailsSafe(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
base_url: https://example.test
endpoints:
  - resource: demo_things
    name: fetch
    method: LOCAL
    static_response: {ok: true}
    input_schema: {type: string}
`))
	require.NoError(t, err)
	d, err := New(Options{Catalog: cat, Executors: executor.Default(executor.Deps{HTTP: httpx.New(0)}), Logger: zerolog.Nop()})
	require.NoError(t, err)

	out := d.Invoke(context.Background(), "demo_things", "fetch", map[string]any{"x": 1})
	require.True(t, out.IsError)
	assert.Contains(t, out.Text, "unrecognized key 'x'")

	out = d.Invoke(context.Background(), "demo_things", "fetch", map[string]any{})
	require.False(t, out.IsError, out.Text)
}

func TestSnippet(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	_, err := f.d.Snippet("smart_contract", "query_contract", "curl", nil)
	require.Error(t, err)
	assert.Equal(t, snippet.NotSupported, err.Error())

	_, err = f.d.Snippet("smart_contract", "download_abi", "cobol", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), snippet.UnsupportedMessage)

	_, err = f.d.Snippet("smart_contract", "download_abi", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), snippet.UnsupportedMessage)

	out, err := f.d.Snippet("smart_contract", "download_abi", "curl", map[string]any{"contract_address": "0xabc"})
	require.NoError(t, err)
	assert.Contains(t, out, "/contracts/0xabc")
	assert.Contains(t, out, "x-api-key: <API_KEY_INSIGHTSAPIKEY>")
}

func TestConcurrentInvocations(t *testing.T) {
	f := newFixture(t, fixtureOptions{offline: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.d.Invoke(context.Background(), "network_info", "list_supported_chains", map[string]any{})
			assert.False(t, out.IsError)
		}()
	}
	wg.Wait()
	f.journal.mu.Lock()
	defer f.journal.mu.Unlock()
	assert.Len(t, f.journal.entries, 16)
}
