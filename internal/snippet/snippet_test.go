package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

func loadEndpoint(t *testing.T, resource, action string) (*catalog.Catalog, *catalog.Endpoint) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	res, ok := cat.Resources[resource]
	require.True(t, ok)
	ep, ok := res.Actions[action]
	require.True(t, ok)
	return cat, ep
}

func TestNormalizeLanguageAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"JS":         LangJavaScript,
		"typescript": LangJavaScript,
		" ts ":       LangJavaScript,
		"golang":     LangGo,
		"Python":     LangPython,
		"curl":       LangCurl,
	} {
		got, ok := NormalizeLanguage(alias)
		require.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}
	_, ok := NormalizeLanguage("cobol")
	assert.False(t, ok)
	_, ok = NormalizeLanguage("")
	assert.False(t, ok)
}

func TestRenderRejectsUnknownLanguage(t *testing.T) {
	_, err := Render("cobol", Request{Method: "GET", URL: "https://example.test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), UnsupportedMessage)
	assert.Equal(t, clierr.CodeInput, clierr.CodeOf(err))
}

func TestBuildAPIRequestWithCredentialPlaceholder(t *testing.T) {
	cat, ep := loadEndpoint(t, "insights_erc20", "get_erc20_holders")
	req, err := Build(ep, cat.Schemes, cat.BaseURL, registry.Default(), map[string]any{
		"chain_id":         "pacific-1",
		"contract_address": "0xabc",
		"limit":            float64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, cat.BaseURL+"/erc20/pacific-1/tokens/0xabc/holders?limit=5", req.URL)
	require.Len(t, req.Header, 1)
	assert.Equal(t, Header{Name: "x-api-key", Value: "<API_KEY_INSIGHTSAPIKEY>"}, req.Header[0])
	assert.Empty(t, req.Body)
}

func TestBuildKeepsMissingPathPlaceholders(t *testing.T) {
	cat, ep := loadEndpoint(t, "smart_contract", "download_abi")
	req, err := Build(ep, cat.Schemes, cat.BaseURL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cat.BaseURL+"/contracts/{contract_address}", req.URL)
}

func TestBuildPostBodyUsesRequestBody(t *testing.T) {
	cat, ep := loadEndpoint(t, "insights_address", "label_addresses")
	req, err := Build(ep, cat.Schemes, cat.BaseURL, nil, map[string]any{
		"chain_id": "pacific-1",
		"requestBody": map[string]any{
			"labels": []any{map[string]any{"address": "0x1", "label": "treasury"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Contains(t, req.Body, `"label": "treasury"`)
	names := make([]string, 0, len(req.Header))
	for _, h := range req.Header {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"Authorization", "Content-Type"}, names)
	assert.Contains(t, req.Header[0].Value, "BASIC_USERNAME_BASICAUTH")
}

func TestBuildRPCUsesChainTable(t *testing.T) {
	cat, ep := loadEndpoint(t, "general_rpc_lcd", "call_evm_rpc")
	req, err := Build(ep, cat.Schemes, cat.BaseURL, registry.Default(), map[string]any{
		"rpc_method": "eth_blockNumber",
		"chain_id":   "1329",
	})
	require.NoError(t, err)
	chain, _ := registry.Default().Lookup("pacific-1")
	assert.Equal(t, strings.TrimRight(chain.EVMRPC[0], "/"), req.URL)
	assert.Contains(t, req.Body, `"method": "eth_blockNumber"`)
	assert.Contains(t, req.Body, `"params": []`)
}

func TestBuildGatewayFallsBackToEndpointPlaceholder(t *testing.T) {
	cat, ep := loadEndpoint(t, "gateway_search", "get_gateway_tokens")
	req, err := Build(ep, cat.Schemes, cat.BaseURL, registry.Default(), map[string]any{
		"owner": "sei1xyz",
		"type":  []any{"cw20", "erc20"},
	})
	require.NoError(t, err)
	assert.Equal(t, "{endpoint}/accounts/sei1xyz/tokens?type=cw20&type=erc20", req.URL)
}

func TestBuildRejectsEthersEndpoints(t *testing.T) {
	cat, ep := loadEndpoint(t, "smart_contract", "query_contract")
	_, err := Build(ep, cat.Schemes, cat.BaseURL, registry.Default(), nil)
	require.Error(t, err)
	assert.Equal(t, NotSupported, err.Error())
}

func TestRenderEveryLanguage(t *testing.T) {
	req := Request{
		Method: "POST",
		URL:    "https://api.example.test/labels",
		Header: []Header{{Name: "Content-Type", Value: "application/json"}, {Name: "x-api-key", Value: "<API_KEY_X>"}},
		Body:   "{\n  \"owner\": \"o'brien\"\n}",
	}

	curl, err := Render("curl", req)
	require.NoError(t, err)
	assert.Contains(t, curl, "curl -X POST 'https://api.example.test/labels'")
	assert.Contains(t, curl, "-H 'x-api-key: <API_KEY_X>'")
	assert.Contains(t, curl, `o'\''brien`)

	py, err := Render("python", req)
	require.NoError(t, err)
	assert.Contains(t, py, "import requests")
	assert.Contains(t, py, `"x-api-key": "<API_KEY_X>"`)
	assert.Contains(t, py, "data=payload")

	js, err := Render("ts", req)
	require.NoError(t, err)
	assert.Contains(t, js, `await fetch("https://api.example.test/labels"`)
	assert.Contains(t, js, "body: JSON.stringify(")

	goSrc, err := Render("go", req)
	require.NoError(t, err)
	assert.Contains(t, goSrc, `http.NewRequest("POST", "https://api.example.test/labels", body)`)
	assert.Contains(t, goSrc, `req.Header.Set("x-api-key", "<API_KEY_X>")`)
}

func TestRenderWithoutBody(t *testing.T) {
	out, err := Render("curl", Request{Method: "GET", URL: "https://api.example.test/x"})
	require.NoError(t, err)
	assert.Equal(t, "curl -X GET 'https://api.example.test/x'\n", out)
}
