package executor

import (
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

// MissingRoutingMessage is returned when a chain-routed call names neither an
// endpoint nor a chain.
const MissingRoutingMessage = "Missing 'endpoint' or 'chain_id'. Provide an explicit endpoint URL or a chain_id such as pacific-1, 1329 or eip155:1329."

type endpointKind struct {
	label string
	list  func(registry.Chain) []string
}

var (
	evmRPCKind    = endpointKind{label: "EVM RPC", list: func(c registry.Chain) []string { return c.EVMRPC }}
	cosmosRPCKind = endpointKind{label: "Cosmos RPC", list: func(c registry.Chain) []string { return c.CosmosRPC }}
	cosmosLCDKind = endpointKind{label: "Cosmos LCD", list: func(c registry.Chain) []string { return c.CosmosLCD }}
	gatewayKind   = endpointKind{label: "gateway", list: func(c registry.Chain) []string {
		if c.Gateway == "" {
			return nil
		}
		return []string{c.Gateway}
	}}
)

// resolveEndpoint applies the routing rule shared by rpc, lcd and gateway: an
// explicit endpoint wins, otherwise chain_id selects the first configured entry.
func resolveEndpoint(chains *registry.Registry, payload map[string]any, kind endpointKind) (string, error) {
	if raw, ok := payload["endpoint"].(string); ok && strings.TrimSpace(raw) != "" {
		endpoint, err := registry.NormalizeEndpoint(raw)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeExecutor, "invalid endpoint override", err)
		}
		return endpoint, nil
	}
	chainID, ok := payload["chain_id"]
	if !ok || chainID == nil || chainID == "" {
		return "", clierr.New(clierr.CodeExecutor, MissingRoutingMessage)
	}
	chain, ok := chains.Lookup(chainID)
	if !ok {
		return "", clierr.New(clierr.CodeExecutor,
			fmt.Sprintf("Unknown chain_id '%v'. Supported chains: %s", chainID, supportedChains(chains)))
	}
	list := kind.list(chain)
	if len(list) == 0 {
		return "", clierr.New(clierr.CodeExecutor,
			fmt.Sprintf("No %s endpoints configured for chain %s", kind.label, chain.CosmosID))
	}
	return strings.TrimSuffix(list[0], "/"), nil
}

func supportedChains(chains *registry.Registry) string {
	parts := []string{}
	for _, c := range chains.Chains() {
		parts = append(parts, c.CosmosID+" ("+strconv.FormatInt(c.EVMID, 10)+")")
	}
	return strings.Join(parts, ", ")
}
