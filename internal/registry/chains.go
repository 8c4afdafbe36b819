package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Chain groups the upstream endpoints known for one network. The same entry is
// reachable by its Cosmos chain id, its EVM chain id and its CAIP-2 id.
type Chain struct {
	CosmosID  string
	EVMID     int64
	Name      string
	EVMRPC    []string
	CosmosRPC []string
	CosmosLCD []string
	Gateway   string
}

func (c Chain) CAIP2() string {
	return "eip155:" + strconv.FormatInt(c.EVMID, 10)
}

// Override replaces endpoint lists for a chain. Empty fields keep the default.
type Override struct {
	EVMRPC    []string `yaml:"evm_rpc" json:"evm_rpc,omitempty"`
	CosmosRPC []string `yaml:"cosmos_rpc" json:"cosmos_rpc,omitempty"`
	CosmosLCD []string `yaml:"cosmos_lcd" json:"cosmos_lcd,omitempty"`
	Gateway   string   `yaml:"gateway" json:"gateway,omitempty"`
}

var defaultChains = []Chain{
	{
		CosmosID:  "pacific-1",
		EVMID:     1329,
		Name:      "Sei Mainnet",
		EVMRPC:    []string{"https://evm-rpc.sei-apis.com"},
		CosmosRPC: []string{"https://rpc.sei-apis.com"},
		CosmosLCD: []string{"https://rest.sei-apis.com"},
		Gateway:   "https://gateway.sei.io/pacific-1",
	},
	{
		CosmosID:  "atlantic-2",
		EVMID:     1328,
		Name:      "Sei Testnet",
		EVMRPC:    []string{"https://evm-rpc-testnet.sei-apis.com"},
		CosmosRPC: []string{"https://rpc-testnet.sei-apis.com"},
		CosmosLCD: []string{"https://rest-testnet.sei-apis.com"},
		Gateway:   "https://gateway.sei.io/atlantic-2",
	},
	{
		CosmosID:  "arctic-1",
		EVMID:     713715,
		Name:      "Sei Devnet",
		EVMRPC:    []string{"https://evm-rpc-arctic-1.sei-apis.com"},
		CosmosRPC: []string{"https://rpc-arctic-1.sei-apis.com"},
		CosmosLCD: []string{"https://rest-arctic-1.sei-apis.com"},
		Gateway:   "https://gateway.sei.io/arctic-1",
	},
}

// Registry is read-only after construction.
type Registry struct {
	chains []Chain
	index  map[string]int
}

func Default() *Registry {
	return New(defaultChains)
}

func New(chains []Chain) *Registry {
	r := &Registry{
		chains: make([]Chain, len(chains)),
		index:  make(map[string]int, len(chains)*3),
	}
	for i, chain := range chains {
		chain.EVMRPC = append([]string(nil), chain.EVMRPC...)
		chain.CosmosRPC = append([]string(nil), chain.CosmosRPC...)
		chain.CosmosLCD = append([]string(nil), chain.CosmosLCD...)
		r.chains[i] = chain
		if chain.CosmosID != "" {
			r.index[strings.ToLower(chain.CosmosID)] = i
		}
		if chain.EVMID != 0 {
			r.index[strconv.FormatInt(chain.EVMID, 10)] = i
			r.index[chain.CAIP2()] = i
		}
	}
	return r
}

func (r *Registry) Chains() []Chain {
	out := make([]Chain, len(r.chains))
	copy(out, r.chains)
	return out
}

// Lookup accepts a Cosmos id, an EVM id (string or number) or a CAIP-2 id.
func (r *Registry) Lookup(id any) (Chain, bool) {
	key, err := NormalizeChainID(id)
	if err != nil {
		return Chain{}, false
	}
	i, ok := r.index[key]
	if !ok {
		return Chain{}, false
	}
	return r.chains[i], true
}

// WithOverrides returns a copy of the registry with endpoint lists replaced.
// Keys use any form Lookup understands.
func (r *Registry) WithOverrides(overrides map[string]Override) (*Registry, error) {
	chains := r.Chains()
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		norm, err := NormalizeChainID(key)
		if err != nil {
			return nil, err
		}
		i, ok := r.index[norm]
		if !ok {
			return nil, fmt.Errorf("override for unknown chain %q", key)
		}
		ov := overrides[key]
		for _, list := range [][]string{ov.EVMRPC, ov.CosmosRPC, ov.CosmosLCD} {
			for _, endpoint := range list {
				if _, err := NormalizeEndpoint(endpoint); err != nil {
					return nil, fmt.Errorf("chain %s: %w", key, err)
				}
			}
		}
		if len(ov.EVMRPC) > 0 {
			chains[i].EVMRPC = ov.EVMRPC
		}
		if len(ov.CosmosRPC) > 0 {
			chains[i].CosmosRPC = ov.CosmosRPC
		}
		if len(ov.CosmosLCD) > 0 {
			chains[i].CosmosLCD = ov.CosmosLCD
		}
		if strings.TrimSpace(ov.Gateway) != "" {
			gw, err := NormalizeEndpoint(ov.Gateway)
			if err != nil {
				return nil, fmt.Errorf("chain %s: %w", key, err)
			}
			chains[i].Gateway = gw
		}
	}
	return New(chains), nil
}

// NormalizeChainID maps the accepted chain id forms onto a single lookup key.
func NormalizeChainID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			return "", fmt.Errorf("empty chain id")
		}
		if strings.HasPrefix(s, "eip155:") {
			n, err := strconv.ParseInt(strings.TrimPrefix(s, "eip155:"), 10, 64)
			if err != nil || n <= 0 {
				return "", fmt.Errorf("invalid CAIP-2 chain id %q", v)
			}
			return "eip155:" + strconv.FormatInt(n, 10), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
		return s, nil
	case json.Number:
		return NormalizeChainID(v.String())
	case float64:
		if v != float64(int64(v)) || v <= 0 {
			return "", fmt.Errorf("invalid chain id %v", v)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return NormalizeChainID(int64(v))
	case int64:
		if v <= 0 {
			return "", fmt.Errorf("invalid chain id %d", v)
		}
		return strconv.FormatInt(v, 10), nil
	case nil:
		return "", fmt.Errorf("missing chain id")
	default:
		return "", fmt.Errorf("unsupported chain id type %T", id)
	}
}
