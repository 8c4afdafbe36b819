package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

var multicallABI = mustABI(registry.Multicall3ABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// chainCaller is the subset of ethclient.Client used by the multicall path.
type chainCaller interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Ethers batches read-only contract calls through Multicall3.aggregate3.
type Ethers struct {
	httpClient *http.Client
	chains     *registry.Registry
	dial       func(ctx context.Context, rpcURL string) (chainCaller, error)
}

func NewEthers(httpClient *http.Client, chains *registry.Registry) *Ethers {
	e := &Ethers{httpClient: httpClient, chains: chains}
	e.dial = e.dialRPC
	return e
}

func (e *Ethers) Name() string { return "ethers" }

func (e *Ethers) dialRPC(ctx context.Context, rpcURL string) (chainCaller, error) {
	opts := []rpc.ClientOption{}
	if e.httpClient != nil {
		opts = append(opts, rpc.WithHTTPClient(e.httpClient))
	}
	rc, err := rpc.DialOptions(ctx, rpcURL, opts...)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rc), nil
}

type contractCall struct {
	Index      int
	MethodName string
	Method     abi.Method
	Data       []byte
}

type callOutcome struct {
	Index      int    `json:"index"`
	MethodName string `json:"methodName"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

type multicallOutput struct {
	ChainID         string        `json:"chain_id"`
	ContractAddress string        `json:"contract_address"`
	BlockNumber     string        `json:"block_number"`
	Results         []callOutcome `json:"results"`
}

func (e *Ethers) Execute(ctx context.Context, req Request) (Result, error) {
	contractABI, err := parseContractABI(req.Payload["abi"])
	if err != nil {
		return Result{}, err
	}
	rawAddress, _ := req.Payload["contract_address"].(string)
	if !common.IsHexAddress(rawAddress) {
		return Result{}, clierr.New(clierr.CodeExecutor, fmt.Sprintf("contract_address %q is not a valid EVM address", rawAddress))
	}
	contract := common.HexToAddress(rawAddress)
	chainID, ok := req.Payload["chain_id"]
	if !ok || chainID == nil {
		return Result{}, clierr.New(clierr.CodeExecutor, "chain_id is required for contract queries")
	}
	chain, ok := e.chains.Lookup(chainID)
	if !ok {
		return Result{}, clierr.New(clierr.CodeExecutor,
			fmt.Sprintf("Unknown chain_id '%v'. Supported chains: %s", chainID, supportedChains(e.chains)))
	}
	if len(chain.EVMRPC) == 0 {
		return Result{}, clierr.New(clierr.CodeExecutor, "No EVM RPC endpoints configured for chain "+chain.CosmosID)
	}
	calls, err := encodeCalls(contractABI, req.Payload["calls"])
	if err != nil {
		return Result{}, err
	}

	batch := make([]call3, len(calls))
	for i, c := range calls {
		batch[i] = call3{Target: contract, AllowFailure: true, CallData: c.Data}
	}
	data, err := multicallABI.Pack("aggregate3", batch)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeExecutor, "encode multicall batch", err)
	}

	client, err := e.dial(ctx, chain.EVMRPC[0])
	if err != nil {
		return Result{}, batchError(chain, calls, "connect rpc", err)
	}
	defer client.Close()
	block, err := client.BlockNumber(ctx)
	if err != nil {
		return Result{}, batchError(chain, calls, "read block number", err)
	}
	multicall := common.HexToAddress(registry.Multicall3Address)
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: data}, new(big.Int).SetUint64(block))
	if err != nil {
		return Result{}, batchError(chain, calls, "execute multicall", err)
	}
	unpacked, err := multicallABI.Unpack("aggregate3", raw)
	if err != nil || len(unpacked) != 1 {
		return Result{}, batchError(chain, calls, "decode multicall response", err)
	}
	results := *abi.ConvertType(unpacked[0], new([]multicallResult)).(*[]multicallResult)
	if len(results) != len(calls) {
		return Result{}, batchError(chain, calls, "decode multicall response",
			fmt.Errorf("expected %d results, got %d", len(calls), len(results)))
	}

	out := multicallOutput{
		ChainID:         chain.CosmosID,
		ContractAddress: contract.Hex(),
		BlockNumber:     fmt.Sprintf("%d", block),
		Results:         make([]callOutcome, len(calls)),
	}
	for i, c := range calls {
		out.Results[i] = decodeOutcome(c, results[i])
	}
	return jsonResult(out)
}

func decodeOutcome(c contractCall, res multicallResult) callOutcome {
	outcome := callOutcome{Index: c.Index, MethodName: c.MethodName}
	if !res.Success {
		outcome.Error = "call reverted"
		if reason, err := abi.UnpackRevert(res.ReturnData); err == nil {
			outcome.Error = "call reverted: " + reason
		}
		return outcome
	}
	values, err := c.Method.Outputs.Unpack(res.ReturnData)
	if err != nil {
		outcome.Error = "decode result: " + err.Error()
		return outcome
	}
	outcome.Success = true
	outcome.Result = shapeOutputs(c.Method.Outputs, values)
	return outcome
}

// shapeOutputs returns a single value as-is, named outputs as an object and
// anything else as an array.
func shapeOutputs(args abi.Arguments, values []any) any {
	if len(values) == 1 {
		return jsonSafe(values[0])
	}
	named := len(args) == len(values)
	for _, a := range args {
		if a.Name == "" {
			named = false
			break
		}
	}
	if named {
		out := make(map[string]any, len(values))
		for i, a := range args {
			out[a.Name] = jsonSafe(values[i])
		}
		return out
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = jsonSafe(v)
	}
	return out
}

func batchError(chain registry.Chain, calls []contractCall, stage string, err error) error {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.MethodName
	}
	if err == nil {
		err = fmt.Errorf("empty response")
	}
	return clierr.Wrap(clierr.CodeNetwork,
		fmt.Sprintf("multicall on %s failed to %s (attempted calls: %s)", chain.CosmosID, stage, strings.Join(names, ", ")), err)
}

// parseContractABI accepts the ABI as a decoded JSON array or a JSON string.
func parseContractABI(raw any) (abi.ABI, error) {
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case []any:
		buf, err := json.Marshal(v)
		if err != nil {
			return abi.ABI{}, clierr.Wrap(clierr.CodeExecutor, "encode abi", err)
		}
		text = string(buf)
	default:
		return abi.ABI{}, clierr.New(clierr.CodeExecutor, "abi must be a JSON array or a JSON string")
	}
	parsed, err := abi.JSON(strings.NewReader(text))
	if err != nil {
		return abi.ABI{}, clierr.Wrap(clierr.CodeExecutor, "invalid abi", err)
	}
	return parsed, nil
}

func encodeCalls(contractABI abi.ABI, raw any) ([]contractCall, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, clierr.New(clierr.CodeExecutor, "calls must be a non-empty array of {methodName, arguments}")
	}
	calls := make([]contractCall, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, clierr.New(clierr.CodeExecutor, fmt.Sprintf("call #%d must be an object", i))
		}
		name, _ := obj["methodName"].(string)
		method, ok := contractABI.Methods[name]
		if !ok {
			return nil, clierr.New(clierr.CodeExecutor, fmt.Sprintf("call #%d: method %q not found in abi", i, name))
		}
		var args []any
		if rawArgs, present := obj["arguments"]; present && rawArgs != nil {
			if args, ok = rawArgs.([]any); !ok {
				return nil, clierr.New(clierr.CodeExecutor, fmt.Sprintf("call #%d (%s): arguments must be an array", i, name))
			}
		}
		if len(args) != len(method.Inputs) {
			return nil, clierr.New(clierr.CodeExecutor,
				fmt.Sprintf("call #%d (%s): expected %d arguments, got %d", i, name, len(method.Inputs), len(args)))
		}
		coerced := make([]any, len(args))
		for j, input := range method.Inputs {
			v, err := coerceArg(input.Type, args[j])
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeExecutor,
					fmt.Sprintf("call #%d (%s): argument %d (%s)", i, name, j, input.Type.String()), err)
			}
			coerced[j] = v
		}
		data, err := contractABI.Pack(name, coerced...)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeExecutor, fmt.Sprintf("call #%d (%s): encode", i, name), err)
		}
		calls = append(calls, contractCall{Index: i, MethodName: name, Method: method, Data: data})
	}
	return calls, nil
}
