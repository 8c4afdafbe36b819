package resolver

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/executor"
)

type pointerDirection struct {
	kind         string
	pointerIsEVM bool
}

// Pointer registrations on Sei: CW/native pointers are EVM contracts fronting a
// Cosmos asset, ERC pointers are CosmWasm contracts fronting an EVM asset.
var pointerTags = map[string]pointerDirection{
	"CREATE_CW20_POINTER":   {kind: "cw20", pointerIsEVM: true},
	"CREATE_CW721_POINTER":  {kind: "cw721", pointerIsEVM: true},
	"CREATE_NATIVE_POINTER": {kind: "native", pointerIsEVM: true},
	"CREATE_ERC20_POINTER":  {kind: "erc20", pointerIsEVM: false},
	"CREATE_ERC721_POINTER": {kind: "erc721", pointerIsEVM: false},
}

// PointerRelationships annotates each transaction with pointer, pointee and
// pointer_kind, or is_pointer=false when the entry is not a registration.
func PointerRelationships(raw executor.Result, _ map[string]any) (executor.Result, error) {
	body, err := decodeBody(raw)
	if err != nil {
		return executor.Result{}, err
	}
	list, container, key := transactionList(body)
	if list == nil {
		return executor.Result{}, fmt.Errorf("no transaction list in pointer response")
	}
	annotated := make([]any, len(list))
	for i, item := range list {
		annotated[i] = annotatePointer(item)
	}
	if container == nil {
		return withBody(raw, annotated)
	}
	container[key] = annotated
	return withBody(raw, body)
}

func transactionList(body any) ([]any, map[string]any, string) {
	if list, ok := body.([]any); ok {
		return list, nil, ""
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, nil, ""
	}
	for _, key := range []string{"transactions", "items", "data", "results"} {
		if list, ok := obj[key].([]any); ok {
			return list, obj, key
		}
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		for _, key := range []string{"transactions", "items"} {
			if list, ok := inner[key].([]any); ok {
				return list, inner, key
			}
		}
	}
	return nil, nil, ""
}

func annotatePointer(item any) any {
	obj, ok := item.(map[string]any)
	if !ok {
		return item
	}
	out := make(map[string]any, len(obj)+3)
	for k, v := range obj {
		out[k] = v
	}
	tag := ""
	for _, field := range []string{"type", "tx_type", "action", "method"} {
		if s, ok := obj[field].(string); ok {
			tag = strings.ToUpper(strings.TrimSpace(s))
			break
		}
	}
	dir, ok := pointerTags[tag]
	if !ok {
		out["is_pointer"] = false
		return out
	}
	evm, cosmos := obj["evm_address"], obj["cosmos_address"]
	out["is_pointer"] = true
	out["pointer_kind"] = dir.kind
	if dir.pointerIsEVM {
		out["pointer"], out["pointee"] = evm, cosmos
	} else {
		out["pointer"], out["pointee"] = cosmos, evm
	}
	return out
}
