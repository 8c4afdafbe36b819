package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/executor"
)

// ExtractABI replaces a contract metadata document with its abi field. A
// string-encoded ABI is decoded so callers always receive a JSON array.
func ExtractABI(raw executor.Result, _ map[string]any) (executor.Result, error) {
	body, err := decodeBody(raw)
	if err != nil {
		return executor.Result{}, err
	}
	found, ok := envelope(body, "abi")
	if !ok || found == nil {
		return executor.Result{}, fmt.Errorf("no abi field in contract response")
	}
	if s, isString := found.(string); isString {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return executor.Result{}, fmt.Errorf("abi field is not valid JSON: %w", err)
		}
		found = decoded
	}
	if _, isList := found.([]any); !isList {
		return executor.Result{}, fmt.Errorf("abi field is %T, not an array", found)
	}
	return withBody(raw, found)
}
