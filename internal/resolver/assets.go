package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/executor"
)

const (
	defaultAssetLimit = 10
	maxAssetLimit     = 50
)

var assetMatchFields = []string{"name", "symbol", "id", "identifier", "denom", "address"}

type assetSearch struct {
	Query string `json:"query"`
	Total int    `json:"total"`
	Count int    `json:"count"`
	Items []any  `json:"items"`
}

// SearchAssets filters a gateway asset list by a case-insensitive substring
// match on the usual identifying fields and caps the result size.
func SearchAssets(raw executor.Result, payload map[string]any) (executor.Result, error) {
	body, err := decodeBody(raw)
	if err != nil {
		return executor.Result{}, err
	}
	list, err := assetList(body)
	if err != nil {
		return executor.Result{}, err
	}
	query, _ := payload["query"].(string)
	needle := strings.ToLower(strings.TrimSpace(query))
	limit := assetLimit(payload["limit"])

	matched := make([]any, 0, limit)
	total := 0
	for _, item := range list {
		if needle != "" && !assetMatches(item, needle) {
			continue
		}
		total++
		if len(matched) < limit {
			matched = append(matched, item)
		}
	}
	return withBody(raw, assetSearch{Query: query, Total: total, Count: len(matched), Items: matched})
}

func assetList(body any) ([]any, error) {
	if list, ok := body.([]any); ok {
		return list, nil
	}
	for _, key := range []string{"data", "items", "results"} {
		if found, ok := envelope(body, key); ok {
			if list, ok := found.([]any); ok {
				return list, nil
			}
		}
	}
	return nil, fmt.Errorf("no asset list in gateway response")
}

func assetMatches(item any, needle string) bool {
	obj, ok := item.(map[string]any)
	if !ok {
		return false
	}
	for _, field := range assetMatchFields {
		if s, ok := obj[field].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func assetLimit(raw any) int {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case json.Number:
		n, _ = v.Float64()
	case string:
		n, _ = strconv.ParseFloat(v, 64)
	default:
		return defaultAssetLimit
	}
	if n < 1 || math.IsNaN(n) {
		return defaultAssetLimit
	}
	if n > maxAssetLimit {
		return maxAssetLimit
	}
	return int(n)
}
