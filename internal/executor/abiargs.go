package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// coerceArg converts a JSON-decoded value into the Go type go-ethereum packs
// for t.
func coerceArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("expected hex address, got %v", v)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected boolean, got %v", v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %v", v)
		}
		return s, nil
	case abi.BytesTy:
		return decodeHexArg(v)
	case abi.FixedBytesTy:
		raw, err := decodeHexArg(v)
		if err != nil {
			return nil, err
		}
		if len(raw) > t.Size {
			return nil, fmt.Errorf("expected at most %d bytes, got %d", t.Size, len(raw))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil
	case abi.IntTy, abi.UintTy:
		return coerceInt(t, v)
	case abi.SliceTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %v", v)
		}
		out := reflect.MakeSlice(t.GetType(), len(items), len(items))
		for i, item := range items {
			elem, err := coerceArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	case abi.ArrayTy:
		items, ok := v.([]any)
		if !ok || len(items) != t.Size {
			return nil, fmt.Errorf("expected array of %d items, got %v", t.Size, v)
		}
		out := reflect.New(t.GetType()).Elem()
		for i, item := range items {
			elem, err := coerceArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	case abi.TupleTy:
		return coerceTuple(t, v)
	}
	return nil, fmt.Errorf("unsupported abi type %s", t.String())
}

func coerceTuple(t abi.Type, v any) (any, error) {
	values := make([]any, len(t.TupleElems))
	switch typed := v.(type) {
	case map[string]any:
		for i, name := range t.TupleRawNames {
			val, ok := typed[name]
			if !ok {
				return nil, fmt.Errorf("missing tuple field %q", name)
			}
			values[i] = val
		}
	case []any:
		if len(typed) != len(t.TupleElems) {
			return nil, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(typed))
		}
		copy(values, typed)
	default:
		return nil, fmt.Errorf("expected tuple object or array, got %v", v)
	}
	out := reflect.New(t.GetType()).Elem()
	for i, elem := range t.TupleElems {
		coerced, err := coerceArg(*elem, values[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.TupleRawNames[i], err)
		}
		out.Field(i).Set(reflect.ValueOf(coerced))
	}
	return out.Interface(), nil
}

func decodeHexArg(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected 0x-prefixed hex string, got %v", v)
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return raw, nil
}

func coerceInt(t abi.Type, v any) (any, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s out of range for %s", n, t.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value %s out of range for %s", n, t.String())
		}
	}
	goType := t.GetType()
	if goType.Kind() == reflect.Ptr {
		return n, nil
	}
	out := reflect.New(goType).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case string:
		s := strings.TrimSpace(n)
		base := 10
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			base = 16
			s = s[2:]
		}
		out, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		if neg {
			out.Neg(out)
		}
		return out, nil
	case json.Number:
		return toBigInt(n.String())
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected integer, got %v", n)
		}
		if math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("integer %v exceeds float precision; pass it as a string", n)
		}
		return big.NewInt(int64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	}
	return nil, fmt.Errorf("expected integer, got %v", v)
}

// jsonSafe converts decoded ABI values into JSON-friendly shapes: integers
// wider than 32 bits become decimal strings, addresses and hashes become hex,
// byte strings become 0x-hex, and tuples become objects keyed by field name.
func jsonSafe(v any) any {
	switch typed := v.(type) {
	case nil:
		return nil
	case *big.Int:
		if typed == nil {
			return nil
		}
		return typed.String()
	case big.Int:
		return typed.String()
	case common.Address:
		return typed.Hex()
	case common.Hash:
		return typed.Hex()
	case []byte:
		return hexutil.Encode(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case string, bool, int8, int16, int32, uint8, uint16, uint32:
		return typed
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return jsonSafe(rv.Elem().Interface())
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return hexutil.Encode(buf)
		}
		fallthrough
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = jsonSafe(rv.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
				name = tag
			}
			out[name] = jsonSafe(rv.Field(i).Interface())
		}
		return out
	}
	return v
}
