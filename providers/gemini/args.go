package gemini

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Gemini 的 functionCall.args 必须是 protobuf Struct 兼容的对象。
// 上游工具层经常把参数作为 JSON 字符串透传，或在 path 参数里嵌套
// {"path": ...} 对象，两种情况都会触发上游的
// "Invalid value at 'contents[].parts[].function_call.args'" 400 错误。
// 本文件在请求出站前统一改写参数，消除这类结构性拒绝。

// NormalizeArgs 把函数调用参数规整为 Struct 兼容的对象：
// 1. JSON 字符串先解析为对象，解析失败视为参数错误
// 2. path 参数校验并转为绝对路径
// 3. 所有值递归收敛到 Struct 支持的类型（标量/列表/嵌套对象）
func NormalizeArgs(raw any) (map[string]any, error) {
	var args map[string]any

	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if err := json.Unmarshal([]byte(v), &args); err != nil {
			return nil, fmt.Errorf("invalid JSON in arguments %q: %w", v, err)
		}
	case []byte:
		if len(v) == 0 {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal(v, &args); err != nil {
			return nil, fmt.Errorf("invalid JSON in arguments %q: %w", string(v), err)
		}
	case json.RawMessage:
		return NormalizeArgs([]byte(v))
	case map[string]any:
		args = make(map[string]any, len(v))
		for k, val := range v {
			args[k] = val
		}
	default:
		return nil, fmt.Errorf("unsupported argument type %T", raw)
	}

	if rawPath, ok := args["path"]; ok {
		validated, err := ValidatePath(rawPath)
		if err != nil {
			return nil, err
		}
		args["path"] = validated
	}

	return toStructCompatible(args), nil
}

// ValidatePath 校验 path 参数并归一为绝对路径。
// 接受字符串或含 "path" 键的对象（上游会产生两种形态）。
func ValidatePath(raw any) (string, error) {
	var path string

	switch v := raw.(type) {
	case string:
		path = v
	case map[string]any:
		inner, ok := v["path"]
		if !ok {
			return "", fmt.Errorf("path object must contain 'path' key, got keys %v", mapKeys(v))
		}
		s, ok := inner.(string)
		if !ok {
			return "", fmt.Errorf("unsupported path type %T", inner)
		}
		path = s
	default:
		return "", fmt.Errorf("unsupported path type %T", raw)
	}

	if path == "" {
		return "", fmt.Errorf("path must not be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	return abs, nil
}

// toStructCompatible 递归收敛值类型。
// Struct 只接受 null/number/string/bool/list/struct，其余类型字符串化兜底。
func toStructCompatible(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, json.Number:
		return val
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = coerceValue(item)
		}
		return list
	case map[string]any:
		return toStructCompatible(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
