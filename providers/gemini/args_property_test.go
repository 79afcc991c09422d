package gemini

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// asAny 把生成值的 ResultType 改成 any。不能用 Map(func(T) any)：
// *gopter.GenResult 可赋值给 any，Map 会把 mapper 误判成 GenResult 映射而 panic。
func asAny(g gopter.Gen) gopter.Gen {
	return g.MapResult(func(r *gopter.GenResult) *gopter.GenResult {
		r.Shrinker = gopter.NoShrinker
		r.Sieve = nil
		r.ResultType = reflect.TypeOf((*any)(nil)).Elem()
		return r
	})
}

func genArgValue() gopter.Gen {
	return gen.OneGenOf(
		asAny(gen.AlphaString()),
		asAny(gen.Float64Range(-1e6, 1e6)),
		asAny(gen.Bool()),
	)
}

func genArgMap() gopter.Gen {
	// path 键有专门的校验语义，单独测试
	return gen.MapOf(gen.Identifier(), genArgValue()).Map(func(m map[string]any) map[string]any {
		delete(m, "path")
		return m
	})
}

// structCompatible 判断一个值是否能放进 protobuf Struct
func structCompatible(v any) bool {
	switch val := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, json.Number:
		return true
	case []any:
		for _, item := range val {
			if !structCompatible(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range val {
			if !structCompatible(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func TestProperty_NormalizeArgsAlwaysStructCompatible(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("normalized args contain only Struct-compatible values", prop.ForAll(
		func(args map[string]any) bool {
			got, err := NormalizeArgs(args)
			if err != nil {
				return false
			}
			return structCompatible(got)
		},
		genArgMap(),
	))

	properties.TestingRun(t)
}

func TestProperty_NormalizeArgsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(args map[string]any) bool {
			once, err := NormalizeArgs(args)
			if err != nil {
				return false
			}
			twice, err := NormalizeArgs(once)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(once, twice)
		},
		genArgMap(),
	))

	properties.TestingRun(t)
}

func TestProperty_NormalizeArgsJSONStringMatchesMap(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("JSON string input normalizes like the equivalent map", prop.ForAll(
		func(args map[string]any) bool {
			data, err := json.Marshal(args)
			if err != nil {
				return false
			}

			fromString, err := NormalizeArgs(string(data))
			if err != nil {
				return false
			}

			// map 直传时数值类型保持原样，统一走一次 JSON 往返再比较
			roundTripped := make(map[string]any, len(args))
			if err := json.Unmarshal(data, &roundTripped); err != nil {
				return false
			}
			fromMap, err := NormalizeArgs(roundTripped)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(fromString, fromMap)
		},
		genArgMap(),
	))

	properties.TestingRun(t)
}

func TestProperty_PathAlwaysAbsolute(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("any non-empty path normalizes to an absolute path", prop.ForAll(
		func(rel string) bool {
			got, err := NormalizeArgs(map[string]any{"path": rel})
			if err != nil {
				return false
			}
			path, ok := got["path"].(string)
			return ok && filepath.IsAbs(path)
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
