package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeKey converts a key value to a canonical string form suitable for
// in-memory key sets (e.g. "8429529").
//
// Backends return keys with driver-specific types (int64, int32, string,
// []byte, float64 from JSON-ish sources); this helper keeps lookups consistent
// across backends. Integral floats render without a fractional part so 7.0
// and int64(7) compare equal.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e18 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return NormalizeKey(float64(t))
	case interface{ String() string }:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
