package jsonb

import (
	"time"
)

// Kind is the JSON kind of a decoded value
type Kind string

const (
	KindNull    Kind = "null"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindUnknown Kind = "unknown"
)

// KindOf returns the JSON kind of an already decoded value. Values coming
// from a BSON or SQL driver (ints, times, typed slices) map onto the closest kind.
func KindOf(value interface{}) Kind {
	switch value.(type) {
	case nil:
		return KindNull
	case map[string]interface{}:
		return KindObject
	case []interface{}, []string:
		return KindArray
	case string:
		return KindString
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return KindNumber
	case bool:
		return KindBoolean
	case time.Time:
		return KindString
	default:
		return KindUnknown
	}
}
