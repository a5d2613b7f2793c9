package jsonb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Path represents a dotted document path (e.g., attributes.brand)
type Path struct {
	Parts []string
}

// ParsePath splits a dotted attribute path. Empty segments are dropped.
func ParsePath(dotted string) Path {
	var parts []string
	for _, part := range strings.Split(dotted, ".") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return Path{Parts: parts}
}

// String returns the dotted notation used in query documents
func (p Path) String() string {
	return strings.Join(p.Parts, ".")
}

// Head returns the first segment, which names the top-level field or column
func (p Path) Head() string {
	if len(p.Parts) == 0 {
		return ""
	}
	return p.Parts[0]
}

// Tail returns the path below the first segment
func (p Path) Tail() Path {
	if len(p.Parts) <= 1 {
		return Path{}
	}
	return Path{Parts: p.Parts[1:]}
}

// PostgreSQLPath returns the text-array notation used by the #> and #>> operators
func (p Path) PostgreSQLPath() string {
	if len(p.Parts) == 0 {
		return "{}"
	}
	quoted := make([]string, len(p.Parts))
	for i, part := range p.Parts {
		if strings.ContainsAny(part, `,{}" `) {
			part = `"` + strings.ReplaceAll(part, `"`, `\"`) + `"`
		}
		quoted[i] = part
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// ExtractPaths returns the dotted paths of every leaf under value, sorted.
// Arrays are treated as leaves since they're matched as lists.
func ExtractPaths(value interface{}) []Path {
	var paths []Path

	parsed, err := decode(value)
	if err != nil {
		return paths
	}

	extractPathsRecursive(parsed, []string{}, &paths)
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].String() < paths[j].String()
	})
	return paths
}

func extractPathsRecursive(value interface{}, currentPath []string, paths *[]Path) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		if len(currentPath) > 0 {
			*paths = append(*paths, Path{Parts: currentPath})
		}
		return
	}

	for key, val := range obj {
		newPath := append([]string{}, currentPath...)
		newPath = append(newPath, key)
		extractPathsRecursive(val, newPath, paths)
	}
}

// GetValueAtPath retrieves a value at a specific path
func GetValueAtPath(value interface{}, path Path) (interface{}, error) {
	current, err := decode(value)
	if err != nil {
		return nil, err
	}

	for _, part := range path.Parts {
		switch curr := current.(type) {
		case map[string]interface{}:
			val, ok := curr[part]
			if !ok {
				return nil, fmt.Errorf("key '%s' not found", part)
			}
			current = val
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid array index: %s", part)
			}
			if idx < 0 || idx >= len(curr) {
				return nil, fmt.Errorf("array index out of bounds: %d", idx)
			}
			current = curr[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T", curr)
		}
	}

	return current, nil
}

// decode accepts raw JSON text or an already decoded value
func decode(value interface{}) (interface{}, error) {
	var parsed interface{}
	switch v := value.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &parsed); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		parsed = normalize(v)
	}
	return parsed, nil
}

// normalize turns driver document types into plain maps and slices
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.M:
		return normalize(map[string]interface{}(v))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = normalize(val)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		return normalize([]interface{}(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	default:
		return v
	}
}
