package gateway

import (
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Shape applies the fixed filter -> field_mappings -> include/exclude ->
// template pipeline to envelope (spec §4.7). A nil transform is the
// identity; so is one whose fields are all empty (spec §8).
func Shape(envelope map[string]interface{}, transform *config.ResponseTransform, ictx *InterpolationContext) (interface{}, error) {
	var value interface{} = envelope
	if transform == nil {
		return value, nil
	}

	if transform.Filter != nil {
		value = applyFilter(value, *transform.Filter)
	}
	if len(transform.FieldMappings) > 0 {
		value = applyFieldMappings(value, transform.FieldMappings)
	}
	if len(transform.Include) > 0 {
		value = filterKeys(value, func(k string) bool { return toSet(transform.Include)[k] })
	} else if len(transform.Exclude) > 0 {
		excluded := toSet(transform.Exclude)
		value = filterKeys(value, func(k string) bool { return !excluded[k] })
	}
	if transform.Template != nil {
		return applyTemplate(*transform.Template, value, ictx), nil
	}
	return value, nil
}

var trailingIndex = regexp.MustCompile(`\[(\d+)\]$`)

// applyFilter walks a dot-path with optional trailing [N] index segments
// (e.g. "data.users[0]"). A missing segment yields JSON null.
func applyFilter(value interface{}, path string) interface{} {
	if path == "" {
		return value
	}
	cur := value
	for _, raw := range strings.Split(path, ".") {
		key, indices := splitIndices(raw)
		if key != "" {
			cur = traverseSegment(cur, key)
		}
		for _, idx := range indices {
			cur = traverseSegment(cur, strconv.Itoa(idx))
		}
	}
	return cur
}

func splitIndices(seg string) (string, []int) {
	var indices []int
	for {
		m := trailingIndex.FindStringSubmatchIndex(seg)
		if m == nil {
			break
		}
		n, _ := strconv.Atoi(seg[m[2]:m[3]])
		indices = append([]int{n}, indices...)
		seg = seg[:m[0]]
	}
	return seg, indices
}

// applyFieldMappings renames keys recursively at every depth; arrays and
// scalars pass through unchanged.
func applyFieldMappings(value interface{}, mappings map[string]string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			newKey := k
			if mapped, ok := mappings[k]; ok {
				newKey = mapped
			}
			out[newKey] = applyFieldMappings(val, mappings)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = applyFieldMappings(val, mappings)
		}
		return out
	default:
		return value
	}
}

func toSet(s []string) map[string]bool {
	m := make(map[string]bool, len(s))
	for _, v := range s {
		m[v] = true
	}
	return m
}

// filterKeys keeps only object keys for which keep returns true, at every
// object depth; arrays and scalars pass through unchanged.
func filterKeys(value interface{}, keep func(string) bool) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := map[string]interface{}{}
		for k, val := range v {
			if keep(k) {
				out[k] = filterKeys(val, keep)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = filterKeys(val, keep)
		}
		return out
	default:
		return value
	}
}

// applyTemplate renders tmpl against both request expressions (§4.1) and
// ${response.PATH} expressions resolved against value, the shaped value so
// far. The rendered string is attempted-parsed as JSON; on failure it is
// returned as a plain string (spec §4.7).
func applyTemplate(tmpl string, value interface{}, ictx *InterpolationContext) interface{} {
	rendered := exprPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-1])
		if strings.HasPrefix(inner, "response.") {
			path := strings.TrimPrefix(inner, "response.")
			cur := value
			for _, seg := range strings.Split(path, ".") {
				cur = traverseSegment(cur, seg)
			}
			return stringifyJSON(cur)
		}
		if ictx != nil {
			if v, ok := resolveExpr(inner, ictx); ok {
				return v
			}
		}
		return match
	})

	var parsed interface{}
	if err := json.Unmarshal([]byte(rendered), &parsed); err == nil {
		return parsed
	}
	return rendered
}
