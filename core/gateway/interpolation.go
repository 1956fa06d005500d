package gateway

import (
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// exprPattern matches one non-overlapping ${...} occurrence. The inner
// expression is re-parsed by hand since its grammar is small and fixed
// (spec §4.1).
var exprPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Expand replaces every ${EXPR} occurrence in template with its resolved
// value; literal text passes through verbatim. An unrecognized expression
// is left exactly as written (spec §4.1, relied upon by §8).
func Expand(template string, ctx *InterpolationContext) string {
	return exprPattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := match[2 : len(match)-1]
		val, ok := resolveExpr(inner, ctx)
		if !ok {
			return match
		}
		return val
	})
}

func resolveExpr(expr string, ctx *InterpolationContext) (string, bool) {
	expr = strings.TrimSpace(expr)

	switch {
	case expr == "request.method":
		return strings.ToUpper(ctx.Method), true
	case expr == "request.body":
		return ctx.Body, true
	case strings.HasPrefix(expr, "request.headers["):
		name, ok := bracketLiteral(expr, "request.headers[")
		if !ok {
			return "", false
		}
		return ctx.Header(name), true
	case strings.HasPrefix(expr, "request.path."):
		name := strings.TrimPrefix(expr, "request.path.")
		return ctx.Path[name], true
	case strings.HasPrefix(expr, "request.query."):
		name := strings.TrimPrefix(expr, "request.query.")
		return ctx.Query[name], true
	case strings.HasPrefix(expr, "subrequest."):
		return resolveSubrequest(strings.TrimPrefix(expr, "subrequest."), ctx)
	default:
		return "", false
	}
}

// bracketLiteral extracts NAME from prefix+`"NAME"]` or prefix+`'NAME']`.
func bracketLiteral(expr, prefix string) (string, bool) {
	rest := strings.TrimPrefix(expr, prefix)
	if len(rest) < 3 || rest[len(rest)-1] != ']' {
		return "", false
	}
	rest = rest[:len(rest)-1]
	if len(rest) < 2 {
		return "", false
	}
	q := rest[0]
	if (q != '"' && q != '\'') || rest[len(rest)-1] != q {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

// resolveSubrequest walks "NAME[.SEG]*" against the stored result for NAME.
func resolveSubrequest(path string, ctx *InterpolationContext) (string, bool) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return "", false
	}
	name := segs[0]
	value, present := ctx.Result(name)
	if !present {
		// missing or skipped subrequest: downstream interpolation yields empty
		return "", true
	}
	if len(segs) == 1 {
		return stringifyJSON(value), true
	}
	cur := value
	for _, seg := range segs[1:] {
		cur = traverseSegment(cur, seg)
	}
	return stringifyJSON(cur), true
}

func traverseSegment(cur interface{}, seg string) interface{} {
	switch v := cur.(type) {
	case map[string]interface{}:
		return v[seg]
	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil
		}
		return v[idx]
	default:
		return nil
	}
}

// stringifyJSON converts a traversed JSON value per spec §4.1's scalar rules.
func stringifyJSON(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
