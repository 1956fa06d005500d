package gateway

import (
	"regexp"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Matches evaluates cond against ctx. Pure, total (spec §4.2).
func Matches(cond config.Condition, ctx *InterpolationContext) bool {
	switch cond.Kind {
	case config.CondAlways:
		return true
	case config.CondFieldExists:
		_, ok := lookupField(cond.Field, ctx)
		return ok
	case config.CondFieldEquals:
		v, ok := lookupField(cond.Field, ctx)
		return ok && v == cond.Value
	case config.CondFieldMatches:
		v, ok := lookupField(cond.Field, ctx)
		if !ok {
			return false
		}
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			// malformed pattern: condition simply never satisfied
			return false
		}
		return re.MatchString(v)
	case config.CondHeaderExists:
		return headerPresent(cond.Header, ctx)
	case config.CondHeaderEquals:
		return ctx.Header(cond.Header) == cond.Value
	case config.CondQueryExists:
		_, ok := ctx.Query[cond.Param]
		return ok
	case config.CondQueryEquals:
		v, ok := ctx.Query[cond.Param]
		return ok && v == cond.Value
	case config.CondAnd:
		for _, c := range cond.Conditions {
			if !Matches(c, ctx) {
				return false
			}
		}
		return true
	case config.CondOr:
		for _, c := range cond.Conditions {
			if Matches(c, ctx) {
				return true
			}
		}
		return false
	case config.CondNot:
		if cond.Inner == nil {
			return true
		}
		return !Matches(*cond.Inner, ctx)
	default:
		return false
	}
}

// lookupField checks path variables first, then query variables (field
// operators never search headers -- spec §4.2).
func lookupField(name string, ctx *InterpolationContext) (string, bool) {
	if v, ok := ctx.Path[name]; ok {
		return v, true
	}
	if v, ok := ctx.Query[name]; ok {
		return v, true
	}
	return "", false
}

func headerPresent(name string, ctx *InterpolationContext) bool {
	for k := range ctx.Headers {
		if equalFold(k, name) {
			return true
		}
	}
	return false
}
