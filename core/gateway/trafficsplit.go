package gateway

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"net/http"

	"github.com/relabs-tech/pmpgw/core/config"
)

// SelectVariant picks a traffic_split variant for this request: the
// cookie's variant when a sticky_cookie is configured and present; a hash
// of the caller's remote address (weights not applied) when it is
// configured but absent; otherwise weighted random choice
// (supplemented feature, original_source's traffic_split.rs). setSticky
// reports whether the caller must write the chosen variant back as a fresh
// sticky cookie -- true exactly when a sticky_cookie is configured and the
// request carried none (or an unrecognized one).
func SelectVariant(split *config.TrafficSplitConfig, r *http.Request) (variant config.TrafficVariant, ok bool, setSticky bool) {
	if split == nil || len(split.Variants) == 0 {
		return config.TrafficVariant{}, false, false
	}
	if split.StickyCookie != "" {
		if cookie, err := r.Cookie(split.StickyCookie); err == nil {
			for _, v := range split.Variants {
				if v.Name == cookie.Value {
					return v, true, false
				}
			}
		}
		// No identity header is available ahead of orchestration, so the
		// caller's remote address stands in for "authenticated user id" on
		// a first visit -- deterministic, so concurrent requests from the
		// same caller before the cookie round-trips still agree.
		return StickyAssignment(r.RemoteAddr, split.Variants), true, true
	}
	return weightedPick(split.Variants), true, false
}

func weightedPick(variants []config.TrafficVariant) config.TrafficVariant {
	total := 0
	for _, v := range variants {
		total += normalizedWeight(v)
	}
	if total == 0 {
		return variants[0]
	}
	pick := rand.Intn(total)
	for _, v := range variants {
		w := normalizedWeight(v)
		if pick < w {
			return v
		}
		pick -= w
	}
	return variants[len(variants)-1]
}

func normalizedWeight(v config.TrafficVariant) int {
	if v.Weight <= 0 {
		return 1
	}
	return v.Weight
}

// StickyAssignment deterministically maps identity (e.g. an authenticated
// user id) onto a variant, for issuing a fresh sticky cookie on a caller's
// first visit.
func StickyAssignment(identity string, variants []config.TrafficVariant) config.TrafficVariant {
	if len(variants) == 0 {
		return config.TrafficVariant{}
	}
	h := sha256.Sum256([]byte(identity))
	n := binary.BigEndian.Uint64(h[:8])
	return variants[n%uint64(len(variants))]
}
