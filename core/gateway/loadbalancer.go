package gateway

import (
	"math/rand"
	"sync/atomic"

	"github.com/relabs-tech/pmpgw/core/config"
)

// LoadBalancer picks one backend URL index per call (C4). A single-URL
// client never constructs one -- its dispatcher skips selection entirely.
type LoadBalancer interface {
	// Pick returns the chosen index. Release must be called exactly once
	// per Pick, after the call completes (success or failure), so that
	// least-connections counters stay accurate on every exit path.
	Pick() int
	Release(index int)
}

// NewLoadBalancer builds the strategy-specific balancer over n backend URLs.
func NewLoadBalancer(strategy config.LoadBalanceStrategy, n int) LoadBalancer {
	switch strategy {
	case config.LeastConnections:
		return &leastConnectionsBalancer{counters: make([]int64, n)}
	case config.Random:
		return &randomBalancer{n: n}
	default:
		return &roundRobinBalancer{n: n}
	}
}

// roundRobinBalancer uses relaxed-ordering atomic increments; the resulting
// sequence is monotone under concurrency, not strictly fair per-millisecond,
// but converges to uniform distribution (spec §8 fairness property).
type roundRobinBalancer struct {
	n      int
	cursor uint64
}

func (b *roundRobinBalancer) Pick() int {
	i := atomic.AddUint64(&b.cursor, 1) - 1
	return int(i % uint64(b.n))
}
func (b *roundRobinBalancer) Release(int) {}

type randomBalancer struct {
	n int
}

func (b *randomBalancer) Pick() int {
	return rand.Intn(b.n)
}
func (b *randomBalancer) Release(int) {}

// leastConnectionsBalancer picks the index with the fewest in-flight calls,
// ties resolved by lowest index (spec §4.4). Counters use atomic ops with
// relaxed ordering (spec §5): decisions are advisory, never authoritative.
type leastConnectionsBalancer struct {
	counters []int64
}

func (b *leastConnectionsBalancer) Pick() int {
	best := 0
	bestCount := atomic.LoadInt64(&b.counters[0])
	for i := 1; i < len(b.counters); i++ {
		c := atomic.LoadInt64(&b.counters[i])
		if c < bestCount {
			best, bestCount = i, c
		}
	}
	atomic.AddInt64(&b.counters[best], 1)
	return best
}

func (b *leastConnectionsBalancer) Release(index int) {
	atomic.AddInt64(&b.counters[index], -1)
}
