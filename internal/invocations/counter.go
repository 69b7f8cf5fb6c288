package invocations

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// FireCounter counts successful claims. It is monotonic.
type FireCounter struct {
	total  atomic.Int64
	mu     sync.Mutex
	perID  map[string]int
	metric prometheus.Counter
}

// NewFireCounter builds a counter. metric may be nil.
func NewFireCounter(metric prometheus.Counter) *FireCounter {
	return &FireCounter{perID: make(map[string]int), metric: metric}
}

func (c *FireCounter) record(id string) {
	c.total.Add(1)
	c.mu.Lock()
	c.perID[id]++
	c.mu.Unlock()
	if c.metric != nil {
		c.metric.Inc()
	}
}

// Fired returns the number of invocations fired since start.
func (c *FireCounter) Fired() int64 {
	return c.total.Load()
}

// FiredFor returns how many times id fired.
func (c *FireCounter) FiredFor(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perID[id]
}
