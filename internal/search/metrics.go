package search

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_search_duration_seconds",
		Help:    "In-memory catalog search duration",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
	})
	searchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_search_result_cache_hits_total",
		Help: "Searches served from the result cache",
	})
)

// DefaultQueryStatsCap bounds the per-query stats map. Long-running processes
// accumulate distinct queries without bound otherwise.
const DefaultQueryStatsCap = 500

type queryStat struct {
	count    int64
	totalDur time.Duration
	lastSeen time.Time
}

// QueryStats tracks per-query search latency for diagnostics. It is bounded:
// Trim drops the least recently seen queries beyond the cap and is called
// periodically by the scheduler.
type QueryStats struct {
	mu    sync.Mutex
	stats map[string]*queryStat
	cap   int
	now   func() time.Time
}

// NewQueryStats creates a bounded query stats tracker. cap <= 0 uses the default.
func NewQueryStats(capacity int) *QueryStats {
	if capacity <= 0 {
		capacity = DefaultQueryStatsCap
	}
	return &QueryStats{
		stats: make(map[string]*queryStat),
		cap:   capacity,
		now:   time.Now,
	}
}

// Record registers one search for query with the observed duration. fromCache
// searches additionally count as result-cache hits.
func (s *QueryStats) Record(query string, dur time.Duration, fromCache bool) {
	searchDuration.Observe(dur.Seconds())
	if fromCache {
		searchCacheHits.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[query]
	if !ok {
		st = &queryStat{}
		s.stats[query] = st
	}
	st.count++
	st.totalDur += dur
	st.lastSeen = s.now()
}

// Len returns the number of tracked queries.
func (s *QueryStats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}

// Trim drops the least recently seen queries until the map fits the cap.
func (s *QueryStats) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stats) <= s.cap {
		return
	}

	type aged struct {
		query    string
		lastSeen time.Time
	}
	all := make([]aged, 0, len(s.stats))
	for q, st := range s.stats {
		all = append(all, aged{query: q, lastSeen: st.lastSeen})
	}
	sort.Slice(all, func(a, b int) bool {
		return all[a].lastSeen.Before(all[b].lastSeen)
	})

	for _, a := range all[:len(all)-s.cap] {
		delete(s.stats, a.query)
	}
}
