package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/search"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/kafka"
)

type stubStore struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubStore) FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Product{{ID: "1", Title: "IPA"}}, nil
}

func (s *stubStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *stubPublisher) Publish(ctx context.Context, topic string, event *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *stubPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RefreshesIndexAndPublishes(t *testing.T) {
	st := &stubStore{}
	idx := search.NewIndex(st, search.NewResultCache(0), testLogger())
	pub := &stubPublisher{}

	s := New(idx, search.NewQueryStats(0), pub, testLogger(),
		WithIndexRefreshInterval(20*time.Millisecond),
		WithMetricsTrimInterval(time.Hour),
	)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return st.callCount() >= 1 && len(pub.published()) >= 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "catalog.search.reindexed", pub.published()[0])
	assert.Equal(t, 1, idx.Size())
}

func TestScheduler_RefreshFailureKeepsTicking(t *testing.T) {
	st := &stubStore{err: errors.New("upstream down")}
	idx := search.NewIndex(st, search.NewResultCache(0), testLogger())
	pub := &stubPublisher{}

	s := New(idx, search.NewQueryStats(0), pub, testLogger(),
		WithIndexRefreshInterval(20*time.Millisecond),
		WithMetricsTrimInterval(time.Hour),
	)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return st.callCount() >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, pub.published(), "no reindex event on failure")
}

func TestScheduler_TrimsQueryStats(t *testing.T) {
	idx := search.NewIndex(&stubStore{}, search.NewResultCache(0), testLogger())
	stats := search.NewQueryStats(3)
	for i := 0; i < 10; i++ {
		stats.Record(fmt.Sprintf("query-%d", i), time.Millisecond, false)
	}
	require.Equal(t, 10, stats.Len())

	s := New(idx, stats, nil, testLogger(),
		WithIndexRefreshInterval(time.Hour),
		WithMetricsTrimInterval(20*time.Millisecond),
	)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return stats.Len() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	idx := search.NewIndex(&stubStore{}, search.NewResultCache(0), testLogger())
	s := New(idx, search.NewQueryStats(0), nil, testLogger())

	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
