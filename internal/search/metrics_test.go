package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStats_TrimDropsOldestBeyondCap(t *testing.T) {
	s := NewQueryStats(5)

	now := time.Now()
	s.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		s.Record(fmt.Sprintf("query-%d", i), time.Millisecond, false)
	}
	require.Equal(t, 10, s.Len())

	s.Trim()

	assert.Equal(t, 5, s.Len())
}

func TestQueryStats_TrimNoOpUnderCap(t *testing.T) {
	s := NewQueryStats(5)
	s.Record("ipa", time.Millisecond, false)

	s.Trim()

	assert.Equal(t, 1, s.Len())
}

func TestQueryStats_RecordAggregatesPerQuery(t *testing.T) {
	s := NewQueryStats(5)

	s.Record("ipa", time.Millisecond, false)
	s.Record("ipa", time.Millisecond, true)

	assert.Equal(t, 1, s.Len())
}
