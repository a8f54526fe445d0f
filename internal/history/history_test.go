package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PhucNguyen204/logwarden/pkg/matches"
)

func trig(rule string, count int64) matches.Trigger {
	return matches.Trigger{Rule: rule, Count: count}
}

func counts(ts []matches.Trigger) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Count)
	}
	return out
}

func TestHistory_NewestFirst(t *testing.T) {
	h := New(3)
	assert.Empty(t, h.List(0, ""))

	h.Record(trig("a", 1))
	h.Record(trig("b", 2))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []int64{2, 1}, counts(h.List(0, "")))

	h.Record(trig("a", 3))
	h.Record(trig("a", 4))
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []int64{4, 3, 2}, counts(h.List(0, "")))
	assert.Equal(t, []int64{4}, counts(h.List(1, "")))
	assert.Equal(t, []int64{4, 3}, counts(h.List(0, "a")))
	assert.Empty(t, h.List(0, "zzz"))
}

func TestHistory_DefaultSize(t *testing.T) {
	h := New(0)
	for i := 0; i < 150; i++ {
		h.Record(trig("a", int64(i)))
	}
	assert.Equal(t, 100, h.Len())
	assert.Equal(t, int64(149), h.List(1, "")[0].Count)
}

func TestHistory_Concurrent(t *testing.T) {
	h := New(50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Record(trig("a", 1))
				_ = h.List(5, "")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, h.Len())
}
