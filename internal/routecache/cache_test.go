package routecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMissIncrementsCounter(t *testing.T) {
	c := New(160, 16)
	_, ok := c.Get("/a")
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestPutThenGetHits(t *testing.T) {
	c := New(160, 16)
	c.Put("/a", Entry{Target: "/a", Backend: "x:1"})
	e, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, "x:1", e.Backend)
	assert.EqualValues(t, 1, c.Stats().Hits)
}

func TestShardCountRoundsUpToPowerOfTwo(t *testing.T) {
	c := New(100, 10)
	assert.Len(t, c.shards, 16)
}

func TestEvictsOldestWhenShardFull(t *testing.T) {
	// Force everything into a single shard so capacity pressure is
	// deterministic.
	c := New(2, 1)
	c.Put("k0", Entry{Target: "/0"})
	c.Put("k1", Entry{Target: "/1"})
	c.Put("k2", Entry{Target: "/2"}) // should evict k0

	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.True(t, ok)
}

func TestKeyAppendsQueryOnlyWhenPresent(t *testing.T) {
	assert.Equal(t, "/a", Key("/a", ""))
	assert.Equal(t, "/a?x=1", Key("/a", "x=1"))
}

func TestConcurrentAccessDoesNotRace(t *testing.T) {
	c := New(1600, 16)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("/k%d", (i*200+j)%50)
				c.Put(key, Entry{Target: key})
				c.Get(key)
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
