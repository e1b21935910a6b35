package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesIntoSameBucket(t *testing.T) {
	c := &Collector{rows: map[Scope]map[string]*row{ScopeDomain: {}, ScopeProxy: {}}, stopCh: make(chan struct{})}
	defer c.Stop()

	base := time.Now().Truncate(bucketWidthSecs * time.Second)
	for i := 0; i < 100; i++ {
		c.Record(Event{
			ProxyAddr: "0.0.0.0:8443",
			SNI:       "x.example",
			Status:    200,
			BytesSent: 1024,
			At:        base.Add(time.Duration(i%14) * time.Second),
		})
	}

	points := c.Default(ScopeDomain, "x.example")
	require.Len(t, points, NumBuckets)
	last := points[NumBuckets-1]
	assert.Equal(t, float64(100), last.Low)
	assert.Equal(t, float64(100), last.High)
	assert.Equal(t, float64(0), last.Value)

	byStatus := c.ByStatus(ScopeDomain, "x.example", 200)
	assert.Equal(t, float64(100), byStatus[NumBuckets-1].Value)

	byOtherStatus := c.ByStatus(ScopeDomain, "x.example", 500)
	assert.Equal(t, float64(0), byOtherStatus[NumBuckets-1].Value)
}

func TestRecordWithoutSNISkipsDomainScope(t *testing.T) {
	c := &Collector{rows: map[Scope]map[string]*row{ScopeDomain: {}, ScopeProxy: {}}, stopCh: make(chan struct{})}
	defer c.Stop()

	c.Record(Event{ProxyAddr: "0.0.0.0:8080", Status: 200, BytesSent: 10, At: time.Now()})

	c.mu.RLock()
	_, ok := c.rows[ScopeDomain][""]
	c.mu.RUnlock()
	assert.False(t, ok)

	points := c.Default(ScopeProxy, "0.0.0.0:8080")
	assert.Equal(t, float64(1), points[NumBuckets-1].Low)
}

func TestBytesReflectsSubSampleRate(t *testing.T) {
	c := &Collector{rows: map[Scope]map[string]*row{ScopeDomain: {}, ScopeProxy: {}}, stopCh: make(chan struct{})}
	defer c.Stop()

	base := time.Now()
	c.Record(Event{ProxyAddr: "0.0.0.0:8080", Status: 200, BytesSent: 125, At: base})

	points := c.Bytes(ScopeProxy, "0.0.0.0:8080")
	last := points[NumBuckets-1]
	assert.Equal(t, float64(1000), last.High) // 125 bytes * 8 bits, one sample
	assert.Equal(t, float64(1000), last.Low)
	assert.InDelta(t, 1000.0/15.0, last.Value, 0.001)
}

func TestDefaultAggregatesAcrossKeysWhenNoneNamed(t *testing.T) {
	c := &Collector{rows: map[Scope]map[string]*row{ScopeDomain: {}, ScopeProxy: {}}, stopCh: make(chan struct{})}
	defer c.Stop()

	now := time.Now()
	c.Record(Event{ProxyAddr: "0.0.0.0:8080", SNI: "a.example", Status: 200, At: now})
	c.Record(Event{ProxyAddr: "0.0.0.0:8081", SNI: "b.example", Status: 200, At: now})

	points := c.Default(ScopeDomain, "")
	assert.Equal(t, float64(2), points[NumBuckets-1].Low)
}

func TestBucketResetsWhenWindowRolls(t *testing.T) {
	r := &row{}
	first := r.bucketFor(time.Unix(1_700_000_000, 0))
	first.reqCount = 5

	later := r.bucketFor(time.Unix(1_700_000_000+NumBuckets*bucketWidthSecs, 0))
	assert.Equal(t, int64(0), later.reqCount)
}
