// Package telemetry records per-connection outcomes into fixed-interval
// ring buffers and answers the three statistics queries the admin surface
// exposes. One row exists per (scope, key); scope is either "domain"
// (keyed by SNI) or "proxy" (keyed by listener address).
package telemetry

import (
	"sync"
	"time"
)

const (
	// NumBuckets and BucketWidth give a 120-minute sliding window of
	// 15-second buckets.
	NumBuckets      = 480
	BucketWidth     = 15 * time.Second
	bucketWidthSecs = 15

	// SubSamples is the number of 1-second byte-rate samples tracked
	// within each bucket.
	SubSamples = 15
)

// Scope names one of the two query dimensions.
type Scope string

const (
	ScopeDomain Scope = "domain"
	ScopeProxy  Scope = "proxy"
)

// Event is the single record emitted once per connection at CLOSED.
type Event struct {
	ProxyAddr string
	SNI       string // empty if the connection never resolved one
	Status    int    // 0 if no response was produced
	BytesSent int64
	At        time.Time
}

type bucket struct {
	startUnix   int64 // epoch seconds this bucket currently represents; 0 = never touched
	reqCount    int64
	resCount    int64
	statusCount map[int]int64
	bytesSent   int64
	subBytes    [SubSamples]int64
	subSec      [SubSamples]int64 // epoch second each sub-sample slot was last written
}

func (b *bucket) resetFor(startUnix int64) {
	*b = bucket{startUnix: startUnix, statusCount: make(map[int]int64, 4)}
}

type row struct {
	mu      sync.Mutex
	buckets [NumBuckets]bucket
}

func (r *row) bucketFor(t time.Time) *bucket {
	sec := t.Unix()
	idx := (sec / bucketWidthSecs) % NumBuckets
	start := (sec / bucketWidthSecs) * bucketWidthSecs
	b := &r.buckets[idx]
	if b.startUnix != start {
		b.resetFor(start)
	}
	return b
}

// Collector is the telemetry engine: a map of rows per scope, a background
// clock goroutine, and the query methods the admin statistics endpoints call.
type Collector struct {
	mu     sync.RWMutex
	rows   map[Scope]map[string]*row
	stopCh chan struct{}
}

// NewCollector creates a Collector and starts its background clock.
func NewCollector() *Collector {
	c := &Collector{
		rows:   map[Scope]map[string]*row{ScopeDomain: {}, ScopeProxy: {}},
		stopCh: make(chan struct{}),
	}
	go c.runClock()
	return c
}

// Stop halts the background clock. Safe to call once.
func (c *Collector) Stop() {
	close(c.stopCh)
}

// runClock proactively zeroes each row's current bucket once a second so
// buckets with no activity still roll out of the window on schedule,
// instead of only being zeroed lazily the next time a request touches them.
func (c *Collector) runClock() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.RLock()
			for _, byKey := range c.rows {
				for _, r := range byKey {
					r.mu.Lock()
					r.bucketFor(now)
					r.mu.Unlock()
				}
			}
			c.mu.RUnlock()
		}
	}
}

func (c *Collector) rowFor(scope Scope, key string) *row {
	c.mu.RLock()
	r, ok := c.rows[scope][key]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.rows[scope][key]; ok {
		return r
	}
	r = &row{}
	c.rows[scope][key] = r
	return r
}

// Record applies one connection's outcome to both the proxy-scoped and (if
// present) domain-scoped rows.
func (c *Collector) Record(ev Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	c.observe(ScopeProxy, ev.ProxyAddr, ev.Status, ev.BytesSent, at)
	if ev.SNI != "" {
		c.observe(ScopeDomain, ev.SNI, ev.Status, ev.BytesSent, at)
	}
}

func (c *Collector) observe(scope Scope, key string, status int, bytesSent int64, at time.Time) {
	r := c.rowFor(scope, key)
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucketFor(at)
	b.reqCount++
	if status != 0 {
		b.resCount++
		b.statusCount[status]++
	}
	b.bytesSent += bytesSent

	slot := at.Unix() % SubSamples
	sec := at.Unix()
	if b.subSec[slot] != sec {
		b.subBytes[slot] = 0
		b.subSec[slot] = sec
	}
	b.subBytes[slot] += bytesSent
}
