package telemetry

import "time"

// Point is one sample in a returned time series.
type Point struct {
	DateTime time.Time `json:"date_time"`
	Low      float64   `json:"low,omitempty"`
	High     float64   `json:"high,omitempty"`
	Value    float64   `json:"value"`
}

// aggregate sums counters across every key in scope, or just one key if
// key is non-empty — "results are aggregated across all keys unless a
// specific key is named".
func (c *Collector) aggregate(scope Scope, key string, now time.Time) []bucket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byKey := c.rows[scope]
	var rows []*row
	if key != "" {
		if r, ok := byKey[key]; ok {
			rows = []*row{r}
		}
	} else {
		for _, r := range byKey {
			rows = append(rows, r)
		}
	}

	out := make([]bucket, NumBuckets)
	nowSec := now.Unix()
	baseStart := (nowSec / bucketWidthSecs) * bucketWidthSecs
	for i := range out {
		out[i].startUnix = baseStart - int64(NumBuckets-1-i)*bucketWidthSecs
		out[i].statusCount = make(map[int]int64)
	}

	for _, r := range rows {
		r.mu.Lock()
		for i := range out {
			idx := ((out[i].startUnix / bucketWidthSecs) % NumBuckets + NumBuckets) % NumBuckets
			b := &r.buckets[idx]
			if b.startUnix != out[i].startUnix {
				continue // stale or never-touched slot: contributes zero
			}
			out[i].reqCount += b.reqCount
			out[i].resCount += b.resCount
			out[i].bytesSent += b.bytesSent
			for code, n := range b.statusCount {
				out[i].statusCount[code] += n
			}
			for s := 0; s < SubSamples; s++ {
				if b.subSec[s] == 0 {
					continue
				}
				out[i].subBytes[s] += b.subBytes[s]
				out[i].subSec[s] = b.subSec[s]
			}
		}
		r.mu.Unlock()
	}
	return out
}

// Default returns the request/response delta series for the statistics
// "default" endpoint.
func (c *Collector) Default(scope Scope, key string) []Point {
	buckets := c.aggregate(scope, key, time.Now())
	points := make([]Point, len(buckets))
	for i, b := range buckets {
		points[i] = Point{
			DateTime: time.Unix(b.startUnix, 0).UTC(),
			Low:      float64(b.reqCount),
			High:     float64(b.resCount),
			Value:    float64(b.reqCount - b.resCount),
		}
	}
	return points
}

// ByStatus returns the per-status-code count series.
func (c *Collector) ByStatus(scope Scope, key string, code int) []Point {
	buckets := c.aggregate(scope, key, time.Now())
	points := make([]Point, len(buckets))
	for i, b := range buckets {
		points[i] = Point{
			DateTime: time.Unix(b.startUnix, 0).UTC(),
			Value:    float64(b.statusCount[code]),
		}
	}
	return points
}

// Bytes returns the byte-rate series: avg/max/min bits-per-second across
// each bucket's 1-second sub-samples.
func (c *Collector) Bytes(scope Scope, key string) []Point {
	buckets := c.aggregate(scope, key, time.Now())
	points := make([]Point, len(buckets))
	for i, b := range buckets {
		var sum, max, min float64
		first := true
		for s := 0; s < SubSamples; s++ {
			if b.subSec[s] == 0 {
				continue
			}
			bps := float64(b.subBytes[s]) * 8
			sum += bps
			if first || bps > max {
				max = bps
			}
			if first || bps < min {
				min = bps
			}
			first = false
		}
		var avg float64
		if !first {
			avg = sum / float64(SubSamples)
		}
		points[i] = Point{DateTime: time.Unix(b.startUnix, 0).UTC(), Value: avg, High: max, Low: min}
	}
	return points
}
