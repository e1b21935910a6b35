package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter mirrors the current (still open) bucket of every row as
// Prometheus gauges registered against a caller-supplied Registerer,
// alongside the bucketed query API. The admin server does not mount a
// /metrics route for it.
type PrometheusExporter struct {
	c *Collector

	requests  *prometheus.GaugeVec
	responses *prometheus.GaugeVec
	status    *prometheus.GaugeVec
	bytesBps  *prometheus.GaugeVec
}

// NewPrometheusExporter registers gauge vectors labeled by scope and key
// against reg and returns an exporter that keeps them in sync with c.
func NewPrometheusExporter(c *Collector, reg prometheus.Registerer) (*PrometheusExporter, error) {
	e := &PrometheusExporter{
		c: c,
		requests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "requests_current_bucket",
			Help:      "Request count in the current 15s bucket.",
		}, []string{"scope", "key"}),
		responses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "responses_current_bucket",
			Help:      "Response count in the current 15s bucket.",
		}, []string{"scope", "key"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "status_current_bucket",
			Help:      "Response count by status code in the current 15s bucket.",
		}, []string{"scope", "key", "code"}),
		bytesBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drawbridge",
			Name:      "bytes_per_second",
			Help:      "Average byte rate over the current bucket's 1s sub-samples.",
		}, []string{"scope", "key"}),
	}

	for _, c := range []prometheus.Collector{e.requests, e.responses, e.status, e.bytesBps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Collect snapshots every row's current bucket into the gauge vectors. Call
// periodically (or from a Prometheus Collect hook) ahead of a scrape.
func (e *PrometheusExporter) Collect() {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()

	for scope, byKey := range e.c.rows {
		for key, r := range byKey {
			r.mu.Lock()
			b := r.bucketFor(time.Now())
			e.requests.WithLabelValues(string(scope), key).Set(float64(b.reqCount))
			e.responses.WithLabelValues(string(scope), key).Set(float64(b.resCount))
			for code, n := range b.statusCount {
				e.status.WithLabelValues(string(scope), key, codeLabel(code)).Set(float64(n))
			}
			var sum float64
			for s := 0; s < SubSamples; s++ {
				if b.subSec[s] != 0 {
					sum += float64(b.subBytes[s])
				}
			}
			e.bytesBps.WithLabelValues(string(scope), key).Set(sum / float64(SubSamples))
			r.mu.Unlock()
		}
	}
}

func codeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx_" + strconv.Itoa(code)
	case code >= 300 && code < 400:
		return "3xx_" + strconv.Itoa(code)
	case code >= 400 && code < 500:
		return "4xx_" + strconv.Itoa(code)
	case code >= 500:
		return "5xx_" + strconv.Itoa(code)
	default:
		return strconv.Itoa(code)
	}
}
