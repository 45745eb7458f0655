package monitoring

import (
	"strconv"

	"neuromail-go/internal/credential"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatusSource is implemented by *credential.Pool.
type PoolStatusSource interface {
	Status() credential.PoolStatus
}

// PoolCollector exports pool state on scrape without touching the request path.
type PoolCollector struct {
	src PoolStatusSource

	available *prometheus.Desc
	exhausted *prometheus.Desc
	resets    *prometheus.Desc
	usage     *prometheus.Desc
	errors    *prometheus.Desc
}

// NewPoolCollector builds a collector over src.
func NewPoolCollector(src PoolStatusSource) *PoolCollector {
	return &PoolCollector{
		src:       src,
		available: prometheus.NewDesc("neuromail_pool_available_credentials", "Pooled API keys not exhausted", nil, nil),
		exhausted: prometheus.NewDesc("neuromail_pool_exhausted_credentials", "Pooled API keys exhausted", nil, nil),
		resets:    prometheus.NewDesc("neuromail_pool_resets_total", "Pool resets since start", nil, nil),
		usage:     prometheus.NewDesc("neuromail_pool_credential_usage", "Uses recorded per pooled key since last reset", []string{"slot"}, nil),
		errors:    prometheus.NewDesc("neuromail_pool_credential_errors", "Errors recorded per pooled key since last reset", []string{"slot"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.available
	ch <- c.exhausted
	ch <- c.resets
	ch <- c.usage
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Status()
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(st.Available))
	ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.GaugeValue, float64(st.Exhausted))
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(st.Resets))
	for _, cs := range st.Credentials {
		slot := strconv.Itoa(cs.Index)
		ch <- prometheus.MustNewConstMetric(c.usage, prometheus.GaugeValue, float64(cs.UsageCount), slot)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(cs.ErrorCount), slot)
	}
}
