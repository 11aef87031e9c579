package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ScanTotal counts scan controller outcomes.
	ScanTotal *prometheus.CounterVec
	// LookupCacheTotal counts lookup cache hits and misses.
	LookupCacheTotal *prometheus.CounterVec
	// BackofficeLatency records back-office call latency in milliseconds.
	BackofficeLatency *prometheus.HistogramVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// RemediationTotal counts integrity remediation attempts.
	RemediationTotal *prometheus.CounterVec
	// ShopSyncTotal counts stock sync job outcomes.
	ShopSyncTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ScanTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_total",
			Help:      "Count of scan outcomes per controller.",
		}, []string{"controller", "status"})
		LookupCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_total",
			Help:      "Count of lookup cache hits and misses.",
		}, []string{"result"})
		BackofficeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoffice_request_duration_ms",
			Help:      "Latency for back-office requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout outcomes.",
		}, []string{"result"})
		RemediationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_remediation_total",
			Help:      "Count of integrity remediation attempts by kind.",
		}, []string{"kind", "result"})
		ShopSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shop_sync_total",
			Help:      "Count of shop stock sync job outcomes.",
		}, []string{"result"})

		for _, c := range []**prometheus.CounterVec{&ScanTotal, &LookupCacheTotal, &CheckoutTotal, &RemediationTotal, &ShopSyncTotal} {
			target := c
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
		mustRegisterCollector(reg, BackofficeLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				BackofficeLatency = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// ObserveScan records a scan outcome. It is a no-op before registration.
func ObserveScan(controller, status string) {
	if ScanTotal != nil {
		ScanTotal.WithLabelValues(controller, status).Inc()
	}
}

// ObserveLookupCache records a cache hit or miss.
func ObserveLookupCache(hit bool) {
	if LookupCacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	LookupCacheTotal.WithLabelValues(result).Inc()
}

// ObserveBackoffice records the latency of a back-office call.
func ObserveBackoffice(operation, result string, ms float64) {
	if BackofficeLatency != nil {
		BackofficeLatency.WithLabelValues(operation, result).Observe(ms)
	}
}

// ObserveCheckout records a checkout outcome.
func ObserveCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRemediation records an integrity remediation attempt.
func ObserveRemediation(kind, result string) {
	if RemediationTotal != nil {
		RemediationTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveShopSync records a stock sync job outcome.
func ObserveShopSync(result string) {
	if ShopSyncTotal != nil {
		ShopSyncTotal.WithLabelValues(result).Inc()
	}
}
