package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	deliveryRate           prometheus.Gauge
	maintenanceDuration    *prometheus.HistogramVec
	maintenanceLastSuccess *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	return &collectors{
		deliveryRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "email_delivery_rate",
				Help:      "Share of user-preference emails handed off successfully since start (admin alerts excluded)",
			},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		maintenanceLastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.deliveryRate,
		c.maintenanceDuration,
		c.maintenanceLastSuccess,
	}
}

func observeDuration(observer prometheus.Observer, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	observer.Observe(duration.Seconds())
}
