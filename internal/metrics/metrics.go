package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 页面抓取结果标签
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "v2scrape_pages_fetched_total",
		Help: "Source pages fetched by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	configsAccepted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "v2scrape_configs_accepted",
		Help: "Configs accepted per protocol (last run)",
	}, []string{"protocol"})

	configsFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "v2scrape_configs_filtered_total",
		Help: "Configs dropped by the filter rules, by reason",
	}, []string{"reason"})

	countryConfigs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "v2scrape_country_configs",
		Help: "Configs matched per country (last run)",
	}, []string{"country"})

	configsReachable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "v2scrape_configs_reachable",
		Help: "Configs that passed the TCP probe (last run)",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "v2scrape_run_duration_seconds",
		Help:    "Duration of a full collection run",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	runFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "v2scrape_run_failures_total",
		Help: "Failed runs by stage",
	}, []string{"stage"}) // stage=inputs|fetch|storage|readme|sink

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "v2scrape_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})
)

func IncPageFetched(outcome string) { pagesFetchedTotal.WithLabelValues(outcome).Inc() }
func IncFiltered(reason string)     { configsFilteredTotal.WithLabelValues(reason).Inc() }
func IncRunFailure(stage string)    { runFailuresTotal.WithLabelValues(stage).Inc() }
func RecordReachable(n int)         { configsReachable.Set(float64(n)) }

// RecordAccepted 用本次运行的结果替换各协议的计数，上次有而这次没有的协议归零。
func RecordAccepted(byProtocol map[string]int) {
	configsAccepted.Reset()
	for protocol, n := range byProtocol {
		configsAccepted.WithLabelValues(protocol).Set(float64(n))
	}
}

// RecordCountries 同 RecordAccepted。
func RecordCountries(byCountry map[string]int) {
	countryConfigs.Reset()
	for country, n := range byCountry {
		countryConfigs.WithLabelValues(country).Set(float64(n))
	}
}

func RecordRun(d time.Duration, finishedAt time.Time) {
	runDuration.Observe(d.Seconds())
	lastSuccess.Set(float64(finishedAt.Unix()))
}

// WriteTextfile 把默认注册表导出为 node_exporter textfile collector 格式。
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
