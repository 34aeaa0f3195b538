package orchestration

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

// LogObserver writes scan events to a logrus logger.
type LogObserver struct {
	logger      *logrus.Logger
	showMissing bool
}

func NewLogObserver(logger *logrus.Logger, showMissing bool) *LogObserver {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogObserver{logger: logger, showMissing: showMissing}
}

func (o *LogObserver) Notify(e models.Event) {
	entry := o.logger.WithField("phase", e.Phase)
	if len(e.Fields) > 0 {
		entry = entry.WithFields(logrus.Fields(e.Fields))
	}

	switch e.Type {
	case models.EventError:
		entry.Warn(e.Message)
	case models.EventProbeResult:
		if e.Result != nil && e.Result.Found {
			entry.Info(e.Message)
		} else if o.showMissing {
			entry.Info(e.Message)
		} else {
			entry.Debug(e.Message)
		}
	case models.EventRateLimit:
		entry.Debug(e.Message)
	default:
		entry.Info(e.Message)
	}
}

// MetricsObserver turns scan events into prometheus series.
type MetricsObserver struct {
	metrics *utils.MetricsCollector
	domain  string
}

func NewMetricsObserver(metrics *utils.MetricsCollector, domain string) *MetricsObserver {
	return &MetricsObserver{metrics: metrics, domain: domain}
}

func (o *MetricsObserver) Notify(e models.Event) {
	if o.metrics == nil {
		return
	}
	switch e.Type {
	case models.EventCTResult, models.EventProbeResult:
		if e.Result == nil {
			return
		}
		o.metrics.IncCounter(utils.MetricProbes, 1, prometheus.Labels{
			"source": e.Result.Source,
			"status": e.Result.Status(),
		})
		if e.Result.Found {
			o.metrics.IncCounter(utils.MetricFound, 1, prometheus.Labels{"source": e.Result.Source})
		}
	case models.EventRateLimit:
		if ms, ok := e.Fields["delay_ms"].(int64); ok {
			o.metrics.ObserveHistogram(utils.MetricDelaySeconds, (time.Duration(ms) * time.Millisecond).Seconds(), prometheus.Labels{})
		}
		if rate, ok := e.Fields["current_rate"].(float64); ok {
			o.metrics.SetGauge(utils.MetricAchievedRate, rate, prometheus.Labels{"domain": o.domain})
		}
	case models.EventProgress:
		if pct, ok := e.Fields["percent"].(float64); ok {
			o.metrics.SetGauge(utils.MetricProgressRatio, pct/100, prometheus.Labels{"domain": o.domain})
		}
	case models.EventSummary:
		if rate, ok := e.Fields["achieved_rate"].(float64); ok {
			o.metrics.SetGauge(utils.MetricAchievedRate, rate, prometheus.Labels{"domain": o.domain})
		}
	case models.EventError:
		o.metrics.IncCounter(utils.MetricErrors, 1, prometheus.Labels{"phase": e.Phase})
	}
}

type multiObserver []models.Observer

func (m multiObserver) Notify(e models.Event) {
	for _, o := range m {
		o.Notify(e)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...models.Observer) models.Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
