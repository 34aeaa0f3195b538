package orchestration

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

func TestMetricsObserver(t *testing.T) {
	metrics, err := utils.NewScanMetrics(false)
	if err != nil {
		t.Fatalf("NewScanMetrics() error = %v", err)
	}
	obs := Observers(NewMetricsObserver(metrics, "example.com"), nil)

	hit := models.DiscoveryResult{Subdomain: "api.example.com", Found: true, StatusCode: 200, Source: models.SourceWordlist}
	miss := models.DiscoveryResult{Subdomain: "vpn.example.com", StatusCode: 404, Source: models.SourceWordlist}
	for _, r := range []models.DiscoveryResult{hit, miss} {
		ev := models.NewEvent(models.EventProbeResult, discovery.PhaseWordlist, r.Subdomain)
		ev.Result = &r
		obs.Notify(ev)
	}
	obs.Notify(models.NewEvent(models.EventRateLimit, discovery.PhaseWordlist, "delay").
		With("delay_ms", int64(5000)).
		With("current_rate", 11.5))
	obs.Notify(models.NewEvent(models.EventError, discovery.PhaseCT, "ct down"))

	if n, err := testutil.GatherAndCount(metrics.GetRegistry(), utils.MetricProbes); err != nil || n != 2 {
		t.Errorf("probe series = %d (err %v), want 2", n, err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`shadowscan_found_total{source="wordlist"} 1`,
		`shadowscan_errors_total{phase="ct"} 1`,
		`shadowscan_achieved_rate_per_minute{domain="example.com"} 11.5`,
		`shadowscan_rate_limit_delay_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
