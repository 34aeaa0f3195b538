package reporting

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/bl4ck0w1/shadowscan/internal/storage"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestGenerator(t *testing.T, cfg ReportConfig, history *storage.LocalStorage) *ReportGenerator {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rg, err := NewReportGenerator(cfg, history, logger)
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}
	rg.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return rg
}

var testResults = []models.DiscoveryResult{
	{Subdomain: "api.example.com", Found: true, StatusCode: 200, ResolvedAddress: models.AddressUnknown, Source: models.SourceWordlist},
	{Subdomain: "vpn.example.com", StatusCode: 404, ResolvedAddress: models.AddressUnknown, Source: models.SourceWordlist},
}

func TestNewReportGeneratorRejectsUnknownFormat(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewReportGenerator(ReportConfig{OutputDir: t.TempDir(), Formats: []string{"pdf"}}, nil, logger)
	if err == nil || !strings.Contains(err.Error(), "unsupported report format: pdf") {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}
}

func TestDeliverWritesEveryFormat(t *testing.T) {
	dir := t.TempDir()
	rg := newTestGenerator(t, ReportConfig{OutputDir: dir, Formats: []string{"csv", "txt", "json", "yaml"}}, nil)

	summary := models.ScanSummary{Domain: "example.com", Found: 1, Total: 2}
	if err := rg.Deliver(context.Background(), summary, testResults); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	for _, ext := range []string{"csv", "txt", "json", "yaml"} {
		path := filepath.Join(dir, "shadowscan_example.com_20240501_100000."+ext)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s report: %v", ext, err)
		}
	}
	if got := len(rg.Written()); got != 4 {
		t.Errorf("Written() = %d files, want 4", got)
	}
}

func TestDeliverSameSecondKeepsEarlierReports(t *testing.T) {
	dir := t.TempDir()
	rg := newTestGenerator(t, ReportConfig{OutputDir: dir, Formats: []string{"csv"}}, nil)
	summary := models.ScanSummary{Domain: "example.com", Found: 1, Total: 2}

	if err := rg.Deliver(context.Background(), summary, testResults); err != nil {
		t.Fatal(err)
	}
	paths, err := rg.Flush(summary, testResults)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "shadowscan_example.com_20240501_100000_2.csv"); len(paths) != 1 || paths[0] != want {
		t.Fatalf("second report paths = %v, want %s", paths, want)
	}

	// a fresh generator must not overwrite files left by an earlier run
	other := newTestGenerator(t, ReportConfig{OutputDir: dir, Formats: []string{"csv"}}, nil)
	paths, err = other.Flush(summary, testResults)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "shadowscan_example.com_20240501_100000_3.csv"); paths[0] != want {
		t.Errorf("third report path = %s, want %s", paths[0], want)
	}

	first, err := os.ReadFile(filepath.Join(dir, "shadowscan_example.com_20240501_100000.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(first), "# Partial") {
		t.Errorf("first report was replaced:\n%s", first)
	}
}

func TestFlushMarksPartialAndCompresses(t *testing.T) {
	dir := t.TempDir()
	rg := newTestGenerator(t, ReportConfig{OutputDir: dir, Formats: []string{"csv"}, CompressReports: true}, nil)

	paths, err := rg.Flush(models.ScanSummary{Domain: "example.com"}, testResults)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], ".csv.gz") {
		t.Fatalf("Flush() paths = %v", paths)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "# Partial: scan interrupted") {
		t.Errorf("flushed csv not marked partial:\n%s", body)
	}
	if !strings.Contains(string(body), "api.example.com,FOUND,200,N/A") {
		t.Errorf("flushed csv missing hit:\n%s", body)
	}
}

func TestDeliverStoresHistory(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	history, err := storage.NewLocalStorage(t.TempDir(), false, 0, logger)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	rg := newTestGenerator(t, ReportConfig{OutputDir: t.TempDir(), Formats: []string{"txt"}}, history)

	if err := rg.Deliver(context.Background(), models.ScanSummary{Domain: "example.com", Found: 1, Total: 2}, testResults); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	stored, err := history.ListResults("example.com")
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(stored) != 1 || len(stored[0].Results) != 2 {
		t.Fatalf("stored history = %+v", stored)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"example.com": "example.com",
		"":            "unknown",
		"a/b\\c d":    "a_b_c_d",
		"sub-1_x.org": "sub-1_x.org",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
