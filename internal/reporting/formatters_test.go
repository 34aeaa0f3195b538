package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

func sampleReport(partial bool) *Report {
	results := []models.DiscoveryResult{
		{Subdomain: "www.example.com", Found: true, ResolvedAddress: models.AddressFromCert, Source: models.SourceCT},
		{Subdomain: "api.example.com", Found: true, StatusCode: 200, ResolvedAddress: models.AddressUnknown, Source: models.SourceWordlist},
		{Subdomain: "vpn.example.com", Found: false, StatusCode: 404, ResolvedAddress: models.AddressUnknown, Source: models.SourceWordlist},
	}
	rg := &ReportGenerator{now: func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }}
	return rg.GenerateReport(models.ScanSummary{
		Domain:        "example.com",
		Duration:      90 * time.Second,
		TotalRequests: 3,
		TargetRate:    12,
		WordlistSize:  2,
		WordlistRan:   true,
		Found:         2,
		Total:         3,
	}, results, partial)
}

func TestCSVFormatterWritesFoundRowsOnly(t *testing.T) {
	out, err := CSVFormatter{}.Format(sampleReport(false))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	text := string(out)

	for _, want := range []string{
		"# Domain: example.com\n",
		"# Wordlist size: 2 words\n",
		"# Rate limit: 12 requests/minute\n",
		"SUBDOMAIN,STATUS,HTTP_CODE,IP\n",
		"www.example.com,FOUND,0,N/A (from cert)\n",
		"api.example.com,FOUND,200,N/A\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("csv output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "vpn.example.com") {
		t.Errorf("csv output contains a not-found row:\n%s", text)
	}
	if strings.Contains(text, "Partial") {
		t.Errorf("complete scan marked partial:\n%s", text)
	}
}

func TestCSVFormatterMarksPartial(t *testing.T) {
	out, err := CSVFormatter{}.Format(sampleReport(true))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(string(out), "# Partial: scan interrupted\n") {
		t.Errorf("partial marker missing:\n%s", out)
	}
}

func TestTXTFormatterListsDiscoveries(t *testing.T) {
	f, err := NewTXTFormatter(nil)
	if err != nil {
		t.Fatalf("NewTXTFormatter() error = %v", err)
	}
	out, err := f.Format(sampleReport(false))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"shadowscan summary for example.com",
		"Found:           2 of 3 (66.7%)",
		"www.example.com  from certificate",
		"api.example.com  HTTP 200",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("txt output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "vpn.example.com") {
		t.Errorf("txt output lists a miss:\n%s", text)
	}
}

func TestTXTFormatterNoDiscoveries(t *testing.T) {
	f, err := NewTXTFormatter(nil)
	if err != nil {
		t.Fatalf("NewTXTFormatter() error = %v", err)
	}
	r := &Report{Summary: models.ScanSummary{Domain: "empty.test"}}
	out, err := f.Format(r)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(string(out), "No subdomains discovered.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTemplateManagerLoadDirOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/summary.tmpl", "custom {{ .Summary.Domain }}")

	tm := NewTemplateManager()
	if err := tm.LoadDir(dir, TemplateFuncs()); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	f, err := NewTXTFormatter(tm)
	if err != nil {
		t.Fatalf("NewTXTFormatter() error = %v", err)
	}
	out, err := f.Format(sampleReport(false))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(out) != "custom example.com" {
		t.Errorf("Format() = %q", out)
	}
}
