package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

type Formatter interface {
	Format(report *Report) ([]byte, error)
	FileExtension() string
}

// CSVFormatter writes found results only, under a commented header.
type CSVFormatter struct{}

func (CSVFormatter) FileExtension() string { return "csv" }

func (CSVFormatter) Format(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	s := r.Summary
	fmt.Fprintf(&buf, "# shadowscan results\n")
	fmt.Fprintf(&buf, "# Date: %s\n", r.Metadata.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&buf, "# Domain: %s\n", s.Domain)
	fmt.Fprintf(&buf, "# Wordlist size: %d words\n", s.WordlistSize)
	fmt.Fprintf(&buf, "# Rate limit: %d requests/minute\n", s.TargetRate)
	if r.Metadata.Partial {
		fmt.Fprintf(&buf, "# Partial: scan interrupted\n")
	}
	buf.WriteString("\n")

	w := csv.NewWriter(&buf)
	if err := w.Write(models.RecordHeader); err != nil {
		return nil, err
	}
	for _, res := range r.Results {
		if !res.Found {
			continue
		}
		if err := w.Write(res.Record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

type JSONFormatter struct{}

func (JSONFormatter) FileExtension() string { return "json" }

func (JSONFormatter) Format(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

type YAMLFormatter struct{}

func (YAMLFormatter) FileExtension() string { return "yaml" }

func (YAMLFormatter) Format(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

const summaryTemplateName = "summary.tmpl"

const defaultSummaryTemplate = `shadowscan summary for {{ .Summary.Domain }}
Generated: {{ .Metadata.Timestamp.Format "2006-01-02 15:04:05 MST" }}{{ if .Metadata.Partial }} (partial, scan interrupted){{ end }}

Duration:        {{ duration .Summary.Duration }}
Total requests:  {{ .Summary.TotalRequests }}
Achieved rate:   {{ printf "%.2f" .Summary.AchievedRate }} req/min (target {{ .Summary.TargetRate }})
Wordlist:        {{ .Summary.WordlistSize }} words{{ if not .Summary.WordlistRan }} (not run){{ end }}
Found:           {{ .Summary.Found }} of {{ .Summary.Total }} ({{ printf "%.1f" .Summary.ActivePercent }}%)
Fingerprint:     {{ .Summary.Fingerprint }}
{{ if .Found }}
Successful discoveries:
{{ range .Found }}  {{ .Subdomain }}  {{ if .HasStatus }}HTTP {{ .StatusCode }}{{ else }}from certificate{{ end }}
{{ end }}{{ else }}
No subdomains discovered.
{{ end }}`

// TXTFormatter renders summary.tmpl from its template manager.
type TXTFormatter struct {
	templates *TemplateManager
}

func NewTXTFormatter(tm *TemplateManager) (*TXTFormatter, error) {
	if tm == nil {
		tm = NewTemplateManager()
	}
	if _, ok := tm.Get(summaryTemplateName); !ok {
		if err := tm.Register(summaryTemplateName, defaultSummaryTemplate, TemplateFuncs()); err != nil {
			return nil, err
		}
	}
	return &TXTFormatter{templates: tm}, nil
}

func (*TXTFormatter) FileExtension() string { return "txt" }

func (f *TXTFormatter) Format(r *Report) ([]byte, error) {
	t, ok := f.templates.Get(summaryTemplateName)
	if !ok {
		return nil, fmt.Errorf("template %s not registered", summaryTemplateName)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render %s: %w", summaryTemplateName, err)
	}
	return buf.Bytes(), nil
}

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"duration": utils.HumanizeDuration,
	}
}
