package reporting

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/internal/storage"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

type ReportConfig struct {
	OutputDir       string   `yaml:"output_dir" json:"output_dir" mapstructure:"output_dir"`
	Formats         []string `yaml:"formats" json:"formats" mapstructure:"formats"`
	CompressReports bool     `yaml:"compress_reports" json:"compress_reports" mapstructure:"compress_reports"`
	TemplateDir     string   `yaml:"template_dir" json:"template_dir" mapstructure:"template_dir"`
}

func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		OutputDir: ".",
		Formats:   []string{"csv", "txt"},
	}
}

type Report struct {
	Metadata ReportMetadata           `json:"metadata" yaml:"metadata"`
	Summary  models.ScanSummary       `json:"summary" yaml:"summary"`
	Found    []models.DiscoveryResult `json:"found" yaml:"found"`
	Results  []models.DiscoveryResult `json:"results" yaml:"results"`
}

type ReportMetadata struct {
	GeneratedBy string    `json:"generated_by" yaml:"generated_by"`
	ToolVersion string    `json:"tool_version" yaml:"tool_version"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Partial     bool      `json:"partial" yaml:"partial"`
}

// ReportGenerator is the result sink of a scan. It writes one file per
// configured format and, when history is set, a JSON snapshot into it.
type ReportGenerator struct {
	formatters map[string]Formatter
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     ReportConfig
	history    *storage.LocalStorage
	now        func() time.Time
	written    []string
	reserved   map[string]bool
}

func NewReportGenerator(config ReportConfig, history *storage.LocalStorage, logger *logrus.Logger) (*ReportGenerator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	if len(config.Formats) == 0 {
		config.Formats = DefaultReportConfig().Formats
	}

	templates := NewTemplateManager()
	if config.TemplateDir != "" {
		if err := templates.LoadDir(config.TemplateDir, TemplateFuncs()); err != nil {
			return nil, fmt.Errorf("load report templates: %w", err)
		}
	}
	txt, err := NewTXTFormatter(templates)
	if err != nil {
		return nil, err
	}

	rg := &ReportGenerator{
		formatters: make(map[string]Formatter),
		logger:     logger,
		config:     config,
		history:    history,
		now:        time.Now,
		reserved:   make(map[string]bool),
	}
	rg.RegisterFormatter("csv", CSVFormatter{})
	rg.RegisterFormatter("json", JSONFormatter{})
	rg.RegisterFormatter("yaml", YAMLFormatter{})
	rg.RegisterFormatter("txt", txt)

	for _, f := range config.Formats {
		if _, ok := rg.formatters[f]; !ok {
			return nil, fmt.Errorf("unsupported report format: %s (supported: %s)", f, strings.Join(rg.SupportedFormats(), ", "))
		}
	}
	return rg, nil
}

func (rg *ReportGenerator) RegisterFormatter(name string, formatter Formatter) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.formatters[name] = formatter
}

func (rg *ReportGenerator) SupportedFormats() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	names := make([]string, 0, len(rg.formatters))
	for k := range rg.formatters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Deliver writes the reports of a finished scan.
func (rg *ReportGenerator) Deliver(ctx context.Context, summary models.ScanSummary, results []models.DiscoveryResult) error {
	_, err := rg.write(summary, results, false)
	return err
}

// Flush writes whatever an interrupted scan collected. It ignores ctx so it
// can run after cancellation.
func (rg *ReportGenerator) Flush(summary models.ScanSummary, results []models.DiscoveryResult) ([]string, error) {
	return rg.write(summary, results, true)
}

// Written lists every file produced so far.
func (rg *ReportGenerator) Written() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	out := make([]string, len(rg.written))
	copy(out, rg.written)
	return out
}

func (rg *ReportGenerator) GenerateReport(summary models.ScanSummary, results []models.DiscoveryResult, partial bool) *Report {
	found := make([]models.DiscoveryResult, 0, summary.Found)
	for _, r := range results {
		if r.Found {
			found = append(found, r)
		}
	}
	return &Report{
		Metadata: ReportMetadata{
			GeneratedBy: utils.ServiceName,
			ToolVersion: utils.Version,
			Timestamp:   rg.now(),
			Partial:     partial,
		},
		Summary: summary,
		Found:   found,
		Results: results,
	}
}

func (rg *ReportGenerator) write(summary models.ScanSummary, results []models.DiscoveryResult, partial bool) ([]string, error) {
	report := rg.GenerateReport(summary, results, partial)

	var paths []string
	for _, format := range rg.config.Formats {
		path, err := rg.ExportReport(report, format)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if rg.history != nil {
		path, err := rg.history.SaveResult(&models.ScanResult{Summary: summary, Results: results})
		if err != nil {
			rg.logger.Warnf("Failed to store scan history: %v", err)
		} else {
			paths = append(paths, path)
		}
	}

	rg.mu.Lock()
	rg.written = append(rg.written, paths...)
	rg.mu.Unlock()
	return paths, nil
}

func (rg *ReportGenerator) ExportReport(report *Report, format string) (string, error) {
	rg.mu.RLock()
	formatter, exists := rg.formatters[format]
	rg.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("unsupported report format: %s", format)
	}

	data, err := formatter.Format(report)
	if err != nil {
		return "", fmt.Errorf("failed to format report: %w", err)
	}

	outPath := rg.reservePath(report, formatter.FileExtension())
	if err := storage.WriteFileAtomic(outPath, func(w io.Writer) error {
		if !rg.config.CompressReports {
			_, err := w.Write(data)
			return err
		}
		gw := gzip.NewWriter(w)
		gw.Name = filepath.Base(outPath)
		gw.ModTime = report.Metadata.Timestamp
		if _, err := gw.Write(data); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()
	}); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	rg.logger.Infof("Report exported to %s", outPath)
	return outPath, nil
}

// reservePath picks the first free name for report. Later reports within the
// same second get a _2, _3, ... suffix instead of replacing earlier files.
func (rg *ReportGenerator) reservePath(report *Report, ext string) string {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	for seq := 1; ; seq++ {
		path := filepath.Join(rg.config.OutputDir, rg.generateFilename(report, ext, seq))
		if rg.reserved[path] {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		rg.reserved[path] = true
		return path
	}
}

func (rg *ReportGenerator) generateFilename(report *Report, ext string, seq int) string {
	tstamp := report.Metadata.Timestamp.Format("20060102_150405")
	if seq > 1 {
		tstamp = fmt.Sprintf("%s_%d", tstamp, seq)
	}
	domain := sanitizeFilename(report.Summary.Domain)
	name := fmt.Sprintf("shadowscan_%s_%s.%s", domain, tstamp, ext)
	if rg.config.CompressReports {
		name += ".gz"
	}
	return name
}

func sanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

var _ interface {
	Deliver(context.Context, models.ScanSummary, []models.DiscoveryResult) error
} = (*ReportGenerator)(nil)
