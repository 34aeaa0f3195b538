package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/shadowscan/internal/discovery/bruteforce"
	"github.com/bl4ck0w1/shadowscan/internal/discovery/ctlogs"
	"github.com/bl4ck0w1/shadowscan/internal/discovery/permutations"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/proxies"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/timing"
)

// ConfigVersion is written into new config files. Files from another major
// version are rejected.
const ConfigVersion = "1.0.0"

const configVersionConstraint = "^1.0"

func CheckConfigVersion(v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid config_version %q: %w", v, err)
	}
	c, err := semver.NewConstraint(configVersionConstraint)
	if err != nil {
		return err
	}
	if !c.Check(ver) {
		return fmt.Errorf("config_version %s is not supported (want %s); run `shadowscan configure init` to regenerate", v, configVersionConstraint)
	}
	return nil
}

func getDefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"config_version": ConfigVersion,
		"log": map[string]interface{}{
			"level":         "info",
			"format":        "text",
			"max_size":      50,
			"max_backups":   5,
			"max_age":       28,
			"compress":      true,
			"report_caller": false,
		},
		"scan": map[string]interface{}{
			"wordlist":            permutations.DefaultWordlistFile,
			"requests_per_minute": timing.DefaultRequestsPerMinute,
			"min_delay":           timing.DefaultMinDelay.String(),
			"max_delay":           timing.DefaultMaxDelay.String(),
			"jitter":              timing.DefaultJitterFraction,
			"settle_delay":        (2 * time.Second).String(),
			"user_agent":          ctlogs.DefaultUserAgent,
			"ct_endpoint":         ctlogs.DefaultEndpoint,
			"ct_timeout":          ctlogs.DefaultTimeout.String(),
			"probe_timeout":       bruteforce.DefaultTimeout.String(),
			"show_missing":        false,
		},
		"transport": map[string]interface{}{
			"proxies":           []string{proxies.DefaultProxyURL},
			"fingerprint":       "",
			"insecure":          true,
			"verify":            true,
			"require_tor":       true,
			"check_url":         proxies.DefaultCheckURL,
			"verify_attempts":   3,
			"reconnect_command": "",
		},
		"output": map[string]interface{}{
			"directory":    ".",
			"formats":      []string{"csv", "txt"},
			"compress":     false,
			"template_dir": "",
			"history_dir":  "",
			"retention":    "0s",
		},
		"metrics": map[string]interface{}{
			"address": "",
		},
	}
}

// SetDefaults registers every default under its dotted key.
func SetDefaults(v *viper.Viper) {
	setDefaults(v, "", getDefaultConfig())
}

func setDefaults(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, child)
			continue
		}
		v.SetDefault(key, val)
	}
}

type ScanSettings struct {
	Wordlist     string
	Limiter      timing.Config
	SettleDelay  time.Duration
	UserAgent    string
	CTEndpoint   string
	CTTimeout    time.Duration
	ProbeTimeout time.Duration
	ShowMissing  bool
	AssumeYes    bool

	Proxies          []string
	Fingerprint      string
	Insecure         bool
	Verify           bool
	RequireTor       bool
	CheckURL         string
	VerifyAttempts   int
	ReconnectCommand string

	OutputDir   string
	Formats     []string
	Compress    bool
	TemplateDir string
	HistoryDir  string
	Retention   time.Duration

	MetricsAddr string
}

func loadScanSettings(v *viper.Viper) ScanSettings {
	return ScanSettings{
		Wordlist: v.GetString("scan.wordlist"),
		Limiter: timing.Config{
			RequestsPerMinute: v.GetInt("scan.requests_per_minute"),
			MinDelay:          v.GetDuration("scan.min_delay"),
			MaxDelay:          v.GetDuration("scan.max_delay"),
			JitterFraction:    v.GetFloat64("scan.jitter"),
		},
		SettleDelay:  v.GetDuration("scan.settle_delay"),
		UserAgent:    v.GetString("scan.user_agent"),
		CTEndpoint:   v.GetString("scan.ct_endpoint"),
		CTTimeout:    v.GetDuration("scan.ct_timeout"),
		ProbeTimeout: v.GetDuration("scan.probe_timeout"),
		ShowMissing:  v.GetBool("scan.show_missing"),
		AssumeYes:    v.GetBool("scan.yes"),

		Proxies:          v.GetStringSlice("transport.proxies"),
		Fingerprint:      v.GetString("transport.fingerprint"),
		Insecure:         v.GetBool("transport.insecure"),
		Verify:           v.GetBool("transport.verify"),
		RequireTor:       v.GetBool("transport.require_tor"),
		CheckURL:         v.GetString("transport.check_url"),
		VerifyAttempts:   v.GetInt("transport.verify_attempts"),
		ReconnectCommand: v.GetString("transport.reconnect_command"),

		OutputDir:   v.GetString("output.directory"),
		Formats:     v.GetStringSlice("output.formats"),
		Compress:    v.GetBool("output.compress"),
		TemplateDir: v.GetString("output.template_dir"),
		HistoryDir:  v.GetString("output.history_dir"),
		Retention:   v.GetDuration("output.retention"),

		MetricsAddr: v.GetString("metrics.address"),
	}
}

func (s ScanSettings) transportConfig() proxies.TransportConfig {
	cfg := proxies.DefaultTransportConfig()
	cfg.InsecureSkipVerify = s.Insecure
	cfg.Fingerprint = s.Fingerprint
	return cfg
}

func (s ScanSettings) verifierConfig() proxies.VerifierConfig {
	cfg := proxies.DefaultVerifierConfig()
	if s.CheckURL != "" {
		cfg.CheckURL = s.CheckURL
	}
	if s.VerifyAttempts > 0 {
		cfg.Attempts = s.VerifyAttempts
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	cfg.RequireTor = s.RequireTor
	return cfg
}
