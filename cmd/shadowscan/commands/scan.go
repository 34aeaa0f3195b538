package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/bl4ck0w1/shadowscan/internal/discovery"
	"github.com/bl4ck0w1/shadowscan/internal/discovery/bruteforce"
	"github.com/bl4ck0w1/shadowscan/internal/discovery/ctlogs"
	"github.com/bl4ck0w1/shadowscan/internal/discovery/permutations"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/proxies"
	"github.com/bl4ck0w1/shadowscan/internal/evasion/timing"
	"github.com/bl4ck0w1/shadowscan/internal/orchestration"
	"github.com/bl4ck0w1/shadowscan/internal/reporting"
	"github.com/bl4ck0w1/shadowscan/internal/storage"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [domain]",
		Short: "Discover subdomains through CT logs and a paced wordlist probe",
		Long: `Query Certificate Transparency logs for the target, then probe each
wordlist candidate with a HEAD request, spacing requests with a jittered
delay and routing everything through the configured proxy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScan,
	}

	cmd.Flags().String("domains-file", "", "File with one target domain per line")
	cmd.Flags().StringP("wordlist", "w", permutations.DefaultWordlistFile, "Wordlist file (created with defaults if missing)")
	cmd.Flags().Int("rpm", timing.DefaultRequestsPerMinute, "Target requests per minute")
	cmd.Flags().Duration("min-delay", timing.DefaultMinDelay, "Lower bound of the inter-request delay")
	cmd.Flags().Duration("max-delay", timing.DefaultMaxDelay, "Upper bound of the inter-request delay")
	cmd.Flags().Float64("jitter", timing.DefaultJitterFraction, "Relative jitter applied to each delay (0-1)")
	cmd.Flags().Duration("settle", 2*time.Second, "Pause after the transport is ready, before the first request")
	cmd.Flags().String("user-agent", ctlogs.DefaultUserAgent, "User-Agent header")
	cmd.Flags().StringSlice("proxy", []string{proxies.DefaultProxyURL}, "Proxy URLs, tried in order (socks5h://, http://)")
	cmd.Flags().String("fingerprint", "", "TLS ClientHello fingerprint (golang, randomized)")
	cmd.Flags().Bool("no-verify", false, "Skip the anonymity check of the proxy")
	cmd.Flags().String("reconnect-command", "", "Command run between failed proxy checks, e.g. \"systemctl start tor\"")
	cmd.Flags().BoolP("yes", "y", false, "Run the wordlist phase without asking")
	cmd.Flags().Bool("show-missing", false, "Log candidates that did not answer")
	cmd.Flags().StringP("output", "o", ".", "Report directory")
	cmd.Flags().StringSliceP("formats", "f", []string{"csv", "txt"}, "Report formats (csv, txt, json, yaml)")
	cmd.Flags().Bool("compress", false, "Gzip report files")
	cmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address during the scan")

	_ = viper.BindPFlag("scan.domains_file", cmd.Flags().Lookup("domains-file"))
	_ = viper.BindPFlag("scan.wordlist", cmd.Flags().Lookup("wordlist"))
	_ = viper.BindPFlag("scan.requests_per_minute", cmd.Flags().Lookup("rpm"))
	_ = viper.BindPFlag("scan.min_delay", cmd.Flags().Lookup("min-delay"))
	_ = viper.BindPFlag("scan.max_delay", cmd.Flags().Lookup("max-delay"))
	_ = viper.BindPFlag("scan.jitter", cmd.Flags().Lookup("jitter"))
	_ = viper.BindPFlag("scan.settle_delay", cmd.Flags().Lookup("settle"))
	_ = viper.BindPFlag("scan.user_agent", cmd.Flags().Lookup("user-agent"))
	_ = viper.BindPFlag("scan.yes", cmd.Flags().Lookup("yes"))
	_ = viper.BindPFlag("scan.show_missing", cmd.Flags().Lookup("show-missing"))
	_ = viper.BindPFlag("transport.proxies", cmd.Flags().Lookup("proxy"))
	_ = viper.BindPFlag("transport.fingerprint", cmd.Flags().Lookup("fingerprint"))
	_ = viper.BindPFlag("transport.reconnect_command", cmd.Flags().Lookup("reconnect-command"))
	_ = viper.BindPFlag("output.directory", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("output.formats", cmd.Flags().Lookup("formats"))
	_ = viper.BindPFlag("output.compress", cmd.Flags().Lookup("compress"))
	_ = viper.BindPFlag("metrics.address", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := currentLogger().Logger
	settings := loadScanSettings(viper.GetViper())
	if noVerify, _ := cmd.Flags().GetBool("no-verify"); noVerify {
		settings.Verify = false
	}

	domains, err := targetDomains(args, viper.GetString("scan.domains_file"))
	if err != nil {
		return err
	}

	wordlist, err := permutations.NewWordlistManager(true, logger).Load(settings.Wordlist)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"path":  wordlist.Path,
		"words": len(wordlist.Words),
	}).Info("Wordlist loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildTransport(ctx, settings, logger)
	if err != nil {
		return err
	}

	if err := sleepCtx(ctx, settings.SettleDelay); err != nil {
		logger.Info("Interrupted before the first request")
		return nil
	}

	generator, err := buildReportGenerator(settings, logger)
	if err != nil {
		return err
	}

	metrics, err := utils.NewScanMetrics(false)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	gate := orchestration.AlwaysProceed
	if !settings.AssumeYes {
		gate = NewPromptGate(os.Stdin, os.Stdout)
	}

	factory := func(domain string) (*orchestration.Scanner, error) {
		log := currentLogger().WithComponent("scanner", logrus.Fields{"domain": domain})
		observer := orchestration.Observers(
			orchestration.NewLogObserver(log, settings.ShowMissing),
			orchestration.NewMetricsObserver(metrics, domain),
		)
		limiter := timing.NewRateLimiter(settings.Limiter, log, timing.WithObserver(observer))
		fetcher := ctlogs.NewFetcher(client, limiter, ctlogs.Config{
			Endpoint:  settings.CTEndpoint,
			Timeout:   settings.CTTimeout,
			UserAgent: settings.UserAgent,
		}, log, observer)
		prober := bruteforce.NewProber(client, limiter, bruteforce.Config{
			Timeout:   settings.ProbeTimeout,
			UserAgent: settings.UserAgent,
		}, log, observer)
		return orchestration.NewScanner(fetcher, prober, limiter, gate, generator, log, observer), nil
	}
	workflow := orchestration.NewWorkflowManager(factory, logger)

	scanCtx, cancelServer := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(scanCtx)
	if settings.MetricsAddr != "" {
		g.Go(func() error {
			logger.Infof("Serving metrics on %s/metrics", settings.MetricsAddr)
			return metrics.StartServerWithContext(gctx, settings.MetricsAddr)
		})
	}

	var runErr error
	g.Go(func() error {
		defer cancelServer()
		_, runErr = workflow.RunAll(ctx, domains, wordlist.Words)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warnf("Metrics server stopped: %v", err)
	}

	for _, run := range workflow.Runs() {
		if run.Err == nil {
			printSummary(os.Stdout, run)
		}
	}
	printReports(os.Stdout, generator.Written())
	logger.WithFields(logrus.Fields(workflow.GetStats())).Debug("Workflow finished")

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		return flushPartial(workflow, generator, logger)
	case discovery.IsFatal(runErr):
		return runErr
	default:
		logger.Errorf("Scan finished with errors: %v", runErr)
		return nil
	}
}

func targetDomains(args []string, domainsFile string) ([]string, error) {
	var domains []string
	if len(args) == 1 {
		d, err := utils.NormalizeDomain(args[0])
		if err != nil {
			return nil, &discovery.ConfigurationError{Reason: err.Error()}
		}
		domains = append(domains, d)
	}
	if domainsFile != "" {
		fromFile, err := utils.ReadDomainsFile(domainsFile)
		if err != nil {
			return nil, &discovery.ConfigurationError{Reason: err.Error()}
		}
		domains = append(domains, fromFile...)
	}
	if len(domains) == 0 {
		return nil, &discovery.ConfigurationError{Reason: "a target domain or --domains-file is required"}
	}
	return domains, nil
}

func buildTransport(ctx context.Context, s ScanSettings, logger *logrus.Logger) (*http.Client, error) {
	var opts []proxies.VerifierOption
	if s.ReconnectCommand != "" {
		opts = append(opts, proxies.WithReconnect(proxies.CommandHook(s.ReconnectCommand, logger)))
	}
	manager := proxies.NewProxyManager(s.Proxies, s.transportConfig(), s.verifierConfig(), logger, opts...)

	client, active, err := manager.Select(ctx, s.Verify)
	if err != nil {
		return nil, err
	}
	entry := logger.WithField("proxy", manager.GetStats()["active"])
	if active.ExitIP != "" {
		entry = entry.WithField("exit_ip", active.ExitIP)
	}
	if s.Verify {
		entry.Info("Transport verified")
	} else {
		entry.Warn("Transport not verified")
	}
	return client, nil
}

func buildReportGenerator(s ScanSettings, logger *logrus.Logger) (*reporting.ReportGenerator, error) {
	var history *storage.LocalStorage
	if s.HistoryDir != "" {
		h, err := storage.NewLocalStorage(s.HistoryDir, s.Compress, s.Retention, logger)
		if err != nil {
			return nil, err
		}
		history = h
	}
	return reporting.NewReportGenerator(reporting.ReportConfig{
		OutputDir:       s.OutputDir,
		Formats:         s.Formats,
		CompressReports: s.Compress,
		TemplateDir:     s.TemplateDir,
	}, history, logger)
}

// flushPartial writes what the interrupted scan collected before exiting.
func flushPartial(workflow *orchestration.WorkflowManager, generator *reporting.ReportGenerator, logger *logrus.Logger) error {
	current := workflow.Current()
	if current == nil {
		logger.Info("Scan interrupted before any result")
		return nil
	}
	summary := current.Summary()
	paths, err := generator.Flush(summary, current.Results())
	if err != nil {
		return fmt.Errorf("save partial results: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"domain": summary.Domain,
		"found":  summary.Found,
		"files":  paths,
	}).Warn("Scan interrupted, partial results saved")
	return nil
}

func printReports(w io.Writer, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintln(w, "Reports:")
	for _, p := range paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

func printSummary(w io.Writer, run orchestration.DomainRun) {
	s := run.Summary
	fmt.Fprintf(w, `
Scan Summary:
═══════════════════════════════════════════════════════════════
Domain:           %s
Subdomains Found: %d of %d tested (%.0f%% active)
Requests:         %d (%.2f/min, target %d/min)
Scan Duration:    %s
═══════════════════════════════════════════════════════════════
`, s.Domain, s.Found, s.Total, s.ActivePercent(), s.TotalRequests, s.AchievedRate, s.TargetRate, utils.HumanizeDuration(s.Duration))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
