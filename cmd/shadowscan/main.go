package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/shadowscan/cmd/shadowscan/commands"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

var (
	version   = utils.Version
	commit    = "unknown"
	buildDate = "unknown"
)

// logCloser releases the log file once the command returns.
var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:           "shadowscan",
	Short:         "shadowscan - rate-limited subdomain discovery over Tor",
	Long:          "shadowscan combines a Certificate Transparency lookup with a slow, jittered wordlist probe routed through an anonymizing proxy.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := initLogging(); err != nil {
			return err
		}
		if !viper.GetBool("quiet") && cmd.Name() == "scan" {
			printBanner()
		}
		return nil
	},
}

func Execute() {
	if err := run(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes cmd and closes the log file whatever the outcome, since
// cobra skips post-run hooks when RunE fails.
func run(cmd *cobra.Command) error {
	err := cmd.Execute()
	if logCloser != nil {
		if cerr := logCloser.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", cerr)
		}
		logCloser = nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.shadowscan/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode (no banner output)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path (rotated)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log.file_location", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewConfigureCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, buildDate))

	rootCmd.SetVersionTemplate(fmt.Sprintf("shadowscan %s (commit %s, built %s)\n", version, commit, buildDate))
}

func initConfig() error {
	commands.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("SHADOWSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		viper.AddConfigPath(filepath.Join(home, ".shadowscan"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logrus.Warnf("Failed reading config file: %v", err)
		}
		return nil
	}
	logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	return commands.CheckConfigVersion(viper.GetString("config_version"))
}

func initLogging() error {
	logConfig := utils.LogConfig{
		Level:        viper.GetString("log.level"),
		Format:       viper.GetString("log.format"),
		FileLocation: viper.GetString("log.file_location"),
		MaxSize:      viper.GetInt("log.max_size"),
		MaxBackups:   viper.GetInt("log.max_backups"),
		MaxAge:       viper.GetInt("log.max_age"),
		Compress:     viper.GetBool("log.compress"),
		ReportCaller: viper.GetBool("log.report_caller"),
	}

	logger, err := utils.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger, falling back to console: %v\n", err)
		logger = utils.ConsoleLogger(logConfig.Level)
	}
	logCloser = logger
	commands.SetLogger(logger)

	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.Level)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetReportCaller(logger.ReportCaller)
	for _, h := range logger.Hooks[logrus.InfoLevel] {
		logrus.AddHook(h)
	}
	return nil
}

func printBanner() {
	const banner = `
   ___ _            _                ___
  / __| |_  __ _ __| |_____ __ __  / __| __ __ _ _ _
  \__ \ ' \/ _' / _' / _ \ V  V /  \__ \/ _/ _' | ' \
  |___/_||_\__,_\__,_\___/\_/\_/   |___/\__\__,_|_||_|   v%s

`
	fmt.Printf(banner, version)
	fmt.Printf("Build: %s (%s) | %s/%s\n\n", commit, buildDate, runtime.GOOS, runtime.GOARCH)
}

func main() {
	startTime := time.Now()
	Execute()
	if strings.EqualFold(viper.GetString("log.level"), "debug") {
		logrus.Debugf("Execution completed in %v", time.Since(startTime))
	}
}
