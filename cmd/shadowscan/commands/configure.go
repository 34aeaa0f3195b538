package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bl4ck0w1/shadowscan/internal/storage"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage shadowscan configuration",
		Long: `Initialize, inspect and edit the YAML configuration file
(default ~/.shadowscan/config.yaml).`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureSetCommand())
	cmd.AddCommand(newConfigureGetCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE:  runConfigureInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file without asking")
	return cmd
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the merged configuration (defaults, file, environment and flags) as YAML.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigureShow,
	}
}

func newConfigureSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the configuration file.
Supports dotted keys (e.g. "scan.requests_per_minute") and basic type parsing:
- booleans: true/false
- integers/floats: 10, 0.25
- durations (for keys containing timeout|delay|retention): "30s", "4s"
- string lists: "a,b,c" -> ["a","b","c"]`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigureSet,
	}
}

func newConfigureGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get an effective configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, viper.Get(key))
			return nil
		},
	}
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configFile); err == nil && !force {
		logrus.Warnf("Configuration file already exists: %s", configFile)
		ok, ierr := confirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout())
		if ierr != nil {
			return ierr
		}
		if !ok {
			logrus.Info("Configuration initialization cancelled")
			return nil
		}
	}

	if err := writeYAMLFile(configFile, getDefaultConfig()); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Configuration initialized: %s", configFile)
	logrus.Info("Edit this file to customize defaults. Run `shadowscan configure show` to view.")
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()
	delete(settings, "config")
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	w := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# file: %s\n", used)
	}
	_, err = w.Write(out)
	return err
}

func runConfigureSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	cfg, err := loadConfigFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, ok := cfg["config_version"]; !ok {
		cfg["config_version"] = ConfigVersion
	}

	val, err := parseValueForKey(key, args[1])
	if err != nil {
		return err
	}
	setNested(cfg, strings.Split(key, "."), val)

	if err := writeYAMLFile(configFile, cfg); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Set %s = %v in %s", key, val, configFile)
	return nil
}

func configFilePath() (string, error) {
	if cfg := viper.GetString("config"); cfg != "" {
		return cfg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".shadowscan", "config.yaml"), nil
}

func loadConfigFile(path string) (map[string]interface{}, error) {
	cfg := map[string]interface{}{}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if v, ok := cfg["config_version"].(string); ok {
		if err := CheckConfigVersion(v); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func writeYAMLFile(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(out)
		return err
	})
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	k := keys[0]
	child, ok := dst[k].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[k] = child
}

var durationKeyHints = []string{"timeout", "delay", "retention"}

func isDurationKey(key string) bool {
	lower := strings.ToLower(key)
	for _, n := range durationKeyHints {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// parseValueForKey types a command-line value. Duration keys need a unit:
// a bare number would be read as nanoseconds.
func parseValueForKey(key, s string) (interface{}, error) {
	trim := strings.TrimSpace(s)

	if isDurationKey(key) {
		d, err := time.ParseDuration(trim)
		if err != nil {
			return nil, fmt.Errorf("%s needs a duration with a unit such as \"4s\" or \"500ms\": %w", key, err)
		}
		return d.String(), nil
	}
	if strings.Contains(trim, ",") {
		parts := strings.Split(trim, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out, nil
	}
	if b, err := strconv.ParseBool(trim); err == nil {
		return b, nil
	}
	if i, err := strconv.Atoi(trim); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(trim, 64); err == nil {
		return f, nil
	}
	return trim, nil
}

func confirmOverwrite(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Configuration file already exists. Overwrite? (y/N): ")
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
