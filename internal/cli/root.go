package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/patternmem/internal/config"
	"github.com/cadre-oss/patternmem/internal/telemetry"
	"github.com/cadre-oss/patternmem/pkg/patternmem"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "patternmem",
	Short: "Shared pattern memory for cooperating agents",
	Long: `patternmem - shared pattern memory with conflict resolution.

Agents record the choices they make as patterns keyed by context.
When several agents disagree, patternmem picks a winner using a
configurable strategy and explains why.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := patternmem.Suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./patternmem.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	rootCmd.PersistentFlags().Int("max-patterns", 0, "override max_patterns")
	rootCmd.PersistentFlags().String("snapshot-path", "", "override snapshot.path")
	viper.BindPFlag("max_patterns", rootCmd.PersistentFlags().Lookup("max-patterns"))
	viper.BindPFlag("snapshot.path", rootCmd.PersistentFlags().Lookup("snapshot-path"))

	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(supersedeCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("PATTERNMEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if verbose {
		path := cfgFile
		if path == "" {
			path = config.FileName
		}
		fmt.Fprintln(os.Stderr, "Using config file:", path)
	}
}

// overridable lists the settings that PATTERNMEM_* variables and the
// persistent flags may replace after the file is read.
var overridable = []string{
	"max_patterns",
	"ttl_days",
	"default_strategy",
	"team_priority_category",
	"snapshot.driver",
	"snapshot.path",
	"logging.level",
	"logging.format",
	"logging.file",
	"server.addr",
}

// readConfig reads the config file and applies overrides.
func readConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyOverrides(cfg)
	return cfg, nil
}

// loadConfig is readConfig followed by validation.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	for _, key := range overridable {
		if !viper.IsSet(key) {
			continue
		}
		switch key {
		case "max_patterns":
			cfg.MaxPatterns = viper.GetInt(key)
		case "ttl_days":
			cfg.TTLDays = viper.GetInt(key)
		case "default_strategy":
			cfg.DefaultStrategy = viper.GetString(key)
		case "team_priority_category":
			cfg.TeamPriorityCategory = viper.GetString(key)
		case "snapshot.driver":
			cfg.Snapshot.Driver = viper.GetString(key)
		case "snapshot.path":
			cfg.Snapshot.Path = viper.GetString(key)
		case "logging.level":
			cfg.Logging.Level = viper.GetString(key)
		case "logging.format":
			cfg.Logging.Format = viper.GetString(key)
		case "logging.file":
			cfg.Logging.File = viper.GetString(key)
		case "server.addr":
			cfg.Server.Addr = viper.GetString(key)
		}
	}
}

func newLogger(cfg *config.Config) *telemetry.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := telemetry.NewLoggerWithOptions(os.Stderr, level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}
	}
	return logger
}

// openEngine loads configuration and restores the snapshot.
func openEngine() (*patternmem.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return patternmem.OpenConfig(cfg, newLogger(cfg))
}

// withEngine runs fn against an opened engine and flushes it afterwards.
func withEngine(fn func(eng *patternmem.Engine) error) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	if err := fn(eng); err != nil {
		eng.Close()
		return err
	}
	return eng.Close()
}
