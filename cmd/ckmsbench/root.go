package main

import (
	"os"
	"strings"

	"github.com/axiomhq/ckms"
	"github.com/axiomhq/ckms/bench"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	logLevel   string

	logger log.Logger
	cfg    benchConfig
)

// benchConfig is the YAML document read by --config.
//
//	estimator:
//	  strategy: queue
//	  queue_threshold: 500
//	run:
//	  writers: 8
//	  per_writer: 100000
//	  stats_interval: 1s
type benchConfig struct {
	Estimator ckms.Config     `yaml:"estimator"`
	Run       bench.RunConfig `yaml:"run"`
}

func defaultBenchConfig() benchConfig {
	return benchConfig{
		Estimator: ckms.DefaultConfig(),
		Run:       bench.DefaultRunConfig(),
	}
}

func loadBenchConfig(path string) (benchConfig, error) {
	c := defaultBenchConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "parsing config %s", path)
	}
	if len(c.Estimator.Targets) == 0 {
		c.Estimator.Targets = ckms.DefaultConfig().Targets
	}
	return c, nil
}

func newLogger(lvl string) (log.Logger, error) {
	var allow level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		allow = level.AllowDebug()
	case "info":
		allow = level.AllowInfo()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		return nil, errors.Errorf("unknown log level %q", lvl)
	}
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(l, allow), nil
}

var RootCmd = &cobra.Command{
	Use:   "ckmsbench",
	Short: "Benchmarks targeted quantile estimators",
	Long: `Feeds concurrent writers into a ckms estimator, or a set of other quantile sketches,
and reports throughput, summary size and the exact rank error of each estimate.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logger, err = newLogger(logLevel); err != nil {
			return err
		}
		if cfg, err = loadBenchConfig(configPath); err != nil {
			return err
		}
		return applyFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		// fall back on default help if no args/flags are passed.
		cmd.HelpFunc()(cmd, args)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with estimator and run settings.")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "One of debug, info, warn, error.")
	RootCmd.PersistentFlags().Int("writers", 0, "Number of writer goroutines.")
	RootCmd.PersistentFlags().Int("per-writer", 0, "Values observed by each writer.")
	RootCmd.PersistentFlags().Int64("seed", 0, "Seed of the value generator.")
	RootCmd.PersistentFlags().Bool("permutation", false, "Observe a shuffled 0..n-1 instead of uniform values.")
	RootCmd.PersistentFlags().Bool("verify", false, "Compute the exact rank error of every estimate.")
	RootCmd.PersistentFlags().Duration("stats-interval", 0, "Flush and log sketch size at this interval.")
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(compareCmd)
}

// applyFlags overrides the loaded config with the flags set on the command
// line.
func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("writers") {
		cfg.Run.Writers, err = flags.GetInt("writers")
	}
	if err == nil && flags.Changed("per-writer") {
		cfg.Run.PerWriter, err = flags.GetInt("per-writer")
	}
	if err == nil && flags.Changed("seed") {
		cfg.Run.Seed, err = flags.GetInt64("seed")
	}
	if err == nil && flags.Changed("permutation") {
		cfg.Run.Permutation, err = flags.GetBool("permutation")
	}
	if err == nil && flags.Changed("verify") {
		cfg.Run.Verify, err = flags.GetBool("verify")
	}
	if err == nil && flags.Changed("stats-interval") {
		cfg.Run.StatsInterval, err = flags.GetDuration("stats-interval")
	}
	if err != nil {
		return err
	}
	return cfg.Run.Validate()
}
