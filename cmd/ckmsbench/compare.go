package main

import (
	"math"
	"os"

	"github.com/axiomhq/ckms"
	"github.com/axiomhq/ckms/bench"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

var (
	compression float64
	accuracy    float64
	sigfigs     int
)

func init() {
	compareCmd.Flags().Float64Var(&compression, "tdigest-compression", 100, "Compression of the t-digest.")
	compareCmd.Flags().Float64Var(&accuracy, "ddsketch-accuracy", 0.01, "Relative accuracy of the DDSketch.")
	compareCmd.Flags().IntVar(&sigfigs, "hdr-sigfigs", 3, "Significant figures of the HDR histogram.")
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Runs every ckms strategy and the reference sketches on the same values.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sketches, err := compareSketches()
		if err != nil {
			return err
		}
		quantiles := make([]float64, 0, len(cfg.Estimator.Targets))
		for _, tc := range cfg.Estimator.Targets {
			quantiles = append(quantiles, tc.Quantile)
		}

		ctx, cancel := signalContext()
		defer cancel()

		var results []bench.Result
		for _, s := range sketches {
			rc := cfg.Run
			rc.Quantiles = quantiles
			if c, ok := s.(*bench.CKMS); ok {
				rc = singleWriterGuard(rc, c.Stats().Strategy, logger)
			}
			level.Info(logger).Log("msg", "running", "sketch", s.Name())
			res, err := bench.Run(ctx, rc, s, logger)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		printResults(os.Stdout, results)
		return nil
	},
}

func compareSketches() ([]bench.Sketch, error) {
	var sketches []bench.Sketch
	for _, s := range ckms.Strategies() {
		ecfg := cfg.Estimator
		ecfg.Strategy = s
		e, err := ckms.NewFromConfig(ecfg, ckms.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		sketches = append(sketches, bench.NewCKMS(e))
	}

	targets := make([]ckms.Target, 0, len(cfg.Estimator.Targets))
	for _, tc := range cfg.Estimator.Targets {
		t, err := ckms.NewTarget(tc.Quantile, tc.Error)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	sketches = append(sketches, bench.NewPerks(targets))

	td, err := bench.NewTDigest(compression)
	if err != nil {
		return nil, err
	}
	dd, err := bench.NewDDSketch(accuracy)
	if err != nil {
		return nil, err
	}
	hdr, err := bench.NewHDR(1, hdrMax(cfg.Run), sigfigs)
	if err != nil {
		return nil, err
	}
	return append(sketches, td, dd, hdr), nil
}

// hdrMax is the largest value a run can produce.
func hdrMax(rc bench.RunConfig) int64 {
	if rc.Permutation {
		return int64(rc.Writers*rc.PerWriter) + 1
	}
	return int64(math.Ceil(rc.Range)) + 1
}
