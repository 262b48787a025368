package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/axiomhq/ckms"
	"github.com/axiomhq/ckms/bench"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	strategy    string
	bufferSize  int
	metricsAddr string
)

func init() {
	runCmd.Flags().StringVar(&strategy, "strategy", "", "Staging strategy: baseline, primitive, queue or local.")
	runCmd.Flags().IntVar(&bufferSize, "buffer-size", 0, "Staging buffer size or queue threshold. 0 keeps the strategy default.")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve the estimator as Prometheus metrics on this address, e.g. :9090.")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one ckms estimator.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ecfg := cfg.Estimator
		if strategy != "" {
			s, err := ckms.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			ecfg.Strategy = s
		}
		if bufferSize != 0 {
			ecfg.BufferSize = bufferSize
			ecfg.QueueThreshold = bufferSize
		}

		e, err := ckms.NewFromConfig(ecfg, ckms.WithLogger(logger))
		if err != nil {
			return err
		}

		rc := singleWriterGuard(cfg.Run, e.Strategy(), logger)
		rc.Quantiles = e.Monitored()

		if metricsAddr != "" {
			stop := serveMetrics(e, metricsAddr, logger)
			defer stop()
		}

		ctx, cancel := signalContext()
		defer cancel()

		res, err := bench.Run(ctx, rc, bench.NewCKMS(e), logger)
		if err != nil {
			return err
		}
		printResults(os.Stdout, []bench.Result{res})

		stats := e.Stats()
		level.Info(logger).Log("msg", "estimator stats", "samples", stats.Samples, "count", stats.Count,
			"merges", stats.Merges, "skipped_merges", stats.SkippedMerges, "dropped", stats.Dropped)
		return nil
	},
}

// singleWriterGuard drops to one writer for the baseline strategy, which
// does not support concurrent Observe calls. Stats logging flushes from a
// second goroutine, so it is turned off as well.
func singleWriterGuard(rc bench.RunConfig, s ckms.Strategy, logger log.Logger) bench.RunConfig {
	if s != ckms.Baseline {
		return rc
	}
	if rc.Writers > 1 {
		level.Warn(logger).Log("msg", "baseline strategy supports a single writer", "writers", rc.Writers)
		rc.PerWriter *= rc.Writers
		rc.Writers = 1
	}
	rc.StatsInterval = 0
	return rc
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// metricsRegistry exports e. Scrapes never flush a baseline estimator, whose
// buffer belongs to the single writer, so there they lag by up to one buffer.
func metricsRegistry(e *ckms.Estimator, logger log.Logger) *prometheus.Registry {
	if e.Strategy() == ckms.Baseline {
		level.Warn(logger).Log("msg", "baseline strategy exports merged values only")
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(ckms.NewCollector(ckms.CollectorOpts{
		Namespace: "ckmsbench",
		Name:      "observed_value",
		Help:      "Values observed by the benchmark writers.",
	}, e))
	return reg
}

func serveMetrics(e *ckms.Estimator, addr string, logger log.Logger) func() {
	reg := metricsRegistry(e, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		level.Info(logger).Log("msg", "starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func printResults(w io.Writer, results []bench.Result) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SKETCH\tOBSERVED\tSIZE\tELAPSED\tOPS/S\tQUANTILE\tVALUE\tRANK ERROR")
	for _, res := range results {
		for i, est := range res.Estimates {
			name, observed, size, elapsed, ops := "", "", "", "", ""
			if i == 0 {
				name = res.Sketch
				observed = fmt.Sprint(res.Observed)
				size = fmt.Sprint(res.Size)
				elapsed = res.Elapsed.Round(time.Millisecond).String()
				ops = fmt.Sprintf("%.0f", res.Throughput())
			}
			rankErr := "-"
			if !math.IsNaN(est.RankError) {
				rankErr = fmt.Sprintf("%.5f", est.RankError)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\t%.6g\t%s\n",
				name, observed, size, elapsed, ops, est.Quantile, est.Value, rankErr)
		}
	}
	tw.Flush()
}
