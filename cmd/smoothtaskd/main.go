//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SaSHuRiK/smoothtask/pkg/actuator"
	"github.com/SaSHuRiK/smoothtask/pkg/config"
	"github.com/SaSHuRiK/smoothtask/pkg/daemon"
	"github.com/SaSHuRiK/smoothtask/pkg/latency"
	"github.com/SaSHuRiK/smoothtask/pkg/policy"
	"github.com/SaSHuRiK/smoothtask/pkg/responsiveness"
	"github.com/SaSHuRiK/smoothtask/pkg/system/cgroup"
	"github.com/SaSHuRiK/smoothtask/pkg/system/proc"
)

type opts struct {
	configPath string
	interval   time.Duration
	logLevel   string
	dryRun     bool
	once       bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "smoothtaskd",
		Short: "Desktop responsiveness daemon",
		Long: `smoothtaskd keeps a Linux desktop responsive under load. It samples
/proc, clusters processes into app groups, classifies each group into a
priority class and actuates nice, latency nice, ionice and cgroup CPU
weights, backing off when its own scheduling-latency probe says the
system is healthy.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVarP(&o.configPath, "config", "c", "", "path to YAML config (defaults apply without one)")
	root.Flags().DurationVarP(&o.interval, "interval", "i", 0, "cycle interval, overrides the config value")
	root.Flags().StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config value")
	root.Flags().BoolVar(&o.dryRun, "dry-run", false, "plan changes but actuate an in-memory backend only")
	root.Flags().BoolVar(&o.once, "once", false, "run a single cycle and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.interval > 0 {
		cfg.Interval = config.Duration(o.interval)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	// /proc/stat must be readable or nothing downstream can work.
	if _, _, err := proc.ReadSystemCPU(); err != nil {
		return fmt.Errorf("system CPU stats unavailable: %w", err)
	}

	ver, detail, err := cgroup.Detect()
	if err != nil {
		return fmt.Errorf("detect cgroup: %w", err)
	}
	log.Info("cgroup detected", zap.Stringer("version", ver), zap.String("detail", detail))

	var hierarchy *cgroup.Hierarchy
	if ver != cgroup.V2 && ver != cgroup.Hybrid {
		if !o.dryRun {
			return fmt.Errorf("no unified cgroup hierarchy (%s): %s", ver, detail)
		}
		log.Warn("no unified cgroup hierarchy, continuing because of dry run",
			zap.Stringer("version", ver))
	} else if !o.dryRun {
		hierarchy, err = cgroup.Open()
		if err != nil {
			log.Warn("cgroup v2 hierarchy unusable, cpu.weight actuation disabled", zap.Error(err))
		}
	}

	backend := actuator.NewBackend()
	if o.dryRun {
		log.Info("dry run: kernel state will not be touched")
		backend = actuator.NewFakeBackend()
		hierarchy = nil
	}

	collector := latency.NewCollector(cfg.Probe.WindowSize)
	probe := latency.NewProbe(collector, cfg.Probe.Interval.Std(), log.Named("probe"))
	probe.Start()
	defer probe.Stop()

	hyst := actuator.NewHysteresis(cfg.Hysteresis.MinChangeInterval.Std(), cfg.Hysteresis.MinRankDistance)
	act := actuator.New(backend, hierarchy, hyst, log.Named("actuator"))
	engine := policy.NewEngine(cfg.Thresholds.NoisyCPUShare, log.Named("policy"))
	evaluator := responsiveness.NewEvaluator(responsiveness.Thresholds{
		PSICPUSomeHigh:    cfg.Thresholds.PSICPUSomeHigh,
		PSIIOSomeHigh:     cfg.Thresholds.PSIIOSomeHigh,
		SchedLatencyP99Ms: cfg.Thresholds.SchedLatencyP99Ms,
		UILoopP95Ms:       cfg.Thresholds.UILoopP95Ms,
	})
	cache := daemon.NewCache(cfg.Cache.TTL.Std(), cfg.Cache.Capacity)
	sampler := proc.NewSampler(log.Named("sampler"))

	rt := daemon.NewRuntime(sampler, engine, act, collector, evaluator, cache, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		zap.Duration("interval", cfg.Interval.Std()),
		zap.Duration("probe_interval", cfg.Probe.Interval.Std()),
		zap.Bool("dry_run", o.dryRun),
	)

	if o.once {
		res, err := rt.RunCycle(ctx, readSignals(log))
		if err != nil {
			return err
		}
		log.Info("cycle summary",
			zap.Int("processes", res.Processes),
			zap.Int("groups", len(res.Groups)),
			zap.Int("planned", res.Planned),
			zap.Int("applied", res.Apply.Applied),
			zap.Float64("rss_total_mb", res.TotalRSS().MB()),
		)
		return nil
	}

	err = rt.Run(ctx, cfg.Interval.Std(), func() daemon.Signals { return readSignals(log) })
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

// readSignals gathers the cycle-external telemetry. PSI may be absent on
// kernels without CONFIG_PSI; the daemon treats the user as active since
// it has no idle tracking source of its own yet.
func readSignals(log *zap.Logger) daemon.Signals {
	sig := daemon.Signals{UserActive: true}
	var err error
	if sig.PSICPUSome10, err = proc.ReadPressure("cpu"); err != nil {
		log.Debug("cpu pressure unreadable", zap.Error(err))
	}
	if sig.PSIIOSome10, err = proc.ReadPressure("io"); err != nil {
		log.Debug("io pressure unreadable", zap.Error(err))
	}
	return sig
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
