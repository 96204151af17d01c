package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/logging"
)

// AssemblerConfig bounds the context fan-out.
type AssemblerConfig struct {
	SourceTimeout   time.Duration // per-metric fetch budget
	AssembleTimeout time.Duration // overall deadline for the whole snapshot
	Metrics         []core.Metric // metrics to fetch; nil => core.AllMetrics()
}

// Assembler merges independent metric fetches into one snapshot. It is safe
// for concurrent use; each Assemble call runs its own fan-out.
type Assembler struct {
	provider Provider
	cfg      AssemblerConfig
	logger   logging.Logger
}

// NewAssembler constructs an Assembler. Zero timeouts get conservative
// defaults (800ms per source, 2s overall).
func NewAssembler(provider Provider, cfg AssemblerConfig, logger logging.Logger) *Assembler {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 800 * time.Millisecond
	}
	if cfg.AssembleTimeout <= 0 {
		cfg.AssembleTimeout = 2 * time.Second
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = core.AllMetrics()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Assembler{provider: provider, cfg: cfg, logger: logger}
}

type fetchResult struct {
	metric core.Metric
	value  core.MetricValue
	err    error
}

// Assemble fans out one cancellable fetch per metric and returns the
// best-effort snapshot accumulated within the overall deadline. It never
// returns an error: failed or late sources show up in Snapshot.Missing.
// Retries, if desired, belong to the caller on the next turn.
func (a *Assembler) Assemble(ctx context.Context, userID string, asOf time.Time) core.HealthContextSnapshot {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.AssembleTimeout)
	defer cancel()

	results := make(chan fetchResult, len(a.cfg.Metrics))
	var wg sync.WaitGroup

	for _, metric := range a.cfg.Metrics {
		wg.Add(1)
		go func(m core.Metric) {
			defer wg.Done()

			fetchCtx, fetchCancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
			defer fetchCancel()

			var (
				value core.MetricValue
				err   error
			)
			func() { // a misbehaving provider must not take down assembly
				defer func() {
					if r := recover(); r != nil {
						err = ErrUnavailable
						a.logger.Error("health.fetch.panic", "metric", string(m), "recover", r)
					}
				}()
				value, err = a.provider.Fetch(fetchCtx, userID, m)
			}()

			if err == nil && fetchCtx.Err() != nil {
				err = ErrTimeout
			}
			results <- fetchResult{metric: m, value: value, err: err}
		}(metric)
	}

	go func() { wg.Wait(); close(results) }()

	snapshot := core.HealthContextSnapshot{UserID: userID, Timestamp: asOf.UTC()}
	got := make(map[core.Metric]bool, len(a.cfg.Metrics))

collect:
	for range a.cfg.Metrics {
		select {
		case res, ok := <-results:
			if !ok {
				break collect
			}
			if res.err != nil {
				a.logger.Warn("health.fetch.miss", "metric", string(res.metric), "error", res.err.Error())
				continue
			}
			got[res.metric] = true
			apply(&snapshot, res.metric, res.value)
		case <-ctx.Done():
			// Overall deadline: ship what we have. Outstanding fetches are
			// cancelled via ctx and drain into the buffered channel.
			a.logger.Warn("health.assemble.deadline", "user_id", userID)
			break collect
		}
	}

	for _, m := range a.cfg.Metrics {
		if !got[m] {
			snapshot.Missing = append(snapshot.Missing, m)
		}
	}
	sort.Slice(snapshot.Missing, func(i, j int) bool { return snapshot.Missing[i] < snapshot.Missing[j] })

	a.logger.Debug("health.assemble.complete",
		"user_id", userID,
		"collected", len(got),
		"missing", len(snapshot.Missing),
	)
	return snapshot
}

func apply(s *core.HealthContextSnapshot, m core.Metric, v core.MetricValue) {
	switch m {
	case core.MetricSleep:
		s.SleepHours = v.Number
	case core.MetricRestingHR:
		s.RestingHR = v.Number
	case core.MetricSteps:
		s.Steps = v.Number
	case core.MetricWeight:
		s.WeightKg = v.Number
	case core.MetricActiveEnergy:
		s.ActiveEnergy = v.Number
	case core.MetricWeather:
		s.Weather = v.Text
	}
}
