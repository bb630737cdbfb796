// Package poller periodically collects statistics and hands them to snapshot sinks.
package poller

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"scheduler-stats/internal/common/errors"
	apihttp "scheduler-stats/internal/common/http"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/common/metrics"
	"scheduler-stats/internal/common/observability"
	"scheduler-stats/internal/snapshot"
	"scheduler-stats/internal/stats"
)

const (
	EndpointDashboard  = "dashboard"
	EndpointJobs       = "jobs"
	EndpointWorkers    = "workers"
	EndpointExecutions = "executions"
)

// Plan lists what one cycle collects.
type Plan struct {
	Endpoints       []string
	JobIDs          []string
	ExecutionParams stats.Params
}

// Target is a single fetch within a cycle.
type Target struct {
	Endpoint string
	ID       string
}

// Targets expands the plan into individual fetches. The jobs endpoint yields
// one target per job ID.
func (p Plan) Targets() []Target {
	var targets []Target
	for _, ep := range p.Endpoints {
		if ep == EndpointJobs {
			for _, id := range p.JobIDs {
				targets = append(targets, Target{Endpoint: EndpointJobs, ID: id})
			}
			continue
		}
		targets = append(targets, Target{Endpoint: ep})
	}
	return targets
}

// CycleResult summarises one RunOnce.
type CycleResult struct {
	Fetched   int
	Failed    int
	Published int
}

// Status is the label recorded for the cycle.
func (r CycleResult) Status() string {
	switch {
	case r.Failed == 0:
		return "success"
	case r.Fetched == 0:
		return "failed"
	}
	return "partial"
}

type Config struct {
	Interval    time.Duration
	Concurrency int
	Plan        Plan
}

type Poller struct {
	config  Config
	service *stats.Service
	sink    snapshot.Sink
	obs     *observability.Observability
	logger  logger.Logger
}

func New(cfg Config, service *stats.Service, sink snapshot.Sink, obs *observability.Observability, log logger.Logger) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &Poller{
		config:  cfg,
		service: service,
		sink:    sink,
		obs:     obs,
		logger:  log.With(map[string]interface{}{"component": "poller"}),
	}
}

// Run polls immediately and then on every interval tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", map[string]interface{}{
		"interval": p.config.Interval.String(),
		"targets":  len(p.config.Plan.Targets()),
	})

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce fetches every planned target concurrently and publishes each
// successful response. Individual failures are logged and counted; they never
// cancel sibling fetches.
func (p *Poller) RunOnce(ctx context.Context) CycleResult {
	metrics.PollCyclesActive.Inc()
	defer metrics.PollCyclesActive.Dec()

	start := time.Now()
	targets := p.config.Plan.Targets()

	ctx, span := p.obs.StartSpan(ctx, "poll.cycle", attribute.Int("targets", len(targets)))
	defer span.End()

	var fetched, failed, published int64

	g := new(errgroup.Group)
	g.SetLimit(p.config.Concurrency)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			resp, err := p.fetch(ctx, target)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				p.logFetchError(target, err)
				return nil
			}
			atomic.AddInt64(&fetched, 1)

			if p.sink == nil {
				return nil
			}
			if err := p.sink.Publish(ctx, snapshot.New(target.Endpoint, target.ID, resp)); err != nil {
				// the fanout logs and counts sink failures
				return nil
			}
			atomic.AddInt64(&published, 1)
			return nil
		})
	}
	_ = g.Wait()

	result := CycleResult{
		Fetched:   int(fetched),
		Failed:    int(failed),
		Published: int(published),
	}

	status := result.Status()
	elapsed := time.Since(start)
	p.obs.RecordPoll(ctx, status)
	p.obs.RecordPollDuration(ctx, elapsed, status)
	span.SetAttributes(
		attribute.Int("fetched", result.Fetched),
		attribute.Int("failed", result.Failed),
		attribute.String("status", status),
	)

	p.logger.Info("poll cycle completed", map[string]interface{}{
		"fetched":   result.Fetched,
		"failed":    result.Failed,
		"published": result.Published,
		"status":    status,
		"duration":  elapsed.String(),
	})

	return result
}

func (p *Poller) fetch(ctx context.Context, target Target) (*apihttp.Response, error) {
	switch target.Endpoint {
	case EndpointDashboard:
		return p.service.GetDashboardData(ctx)
	case EndpointJobs:
		return p.service.GetJobStats(ctx, target.ID)
	case EndpointWorkers:
		return p.service.GetWorkerStats(ctx)
	case EndpointExecutions:
		return p.service.GetExecutionStats(ctx, p.config.Plan.ExecutionParams)
	}
	return nil, stderrors.New("unknown endpoint " + target.Endpoint)
}

func (p *Poller) logFetchError(target Target, err error) {
	fields := map[string]interface{}{
		"endpoint":  target.Endpoint,
		"errorCode": errors.Classify(err),
		"retryable": errors.IsRetryable(err),
		"error":     err.Error(),
	}
	if target.ID != "" {
		fields["jobId"] = target.ID
	}
	if status := errors.StatusCode(err); status != 0 {
		fields["status"] = status
	}
	p.logger.Warn("stats fetch failed", fields)
}
