// Package stats exposes the statistics endpoints of the scheduler backend.
//
// Every method is a direct delegation to the shared HTTP client: responses
// come back untouched and failures are returned as the client produced them.
package stats

import (
	"context"
	"net/url"

	apihttp "scheduler-stats/internal/common/http"
)

const (
	DashboardPath  = "/stats/dashboard"
	JobsPath       = "/stats/jobs/"
	WorkersPath    = "/stats/workers"
	ExecutionsPath = "/stats/executions"
)

// Requester is the part of the shared HTTP client the service needs.
type Requester interface {
	Get(ctx context.Context, path string, query url.Values) (*apihttp.Response, error)
}

// Params are query parameters for execution stats. nil and empty both mean none.
type Params map[string]string

// Values encodes the params as a query. Empty params yield nil.
func (p Params) Values() url.Values {
	if len(p) == 0 {
		return nil
	}
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// Service issues statistics requests. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	api Requester
}

func NewService(api Requester) *Service {
	return &Service{api: api}
}

// GetDashboardData fetches GET /stats/dashboard.
func (s *Service) GetDashboardData(ctx context.Context) (*apihttp.Response, error) {
	return s.api.Get(ctx, DashboardPath, nil)
}

// GetJobStats fetches GET /stats/jobs/{jobID}. The ID is path-escaped.
func (s *Service) GetJobStats(ctx context.Context, jobID string) (*apihttp.Response, error) {
	return s.api.Get(ctx, JobPath(jobID), nil)
}

// GetWorkerStats fetches GET /stats/workers.
func (s *Service) GetWorkerStats(ctx context.Context) (*apihttp.Response, error) {
	return s.api.Get(ctx, WorkersPath, nil)
}

// GetExecutionStats fetches GET /stats/executions with params as the query.
func (s *Service) GetExecutionStats(ctx context.Context, params Params) (*apihttp.Response, error) {
	return s.api.Get(ctx, ExecutionsPath, params.Values())
}

// JobPath returns the request path for a job's statistics.
func JobPath(jobID string) string {
	return JobsPath + url.PathEscape(jobID)
}
