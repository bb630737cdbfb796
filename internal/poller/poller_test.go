package poller

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "scheduler-stats/internal/common/http"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/snapshot"
	"scheduler-stats/internal/stats"
)

// ==========================
// Test Helpers
// ==========================

type memorySink struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot
	err   error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Publish(_ context.Context, snap snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memorySink) keys() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.snaps))
	for _, s := range m.snaps {
		out[s.Key()] = string(s.Body)
	}
	return out
}

func newBackend(t *testing.T, hits *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats/dashboard", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(`{"totalJobs":5}`))
	})
	mux.HandleFunc("/stats/workers", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/stats/executions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(`{"query":"` + r.URL.RawQuery + `"}`))
	})
	mux.HandleFunc("/stats/jobs/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = w.Write([]byte(`{"job":"` + r.URL.Path[len("/stats/jobs/"):] + `"}`))
	})
	return httptest.NewServer(mux)
}

func newService(t *testing.T, baseURL string) *stats.Service {
	t.Helper()
	client, err := apihttp.NewClient(baseURL, 2*time.Second)
	require.NoError(t, err)
	return stats.NewService(client)
}

// ==========================
// Plan Tests
// ==========================

func TestPlan_Targets(t *testing.T) {
	plan := Plan{
		Endpoints: []string{EndpointDashboard, EndpointJobs, EndpointExecutions},
		JobIDs:    []string{"1", "2"},
	}

	assert.Equal(t, []Target{
		{Endpoint: EndpointDashboard},
		{Endpoint: EndpointJobs, ID: "1"},
		{Endpoint: EndpointJobs, ID: "2"},
		{Endpoint: EndpointExecutions},
	}, plan.Targets())

	assert.Empty(t, Plan{Endpoints: []string{EndpointJobs}}.Targets())
}

func TestCycleResult_Status(t *testing.T) {
	assert.Equal(t, "success", CycleResult{Fetched: 3}.Status())
	assert.Equal(t, "partial", CycleResult{Fetched: 2, Failed: 1}.Status())
	assert.Equal(t, "failed", CycleResult{Failed: 3}.Status())
}

// ==========================
// RunOnce Tests
// ==========================

func TestPoller_RunOnce(t *testing.T) {
	var hits int32
	server := newBackend(t, &hits)
	defer server.Close()

	sink := &memorySink{}
	p := New(Config{
		Interval:    time.Minute,
		Concurrency: 2,
		Plan: Plan{
			Endpoints:       []string{EndpointDashboard, EndpointWorkers, EndpointExecutions, EndpointJobs},
			JobIDs:          []string{"42"},
			ExecutionParams: stats.Params{"status": "done"},
		},
	}, newService(t, server.URL), sink, nil, logger.NewTestLogger(t))

	result := p.RunOnce(context.Background())

	assert.Equal(t, CycleResult{Fetched: 3, Failed: 1, Published: 3}, result)
	assert.Equal(t, "partial", result.Status())
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
	assert.Equal(t, map[string]string{
		"dashboard":  `{"totalJobs":5}`,
		"executions": `{"query":"status=done"}`,
		"jobs:42":    `{"job":"42"}`,
	}, sink.keys())
}

func TestPoller_RunOnce_SinkFailureIsNotFetchFailure(t *testing.T) {
	var hits int32
	server := newBackend(t, &hits)
	defer server.Close()

	sink := &memorySink{err: stderrors.New("sink down")}
	p := New(Config{
		Plan: Plan{Endpoints: []string{EndpointDashboard}},
	}, newService(t, server.URL), sink, nil, logger.NewTestLogger(t))

	result := p.RunOnce(context.Background())

	assert.Equal(t, CycleResult{Fetched: 1, Failed: 0, Published: 0}, result)
}

func TestPoller_RunOnce_NoSink(t *testing.T) {
	var hits int32
	server := newBackend(t, &hits)
	defer server.Close()

	p := New(Config{
		Plan: Plan{Endpoints: []string{EndpointDashboard}},
	}, newService(t, server.URL), nil, nil, logger.NewNoOpLogger())

	assert.Equal(t, CycleResult{Fetched: 1}, p.RunOnce(context.Background()))
}

// ==========================
// Run Tests
// ==========================

func TestPoller_Run_StopsOnCancel(t *testing.T) {
	var hits int32
	server := newBackend(t, &hits)
	defer server.Close()

	p := New(Config{
		Interval: 20 * time.Millisecond,
		Plan:     Plan{Endpoints: []string{EndpointDashboard}},
	}, newService(t, server.URL), &memorySink{}, nil, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
