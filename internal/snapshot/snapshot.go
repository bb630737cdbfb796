// Package snapshot records statistics responses in external stores.
package snapshot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"scheduler-stats/internal/common/errors"
	apihttp "scheduler-stats/internal/common/http"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/common/metrics"
)

// Snapshot is one backend response captured at a point in time. Body holds
// the response bytes exactly as received.
type Snapshot struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Target     string          `json:"target,omitempty"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	StatusCode int             `json:"statusCode"`
	RequestID  string          `json:"requestId,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// New captures resp. target identifies the sub-resource (a job ID) and may be empty.
func New(endpoint, target string, resp *apihttp.Response) Snapshot {
	body := resp.JSON()
	if !json.Valid(body) {
		// Keep non-JSON payloads storable as a JSON string.
		encoded, _ := json.Marshal(string(resp.Body))
		body = encoded
	}

	return Snapshot{
		ID:         uuid.NewString(),
		Endpoint:   endpoint,
		Target:     target,
		FetchedAt:  time.Now().UTC(),
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID,
		Body:       body,
	}
}

// Key identifies the latest snapshot of an endpoint/target pair.
func (s Snapshot) Key() string {
	if s.Target == "" {
		return s.Endpoint
	}
	return s.Endpoint + ":" + s.Target
}

// Sink is a snapshot destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap Snapshot) error
}

// Fanout publishes every snapshot to all sinks. One failing sink does not
// stop the others; the joined error is returned.
type Fanout struct {
	sinks  []Sink
	logger logger.Logger
}

func NewFanout(log logger.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: log}
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of configured sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			code := errors.Classify(err)
			metrics.SnapshotFailures.WithLabelValues(sink.Name(), string(code)).Inc()
			f.logger.Error("snapshot publish failed", map[string]interface{}{
				"sink":      sink.Name(),
				"key":       snap.Key(),
				"errorCode": code,
				"error":     err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		metrics.SnapshotsPublished.WithLabelValues(sink.Name()).Inc()
	}
	return stderrors.Join(errs...)
}
