package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"scheduler-stats/internal/common/errors"
)

const elasticsearchSinkName = "elasticsearch"

// ElasticsearchMapping is the index mapping for snapshot documents. Bodies
// differ per endpoint, so they are stored but not indexed.
var ElasticsearchMapping = []byte(`{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "endpoint":   {"type": "keyword"},
      "target":     {"type": "keyword"},
      "fetchedAt":  {"type": "date"},
      "statusCode": {"type": "integer"},
      "requestId":  {"type": "keyword"},
      "body":       {"type": "object", "enabled": false}
    }
  }
}`)

// ElasticsearchSink indexes snapshots as documents keyed by snapshot ID.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return elasticsearchSinkName }

func (s *ElasticsearchSink) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewSnapshotEncodeFailedError(err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: snap.ID,
		Body:       bytes.NewReader(data),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return errors.NewSnapshotPublishFailedError(elasticsearchSinkName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return errors.NewSnapshotPublishFailedError(elasticsearchSinkName,
			fmt.Errorf("index %s: %s: %s", s.index, res.Status(), bytes.TrimSpace(body)))
	}
	return nil
}
