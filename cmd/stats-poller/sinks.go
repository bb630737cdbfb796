package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"scheduler-stats/internal/common/config"
	"scheduler-stats/internal/common/database"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/snapshot"
)

type sinkSet struct {
	fanout  *snapshot.Fanout
	closers []io.Closer
}

func (s *sinkSet) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}

// buildSinks connects every enabled sink, retrying each connection with backoff.
func buildSinks(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (*sinkSet, error) {
	set := &sinkSet{}
	var sinks []snapshot.Sink

	fail := func(err error) (*sinkSet, error) {
		set.Close()
		return nil, err
	}

	if rc := cfg.Sinks.Redis; rc.Enabled {
		var rdb *database.RedisClient
		err := retryWithBackoff(ctx, func() error {
			client, err := database.NewRedis(rc.RedisConfig)
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				_ = client.Close()
				return err
			}
			rdb = client
			return nil
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return fail(err)
		}
		set.closers = append(set.closers, rdb)
		sinks = append(sinks, snapshot.NewRedisSink(rdb.Client, rc.KeyPrefix, config.GetDuration(rc.TTL)))
		zapLog.Info("Redis connected successfully")
	}

	if pc := cfg.Sinks.Postgres; pc.Enabled {
		var pg *database.PostgresClient
		err := retryWithBackoff(ctx, func() error {
			client, err := database.NewPostgres(pc.PostgresConfig)
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				_ = client.Close()
				return err
			}
			pg = client
			return nil
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return fail(err)
		}
		set.closers = append(set.closers, pg)

		sink := snapshot.NewPostgresSink(pg.DB, pc.Table)
		if err := sink.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
		zapLog.Info("PostgreSQL connected successfully")
	}

	if ec := cfg.Sinks.Elasticsearch; ec.Enabled {
		var es *database.ElasticsearchClient
		err := retryWithBackoff(ctx, func() error {
			client, err := database.NewElasticsearch(ec.ElasticsearchConfig, nil)
			if err != nil {
				return err
			}
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx); err != nil {
				return err
			}
			es = client
			return nil
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return fail(err)
		}
		if err := es.EnsureIndex(ctx, ec.Index, snapshot.ElasticsearchMapping); err != nil {
			return fail(err)
		}
		sinks = append(sinks, snapshot.NewElasticsearchSink(es.Client, ec.Index))
		zapLog.Info("Elasticsearch connected successfully")
	}

	set.fanout = snapshot.NewFanout(log.With(map[string]interface{}{"component": "snapshot"}), sinks...)
	return set, nil
}
