package service

import (
	"context"

	"go.uber.org/zap"

	"textingest/internal/config"
	"textingest/internal/dbclient"
	"textingest/internal/etl"
	"textingest/internal/queue"
)

// SinkOpener acquires the sink connections a schema routes to.
// Acquisition failures never abort a run: the failing sink is replaced
// by etl.Unavailable so every record reports a connection failure.
type SinkOpener interface {
	Open(ctx context.Context, schema *etl.Schema) *etl.Sinks
}

// ConnSinkOpener opens real broker and repository connections from config.
type ConnSinkOpener struct {
	Config config.Config
	Logger *zap.Logger
}

func (o ConnSinkOpener) Open(ctx context.Context, schema *etl.Schema) *etl.Sinks {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sinks := &etl.Sinks{}

	if schema.Destination.Has(etl.SinkQueue) {
		pub, err := queue.Dial(o.Config.Queue, log)
		if err != nil {
			log.Warn("queue sink unavailable", zap.Error(err))
			sinks.Queue = etl.Unavailable{Err: err}
		} else {
			sinks.Queue = pub
			sinks.OnClose(pub)
		}
	}

	if schema.Destination.Has(etl.SinkRepository) {
		conn, err := dbclient.NewConnector(o.Config.Repository, log)
		if err == nil {
			if err = conn.TestConnection(ctx); err != nil {
				conn.Close()
			}
		}
		if err != nil {
			log.Warn("repository sink unavailable",
				zap.String("driver", string(o.Config.Repository.Driver)),
				zap.Error(err),
			)
			sinks.Repository = etl.Unavailable{Err: err}
		} else {
			sinks.Repository = conn
			sinks.OnClose(conn)
		}
	}
	return sinks
}
