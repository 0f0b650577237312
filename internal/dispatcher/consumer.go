package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/zoohub/internal/kafka"
	"github.com/jmehdipour/zoohub/internal/logger"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/model"
	"go.uber.org/zap"
)

// MessageSource is the slice of the Kafka consumer the worker needs.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Worker consumes event-ingested envelopes from Kafka and feeds them to
// the dispatch service:
// - fetches envelopes from Kafka,
// - fans out to processor goroutines,
// - commits offsets only after dispatch lands (or the message is poison).
type Worker struct {
	Consumer MessageSource
	Service  *Service

	Workers int // number of goroutines processing envelopes
}

func NewWorker(consumer MessageSource, svc *Service) *Worker {
	return &Worker{
		Consumer: consumer,
		Service:  svc,
		Workers:  16,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go w.runFetcher(ctx, msgCh)

	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh)
	}

	<-ctx.Done()
	return nil
}

func (w *Worker) runFetcher(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("dispatcher: kafka fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		// processors stop on cancellation; never park on a full buffer
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

func (w *Worker) processOne(ctx context.Context, m kafka.Message) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.EventID == "" {
		// poison message: commit and skip
		_ = w.Consumer.Commit(ctx, m)
		if err != nil {
			logger.Log.Warn("dispatcher: bad envelope json", zap.Error(err))
		} else {
			logger.Log.Warn("dispatcher: envelope missing eventId")
		}
		return
	}

	created, err := w.Service.DispatchEnvelope(ctx, env)
	if err != nil {
		// store-side failure: leave the offset uncommitted so the
		// envelope is redelivered, and back off a little
		logger.Log.Error("dispatcher: dispatch failed",
			zap.String("event_id", env.EventID), zap.Error(err))
		time.Sleep(200 * time.Millisecond)
		return
	}

	metrics.EventsTotal.WithLabelValues("dispatched").Inc()
	logger.Log.Info("dispatcher: event dispatched",
		zap.String("event_id", env.EventID), zap.Int("jobs", created))

	if err := w.Consumer.Commit(ctx, m); err != nil {
		logger.Log.Warn("dispatcher: commit", zap.Error(err))
	}
}
