package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/jmehdipour/zoohub/internal/kafka"
	"github.com/jmehdipour/zoohub/internal/logger"
)

func init() { logger.Init("error") }

type stubSource struct{}

func (stubSource) Fetch(ctx context.Context) (kafka.Message, error) {
	if ctx.Err() != nil {
		return kafka.Message{}, ctx.Err()
	}
	return kafka.Message{Value: []byte(`{"eventId":"01HEVT"}`)}, nil
}

func (stubSource) Commit(context.Context, kafka.Message) error { return nil }

// The fetcher must exit on cancellation even when no processor is left
// to drain the buffer.
func TestFetcherStopsOnCancelWithFullBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{Consumer: stubSource{}}

	msgCh := make(chan kafka.Message, 1)
	done := make(chan struct{})
	go func() {
		w.runFetcher(ctx, msgCh)
		close(done)
	}()

	// let the buffer fill so the fetcher parks on the send
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetcher still running after cancel")
	}
}
