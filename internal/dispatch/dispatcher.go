package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/metrics"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// Sink delivers one order record somewhere outside the store.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec order.Record) error
}

type Config struct {
	Workers     int
	QueueSize   int
	SinkTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 1024, SinkTimeout: 5 * time.Second}
}

// Dispatcher hands committed order records to sinks on its own goroutines.
// Enqueue never blocks the checkout that produced the record.
type Dispatcher struct {
	cfg     Config
	sinks   []Sink
	queue   chan order.Record
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, sinks []Sink, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	return &Dispatcher{
		cfg:     cfg,
		sinks:   sinks,
		queue:   make(chan order.Record, cfg.QueueSize),
		metrics: m,
		logger:  logger.With().Str("component", "dispatch").Logger(),
	}
}

// Start launches the workers. They exit once Shutdown has closed the queue
// and every queued record has been delivered.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) Enqueue(rec order.Record) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- rec:
		return nil
	default:
		d.metrics.DispatchDrop()
		d.logger.Error().Str("order_id", rec.Order.ID).Msg("dispatch queue full, record dropped")
		return ErrQueueFull
	}
}

// Shutdown stops accepting records and waits for the queue to drain or ctx
// to end, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn().Int("pending", len(d.queue)).Msg("shutdown before dispatch queue drained")
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for rec := range d.queue {
		d.deliver(rec)
	}
}

func (d *Dispatcher) deliver(rec order.Record) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
		err := sink.Deliver(ctx, rec)
		cancel()
		if err != nil {
			d.metrics.DispatchFailure(sink.Name())
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("order_id", rec.Order.ID).
				Msg("deliver order record")
		}
	}
}
