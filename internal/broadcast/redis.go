package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/stockpulse/internal/metrics"
	"github.com/rickgao/stockpulse/internal/model"
)

// Publisher is the subset of redis.UniversalClient used for fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Channel        string
	QueueSize      int
	MaxQueueSize   int
	PublishTimeout time.Duration
}

// RedisStats contains runtime statistics.
type RedisStats struct {
	Published int64      `json:"published"`
	Failed    int64      `json:"failed"`
	Dropped   int64      `json:"dropped"`
	Queue     QueueStats `json:"queue"`
}

// RedisPublisher mirrors engine events onto a Redis pub/sub channel.
// Notify calls only enqueue; a background loop does the network I/O.
type RedisPublisher struct {
	cfg     RedisConfig
	client  Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	queue   *Queue[[]byte]

	wg      sync.WaitGroup
	started atomic.Bool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewRedisPublisher creates a publisher. Call Start to begin publishing.
func NewRedisPublisher(cfg RedisConfig, client Publisher, logger *slog.Logger, m *metrics.Metrics) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	return &RedisPublisher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		metrics: m,
		queue:   NewQueue[[]byte](cfg.QueueSize, cfg.MaxQueueSize),
	}
}

// Start launches the publish loop.
func (p *RedisPublisher) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go p.publishLoop()
	p.logger.Info("redis publisher started", "channel", p.cfg.Channel)
}

// Stop closes the queue and waits for pending events to flush.
func (p *RedisPublisher) Stop(ctx context.Context) error {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("redis publisher stopped", "published", p.published.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyLifecycleChanged publishes startPulsing or stopPulsing.
func (p *RedisPublisher) NotifyLifecycleChanged(state model.LifecycleState) {
	p.enqueue(lifecycleEvent(state))
}

// NotifyReset publishes pulseReset.
func (p *RedisPublisher) NotifyReset() {
	p.enqueue(resetEvent())
}

// NotifyInstrumentChanged publishes updateStockPrice.
func (p *RedisPublisher) NotifyInstrumentChanged(inst model.Instrument) {
	p.enqueue(instrumentEvent(inst))
}

// Stats returns current statistics.
func (p *RedisPublisher) Stats() RedisStats {
	return RedisStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queue:     p.queue.Stats(),
	}
}

func (p *RedisPublisher) enqueue(e Event) {
	data, err := Encode(e)
	if err != nil {
		p.logger.Error("failed to encode event", "event", e.Event, "error", err)
		return
	}
	if err := p.queue.Send(data); err != nil {
		p.dropped.Add(1)
		p.metrics.PublishFailed()
		p.logger.Warn("redis queue rejected event", "event", e.Event, "error", err)
	}
}

func (p *RedisPublisher) publishLoop() {
	defer p.wg.Done()

	for {
		data, ok := p.queue.Receive()
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		err := p.client.Publish(ctx, p.cfg.Channel, data).Err()
		cancel()

		if err != nil {
			p.failed.Add(1)
			p.metrics.PublishFailed()
			p.logger.Warn("redis publish failed", "channel", p.cfg.Channel, "error", err)
			continue
		}
		p.published.Add(1)
	}
}
