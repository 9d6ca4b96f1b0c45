package incidentlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

type Config struct {
	QueueSize       int           `mapstructure:"queue_size"`
	PendingCapacity int           `mapstructure:"pending_capacity"`
	MemoryCapacity  int           `mapstructure:"memory_capacity"`
	DedupeSize      int           `mapstructure:"dedupe_size"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:       1024,
		PendingCapacity: 10000,
		MemoryCapacity:  1000,
		DedupeSize:      8192,
		StoreTimeout:    2 * time.Second,
		RetryInterval:   5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.PendingCapacity <= 0 {
		c.PendingCapacity = d.PendingCapacity
	}
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = d.MemoryCapacity
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = d.DedupeSize
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	return c
}

// Buffered decouples callers from the store. Append hands the record to a
// single flusher goroutine; while the store is failing, records wait in a
// bounded pending buffer (oldest dropped first) and Recent is answered from
// an in-memory ring.
type Buffered struct {
	logger    *logrus.Logger
	cfg       Config
	store     incident.Store
	exporters []incident.Exporter

	queue  chan incident.Record
	memory *ring

	mu      sync.Mutex
	pending []incident.Record

	flushed  *lru.Cache[string, struct{}]
	degraded atomic.Bool
	closed   atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ incident.Log = (*Buffered)(nil)

func NewBuffered(
	logger *logrus.Logger,
	cfg Config,
	store incident.Store,
	exporters ...incident.Exporter,
) (*Buffered, error) {
	cfg = cfg.withDefaults()
	flushed, err := lru.New[string, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}
	return &Buffered{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		exporters: exporters,
		queue:     make(chan incident.Record, cfg.QueueSize),
		memory:    newRing(cfg.MemoryCapacity),
		flushed:   flushed,
		done:      make(chan struct{}),
	}, nil
}

func (b *Buffered) Start() {
	b.wg.Add(1)
	go b.run()
}

// Shutdown drains the queue, makes one last attempt at the pending buffer
// and closes the exporters.
func (b *Buffered) Shutdown() {
	b.once.Do(func() {
		b.closed.Store(true)
		b.logger.Info("shutting down incident log")
		close(b.done)
		b.wg.Wait()
		for _, e := range b.exporters {
			e.Close()
		}
		if n := b.Pending(); n > 0 {
			b.logger.WithField("pending", n).Warn("incident log stopped with unflushed records")
		}
	})
}

func (b *Buffered) Append(record incident.Record) {
	b.memory.push(record)
	if b.closed.Load() {
		b.logger.WithField("record_id", record.ID).Warn("incident log closed, record kept in memory only")
		return
	}
	select {
	case b.queue <- record:
	default:
		b.logger.WithField("record_id", record.ID).Warn("incident queue is full, parking record")
		b.park(record)
	}
}

func (b *Buffered) Recent(ctx context.Context, n int) ([]incident.Record, error) {
	if !b.degraded.Load() {
		records, err := b.store.Recent(ctx, n)
		if err == nil {
			return records, nil
		}
		b.logger.WithError(err).Warn("incident store read failed, answering from memory")
	}
	records := b.memory.newest(n)
	if len(records) == 0 {
		return nil, domain.ErrLogUnavailable
	}
	return records, nil
}

// Degraded reports whether the store is failing or records are still parked.
func (b *Buffered) Degraded() bool {
	return b.degraded.Load() || b.Pending() > 0
}

func (b *Buffered) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Buffered) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case record := <-b.queue:
			b.handle(record)
		case <-ticker.C:
			b.flushPending()
		case <-b.done:
			for {
				select {
				case record := <-b.queue:
					b.handle(record)
				default:
					b.flushPending()
					return
				}
			}
		}
	}
}

func (b *Buffered) handle(record incident.Record) {
	if b.degraded.Load() || b.Pending() > 0 {
		b.park(record)
		if !b.degraded.Load() {
			b.flushPending()
		}
		return
	}
	if err := b.write(record); err != nil {
		b.park(record)
	}
}

func (b *Buffered) flushPending() {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return
		}
		record := b.pending[0]
		b.mu.Unlock()

		if err := b.write(record); err != nil {
			return
		}
		b.unpark(record.ID)
	}
}

func (b *Buffered) write(record incident.Record) error {
	if b.flushed.Contains(record.ID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StoreTimeout)
	defer cancel()
	if err := b.store.Append(ctx, record); err != nil {
		if !b.degraded.Swap(true) {
			b.logger.WithError(err).Error("incident store unavailable, buffering records")
		}
		return err
	}
	if b.degraded.Swap(false) {
		b.logger.Info("incident store recovered")
	}
	b.flushed.Add(record.ID, struct{}{})
	b.export(record)
	return nil
}

func (b *Buffered) export(record incident.Record) {
	for _, e := range b.exporters {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StoreTimeout)
		err := e.Export(ctx, record)
		cancel()
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"exporter":  fmt.Sprintf("%T", e),
				"record_id": record.ID,
			}).WithError(err).Warn("incident exporter failed")
		}
	}
}

func (b *Buffered) park(record incident.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.cfg.PendingCapacity {
		dropped := b.pending[0]
		b.pending = b.pending[1:]
		prometheus.DroppedTotal.WithLabelValues("incident_log").Inc()
		b.logger.WithField("record_id", dropped.ID).Warn("pending incident buffer full, dropping oldest record")
	}
	b.pending = append(b.pending, record)
	if prometheus.Config.EnableQueueDepth {
		prometheus.IncidentLogPending.Set(float64(len(b.pending)))
	}
}

func (b *Buffered) unpark(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.pending {
		if r.ID == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	if prometheus.Config.EnableQueueDepth {
		prometheus.IncidentLogPending.Set(float64(len(b.pending)))
	}
}
