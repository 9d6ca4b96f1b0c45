package worker

import (
	"context"
	"sync"

	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// QueueSize bounds the tasks waiting across all keys.
	QueueSize int `mapstructure:"queue_size"`
}

// Pool runs tasks off the caller's goroutine. Tasks with the same key run
// one at a time in submission order; distinct keys never wait on each other.
//
//go:generate mockery --name=Pool --dir=. --output=./mocks --filename=pool_mock.go --case=underscore --with-expecter
type Pool interface {
	Start()
	Submit(key string, task func()) bool
	Flush(ctx context.Context) error
	Shutdown()
}

type keyQueue struct {
	tasks []func()
}

type pool struct {
	logger    *logrus.Logger
	name      string
	queueSize int

	mu      sync.Mutex
	queues  map[string]*keyQueue
	pending int
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewPool(logger *logrus.Logger, name string, cfg Config) Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &pool{
		logger:    logger,
		name:      name,
		queueSize: cfg.QueueSize,
		queues:    make(map[string]*keyQueue),
	}
}

func (p *pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.logger.WithFields(logrus.Fields{
		"pool":       p.name,
		"queue_size": p.queueSize,
	}).Info("starting workers")
	p.startLocked()
}

// startLocked spawns a drainer for every key queued before Start.
func (p *pool) startLocked() {
	p.started = true
	for key, q := range p.queues {
		p.wg.Add(1)
		go p.drain(key, q)
	}
}

// drain runs a key's tasks until its queue is empty, then retires the key.
func (p *pool) drain(key string, q *keyQueue) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(q.tasks) == 0 {
			delete(p.queues, key)
			p.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		p.pending--
		p.mu.Unlock()

		p.execute(task)
	}
}

func (p *pool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"pool":  p.name,
				"panic": r,
			}).Error("worker task panicked")
		}
	}()
	task()
}

// Submit never blocks. When QueueSize tasks are already waiting the task is
// dropped and Submit returns false.
func (p *pool) Submit(key string, task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.pending >= p.queueSize {
		prometheus.DroppedTotal.WithLabelValues(p.name).Inc()
		p.logger.WithFields(logrus.Fields{
			"pool": p.name,
			"key":  key,
		}).Warn("worker queue is full, dropping task")
		return false
	}
	p.enqueueLocked(key, task)
	return true
}

func (p *pool) enqueueLocked(key string, task func()) {
	p.pending++
	q, ok := p.queues[key]
	if ok {
		q.tasks = append(q.tasks, task)
		return
	}
	q = &keyQueue{tasks: []func(){task}}
	p.queues[key] = q
	if p.started {
		p.wg.Add(1)
		go p.drain(key, q)
	}
}

// Flush waits until every task submitted before the call has run. Barriers
// bypass the queue bound.
func (p *pool) Flush(ctx context.Context) error {
	var done sync.WaitGroup
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	for key := range p.queues {
		done.Add(1)
		p.enqueueLocked(key, done.Done)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (p *pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if !p.started {
		p.startLocked()
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.WithField("pool", p.name).Info("workers stopped")
}
