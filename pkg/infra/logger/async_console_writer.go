package logger

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// AsyncConsoleHook mirrors entries to a console writer off the logging
// goroutine while the main output goes to a file. Entries that arrive while
// the queue is full are counted and discarded.
type AsyncConsoleHook struct {
	out     io.Writer
	levels  []logrus.Level
	queue   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncConsoleHook mirrors the given levels, or every level when none are
// passed.
func NewAsyncConsoleHook(out io.Writer, bufferSize int, levels ...logrus.Level) *AsyncConsoleHook {
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	h := &AsyncConsoleHook{
		out:    out,
		levels: levels,
		queue:  make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.drain()
	return h
}

func (h *AsyncConsoleHook) Levels() []logrus.Level {
	return h.levels
}

func (h *AsyncConsoleHook) Fire(entry *logrus.Entry) error {
	formatted, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	select {
	case h.queue <- formatted:
	default:
		h.dropped.Add(1)
	}
	return nil
}

func (h *AsyncConsoleHook) Dropped() int64 {
	return h.dropped.Load()
}

func (h *AsyncConsoleHook) drain() {
	defer h.wg.Done()
	for {
		select {
		case b := <-h.queue:
			_, _ = h.out.Write(b)
		case <-h.done:
			for {
				select {
				case b := <-h.queue:
					_, _ = h.out.Write(b)
				default:
					return
				}
			}
		}
	}
}

// Close writes whatever is still queued. Safe to call more than once.
func (h *AsyncConsoleHook) Close() {
	h.once.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}
