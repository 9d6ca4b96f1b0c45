package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncFileWriter never blocks the logging goroutine: when the queue is full
// the line is counted as dropped.
type AsyncFileWriter struct {
	writer  *bufio.Writer
	file    *os.File
	lines   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

func NewAsyncFileWriter(logFile string, bufferSize int) (*AsyncFileWriter, error) {
	file, err := os.OpenFile(filepath.Clean(logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	w := &AsyncFileWriter{
		writer: bufio.NewWriterSize(file, bufferSize),
		file:   file,
		lines:  make(chan []byte, 1000),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *AsyncFileWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- append([]byte(nil), p...):
	default:
		w.dropped.Add(1)
	}
	return len(p), nil
}

func (w *AsyncFileWriter) Dropped() int64 {
	return w.dropped.Load()
}

func (w *AsyncFileWriter) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case line := <-w.lines:
			w.write(line)
		case <-ticker.C:
			_ = w.writer.Flush()
		case <-w.done:
			for {
				select {
				case line := <-w.lines:
					w.write(line)
				default:
					_ = w.writer.Flush()
					return
				}
			}
		}
	}
}

func (w *AsyncFileWriter) write(line []byte) {
	if _, err := w.writer.Write(line); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write log line:", err)
	}
}

// Close drains queued lines, flushes and closes the file.
func (w *AsyncFileWriter) Close() {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		_ = w.file.Close()
	})
}
