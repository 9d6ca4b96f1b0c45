package incidentlog_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/incidentlog"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*incidentlog.MemoryStore
	failing atomic.Bool
	appends atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: incidentlog.NewMemoryStore(100)}
}

func (s *flakyStore) Append(ctx context.Context, r incident.Record) error {
	if s.failing.Load() {
		return errors.New("store down")
	}
	s.appends.Add(1)
	return s.MemoryStore.Append(ctx, r)
}

func (s *flakyStore) Recent(ctx context.Context, n int) ([]incident.Record, error) {
	if s.failing.Load() {
		return nil, errors.New("store down")
	}
	return s.MemoryStore.Recent(ctx, n)
}

type captureExporter struct {
	mu     sync.Mutex
	ids    []string
	fail   bool
	closed bool
}

func (e *captureExporter) Export(_ context.Context, r incident.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return errors.New("broker down")
	}
	e.ids = append(e.ids, r.ID)
	return nil
}

func (e *captureExporter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *captureExporter) exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func record(i int) incident.Record {
	r := incident.NewRecord(incident.RecordTypeScan, "S1", finding.SeverityLow, nil)
	r.ID = fmt.Sprintf("rec-%d", i)
	r.CreatedAt = time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC)
	return r
}

func ids(records []incident.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func startBuffered(t *testing.T, cfg incidentlog.Config, store incident.Store, exporters ...incident.Exporter) *incidentlog.Buffered {
	t.Helper()
	b, err := incidentlog.NewBuffered(testLogger(), cfg, store, exporters...)
	require.NoError(t, err)
	b.Start()
	t.Cleanup(b.Shutdown)
	return b
}

func TestBuffered_FlushesToStoreAndExporters(t *testing.T) {
	store := newFlakyStore()
	exporter := &captureExporter{}
	b := startBuffered(t, incidentlog.Config{RetryInterval: 10 * time.Millisecond}, store, exporter)

	for i := 1; i <= 3; i++ {
		b.Append(record(i))
	}

	require.Eventually(t, func() bool { return store.appends.Load() == 3 }, time.Second, 5*time.Millisecond)
	recent, err := b.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-3", "rec-2", "rec-1"}, ids(recent))
	assert.Equal(t, []string{"rec-1", "rec-2", "rec-3"}, exporter.exported())
	assert.False(t, b.Degraded())
}

func TestBuffered_DuplicateRecordWrittenOnce(t *testing.T) {
	store := newFlakyStore()
	b := startBuffered(t, incidentlog.Config{RetryInterval: 10 * time.Millisecond}, store)

	b.Append(record(1))
	b.Append(record(1))
	b.Append(record(2))

	require.Eventually(t, func() bool { return store.appends.Load() == 2 }, time.Second, 5*time.Millisecond)
	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2", "rec-1"}, ids(recent))
}

func TestBuffered_DegradedStoreServesMemoryAndRecovers(t *testing.T) {
	store := newFlakyStore()
	store.failing.Store(true)
	b := startBuffered(t, incidentlog.Config{RetryInterval: 10 * time.Millisecond}, store)

	b.Append(record(1))
	b.Append(record(2))

	require.Eventually(t, func() bool { return b.Pending() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, b.Degraded())

	recent, err := b.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2", "rec-1"}, ids(recent))

	store.failing.Store(false)

	require.Eventually(t, func() bool { return !b.Degraded() }, time.Second, 5*time.Millisecond)
	stored, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2", "rec-1"}, ids(stored))
}

func TestBuffered_PendingOverflowDropsOldest(t *testing.T) {
	store := newFlakyStore()
	store.failing.Store(true)
	b := startBuffered(t, incidentlog.Config{
		PendingCapacity: 2,
		RetryInterval:   10 * time.Millisecond,
	}, store)

	for i := 1; i <= 4; i++ {
		b.Append(record(i))
	}
	require.Eventually(t, func() bool {
		recent, _ := b.Recent(context.Background(), 10)
		return len(recent) == 4 && b.Pending() == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	store.failing.Store(false)

	require.Eventually(t, func() bool { return store.appends.Load() == 2 }, time.Second, 5*time.Millisecond)
	stored, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-4", "rec-3"}, ids(stored))
}

func TestBuffered_ExporterFailureDoesNotBlockStore(t *testing.T) {
	store := newFlakyStore()
	exporter := &captureExporter{fail: true}
	b := startBuffered(t, incidentlog.Config{RetryInterval: 10 * time.Millisecond}, store, exporter)

	b.Append(record(1))

	require.Eventually(t, func() bool { return store.appends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Degraded())
	assert.Empty(t, exporter.exported())

	b.Shutdown()
	assert.True(t, exporter.closed)
}

func TestBuffered_RecentWithNothingToServe(t *testing.T) {
	store := newFlakyStore()
	store.failing.Store(true)
	b := startBuffered(t, incidentlog.Config{}, store)

	_, err := b.Recent(context.Background(), 5)

	assert.True(t, errors.Is(err, domain.ErrLogUnavailable))
}

func TestBuffered_AppendAfterShutdownKeepsMemoryCopy(t *testing.T) {
	store := newFlakyStore()
	b := startBuffered(t, incidentlog.Config{}, store)
	b.Shutdown()
	store.failing.Store(true)

	b.Append(record(9))

	assert.Zero(t, store.appends.Load())
	recent, err := b.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-9"}, ids(recent))
}

func TestMemoryStore_KeepsNewest(t *testing.T) {
	store := incidentlog.NewMemoryStore(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(context.Background(), record(i)))
	}

	all, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-5", "rec-4", "rec-3"}, ids(all))

	two, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-5", "rec-4"}, ids(two))
}
