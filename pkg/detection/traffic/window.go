package traffic

import (
	"sort"
	"sync"
	"time"
)

type requestRecord struct {
	at        time.Time
	sourceID  string
	latencyMs float64
	isError   bool
}

// endpointWindow keeps running aggregates so snapshots are O(sources)
// rather than O(requests).
type endpointWindow struct {
	mu         sync.Mutex
	records    []requestRecord
	head       int
	perSource  map[string]int
	errors     int
	latencySum float64
	lastRecord time.Time
	baseline   Baseline
	// retired is set under mu once the window has left the endpoint map.
	retired bool
}

func newEndpointWindow(baseline Baseline) *endpointWindow {
	return &endpointWindow{
		perSource: make(map[string]int),
		baseline:  baseline,
	}
}

func (w *endpointWindow) len() int {
	return len(w.records) - w.head
}

func (w *endpointWindow) push(r requestRecord, maxRecords int) {
	if w.len() >= maxRecords {
		w.dropHead()
	}
	w.records = append(w.records, r)
	w.perSource[r.sourceID]++
	w.latencySum += r.latencyMs
	if r.isError {
		w.errors++
	}
	w.lastRecord = r.at
}

func (w *endpointWindow) dropHead() {
	r := w.records[w.head]
	w.records[w.head] = requestRecord{}
	w.head++
	w.latencySum -= r.latencyMs
	if r.isError {
		w.errors--
	}
	if n := w.perSource[r.sourceID] - 1; n > 0 {
		w.perSource[r.sourceID] = n
	} else {
		delete(w.perSource, r.sourceID)
	}
}

// prune drops records older than cutoff and compacts the backing slice once
// most of it is dead.
func (w *endpointWindow) prune(cutoff time.Time) {
	for w.len() > 0 && w.records[w.head].at.Before(cutoff) {
		w.dropHead()
	}
	if w.len() == 0 {
		w.records = w.records[:0]
		w.head = 0
		w.latencySum = 0
		w.errors = 0
		return
	}
	if w.head > 1024 && w.head > len(w.records)/2 {
		w.records = append([]requestRecord(nil), w.records[w.head:]...)
		w.head = 0
	}
}

func (w *endpointWindow) snapshot(endpoint string, now time.Time, topN int) Snapshot {
	total := w.len()
	s := Snapshot{
		Endpoint:      endpoint,
		TotalRequests: total,
		UniqueSources: len(w.perSource),
		TakenAt:       now,
	}
	if total == 0 {
		return s
	}
	s.AvgLatencyMs = w.latencySum / float64(total)
	s.ErrorRate = float64(w.errors) / float64(total)

	shares := make([]SourceShare, 0, len(w.perSource))
	for source, count := range w.perSource {
		shares = append(shares, SourceShare{
			SourceID: source,
			Requests: count,
			Share:    float64(count) / float64(total),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Requests == shares[j].Requests {
			return shares[i].SourceID < shares[j].SourceID
		}
		return shares[i].Requests > shares[j].Requests
	})
	if len(shares) > topN {
		shares = shares[:topN]
	}
	s.TopSources = shares
	return s
}
