package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/app/classifier"
	"github.com/NeuralTrust/TrustSentinel/pkg/app/dispatcher"
	"github.com/NeuralTrust/TrustSentinel/pkg/app/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/behavior"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/scanner"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/signature"
	"github.com/NeuralTrust/TrustSentinel/pkg/detection/traffic"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	domainhoneypot "github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/profile"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustSentinel/pkg/infra/worker"
	"github.com/sirupsen/logrus"
)

const scanContextBody = "body"

// Deps are the collaborators injected into the engine. Library, Enforcer and
// Log are required.
type Deps struct {
	Logger       *logrus.Logger
	Config       Config
	Library      *signature.Library
	Enforcer     countermeasure.Enforcer
	Hook         Hook
	Log          incident.Log
	Pool         worker.Pool
	TimeProvider func() time.Time
}

type endpointAlert struct {
	severity finding.Severity
	at       time.Time
}

type Engine struct {
	logger       *logrus.Logger
	cfg          Config
	scanner      scanner.Scanner
	traffic      traffic.Monitor
	behavior     behavior.Analyzer
	classifier   classifier.Classifier
	dispatcher   dispatcher.Dispatcher
	honeypots    honeypot.Registry
	log          incident.Log
	pool         worker.Pool
	timeProvider func() time.Time
	createdAt    time.Time

	mu             sync.RWMutex
	lastTick       time.Time
	endpointAlerts map[string]endpointAlert

	subMu       sync.RWMutex
	subscribers map[int]chan incident.Incident
	nextSub     int

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	wg     sync.WaitGroup
	start  sync.Once
	stop   sync.Once
}

var _ Inspector = (*Engine)(nil)

// New builds every component once. A missing dependency or a malformed
// severity table is a ConfigurationError.
func New(deps Deps) (*Engine, error) {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Library == nil {
		return nil, domain.NewConfigurationError("engine", "signature library is required", nil)
	}
	if deps.Enforcer == nil {
		return nil, domain.NewConfigurationError("engine", "enforcer is required", nil)
	}
	if deps.Log == nil {
		return nil, domain.NewConfigurationError("engine", "incident log is required", nil)
	}
	if deps.TimeProvider == nil {
		deps.TimeProvider = time.Now
	}
	if deps.Hook == nil {
		deps.Hook = noopHook{}
	}
	cfg := deps.Config.withDefaults()
	logger := deps.Logger

	log := deps.Log

	s := scanner.NewPatternScanner(logger, deps.Library,
		scanner.WithTimeProvider(deps.TimeProvider),
		scanner.WithIncidentLog(log),
	)
	registry := honeypot.NewRegistry(logger, cfg.Honeypot, s,
		honeypot.WithTimeProvider(deps.TimeProvider),
		honeypot.WithIncidentLog(log),
	)
	d, err := dispatcher.New(logger, cfg.Dispatcher, deps.Enforcer,
		dispatcher.WithTimeProvider(deps.TimeProvider),
		dispatcher.WithHoneypotDeployer(registry),
		dispatcher.WithIncidentLog(log),
	)
	if err != nil {
		return nil, err
	}
	c, err := classifier.New(logger, cfg.Classifier, d, log, classifier.WithTimeProvider(deps.TimeProvider))
	if err != nil {
		return nil, err
	}

	pool := deps.Pool
	if pool == nil {
		pool = worker.NewPool(logger, "classifier", cfg.Workers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:         logger,
		cfg:            cfg,
		scanner:        s,
		traffic:        traffic.NewMonitor(logger, cfg.Traffic, traffic.WithTimeProvider(deps.TimeProvider)),
		behavior:       behavior.NewAnalyzer(logger, cfg.Behavior, behavior.WithTimeProvider(deps.TimeProvider)),
		classifier:     c,
		dispatcher:     d,
		honeypots:      registry,
		log:            log,
		pool:           pool,
		timeProvider:   deps.TimeProvider,
		createdAt:      deps.TimeProvider(),
		endpointAlerts: make(map[string]endpointAlert),
		subscribers:    make(map[int]chan incident.Incident),
		ctx:            ctx,
		cancel:         cancel,
		quit:           make(chan struct{}),
	}
	deps.Hook.Attach(e)
	return e, nil
}

// Start launches the classification workers and the periodic tick.
func (e *Engine) Start() {
	e.start.Do(func() {
		e.pool.Start()
		e.wg.Add(1)
		go e.tickLoop()
		e.logger.WithFields(logrus.Fields{
			"tick_interval": e.cfg.TickInterval.String(),
			"signatures":    len(e.scanner.Library().Families),
		}).Info("engine started")
	})
}

// Stop halts the tick, drains queued findings and closes subscriber streams.
func (e *Engine) Stop() {
	e.stop.Do(func() {
		close(e.quit)
		e.wg.Wait()
		e.pool.Shutdown()
		e.cancel()
		e.subMu.Lock()
		for id, ch := range e.subscribers {
			close(ch)
			delete(e.subscribers, id)
		}
		e.subMu.Unlock()
		e.logger.Info("engine stopped")
	})
}

func (e *Engine) tickLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			e.Tick(e.ctx)
		}
	}
}

// Scan inspects input and hands any findings to classification. It never
// blocks on classification or enforcement.
func (e *Engine) Scan(sourceID string, input any, scanContext string) scanner.Result {
	result := e.scanner.ScanFrom(sourceID, input, scanContext)
	if !result.Safe {
		e.submit(result.Findings...)
	}
	return result
}

func (e *Engine) Record(sourceID, endpoint string, outcome traffic.Outcome) {
	e.traffic.Record(sourceID, endpoint, outcome)
}

// Observe feeds a session signal to the behavior analyzer. Findings are
// attributed to sourceID so they land on the same profile as scan findings.
func (e *Engine) Observe(sourceID, sessionID string, signal behavior.Signal) *finding.Finding {
	if sessionID == "" {
		sessionID = sourceID
	}
	e.behavior.Observe(sessionID, signal)
	f := e.behavior.Assess(sessionID)
	if f == nil {
		return nil
	}
	attributed := f.Attribute(sourceID)
	e.submit(attributed)
	return &attributed
}

// Inspect runs the request through the scanner and the behavior analyzer.
func (e *Engine) Inspect(_ context.Context, req Request) scanner.Result {
	if req.Timestamp.IsZero() {
		req.Timestamp = e.timeProvider()
	}
	combined := scanner.Result{Safe: true}
	merge := func(r scanner.Result) {
		combined.Safe = combined.Safe && r.Safe
		combined.Findings = append(combined.Findings, r.Findings...)
	}
	if req.Query != "" {
		merge(e.Scan(req.SourceID, req.Query, "query"))
	}
	if len(req.Body) > 0 {
		merge(e.Scan(req.SourceID, req.Body, scanContextBody))
	}
	for name, value := range req.Headers {
		merge(e.Scan(req.SourceID, value, "header:"+strings.ToLower(name)))
	}
	if f := e.Observe(req.SourceID, req.SessionID, behavior.Signal{
		Timestamp: req.Timestamp,
		Path:      req.Path,
		Depth:     req.Depth,
		UserAgent: req.UserAgent,
	}); f != nil {
		merge(scanner.Result{Findings: []finding.Finding{*f}})
	}
	return combined
}

// Complete records the response outcome against the request path.
func (e *Engine) Complete(req Request, resp Response) {
	e.Record(req.SourceID, req.Path, traffic.Outcome{
		LatencyMs: float64(resp.Latency) / float64(time.Millisecond),
		IsError:   resp.Status >= 500,
	})
}

// RecordHoneypotInteraction captures a decoy hit and feeds the payload
// findings back to the source's profile.
func (e *Engine) RecordHoneypotInteraction(
	ctx context.Context,
	honeypotID string,
	interaction domainhoneypot.Interaction,
) ([]finding.Finding, error) {
	findings, err := e.honeypots.RecordInteraction(ctx, honeypotID, interaction)
	if err != nil {
		return nil, err
	}
	e.submit(findings...)
	return findings, nil
}

func (e *Engine) DeployHoneypot(sourceID string, kind domainhoneypot.Kind, aggressive bool) domainhoneypot.Honeypot {
	hp := e.honeypots.Deploy(sourceID, kind, aggressive)
	prometheus.ActiveHoneypots.Set(float64(e.honeypots.ActiveCount()))
	return hp
}

func (e *Engine) Honeypot(honeypotID string) (domainhoneypot.Honeypot, error) {
	return e.honeypots.Get(honeypotID)
}

func (e *Engine) DecoyResource(honeypotID, path string) (domainhoneypot.Resource, error) {
	return e.honeypots.Resource(honeypotID, path)
}

func (e *Engine) TeardownHoneypot(honeypotID string) error {
	if err := e.honeypots.Teardown(honeypotID); err != nil {
		return err
	}
	prometheus.ActiveHoneypots.Set(float64(e.honeypots.ActiveCount()))
	return nil
}

func (e *Engine) HoneypotIntelligence(sourceID string) domainhoneypot.Intelligence {
	return e.honeypots.Summarize(sourceID)
}

func (e *Engine) Profiles() []profile.Snapshot {
	return e.classifier.Profiles()
}

func (e *Engine) Profile(ctx context.Context, sourceID string) (profile.Snapshot, error) {
	return e.classifier.Profile(ctx, sourceID)
}

// Release is the manual-review path: blocks are lifted and the source goes
// back to WATCHED.
func (e *Engine) Release(ctx context.Context, sourceID string) (profile.Snapshot, error) {
	snapshot, err := e.classifier.Release(ctx, sourceID)
	if err != nil {
		return profile.Snapshot{}, err
	}
	e.logger.WithField("source_id", sourceID).Info("source released after review")
	return snapshot, nil
}

func (e *Engine) Incidents(ctx context.Context, limit int) ([]incident.Record, error) {
	if limit <= 0 {
		limit = e.cfg.RecentIncidents
	}
	return e.log.Recent(ctx, limit)
}

// Flush waits until every finding submitted so far has been classified.
func (e *Engine) Flush(ctx context.Context) error {
	return e.pool.Flush(ctx)
}

// Tick runs one evaluation round: traffic windows, profile decay, honeypot
// expiry and session pruning.
func (e *Engine) Tick(ctx context.Context) {
	now := e.timeProvider()
	for _, verdict := range e.traffic.EvaluateAll(ctx) {
		if !verdict.Anomalous {
			continue
		}
		for _, f := range verdict.Findings {
			if strings.HasPrefix(f.SourceID, traffic.EndpointSourcePrefix) {
				e.endpointAnomaly(verdict, f, now)
				continue
			}
			e.submit(f)
		}
	}

	sweep := e.classifier.Sweep(now)
	expired := e.honeypots.Sweep(now)
	pruned := e.behavior.Prune(now)

	prometheus.TrackedProfiles.Set(float64(sweep.Profiles))
	prometheus.ActiveHoneypots.Set(float64(e.honeypots.ActiveCount()))

	e.mu.Lock()
	e.lastTick = now
	for endpoint, alert := range e.endpointAlerts {
		if now.Sub(alert.at) > e.cfg.EndpointAlertTTL {
			delete(e.endpointAlerts, endpoint)
		}
	}
	e.mu.Unlock()

	if sweep.Decayed > 0 || sweep.Evicted > 0 || expired > 0 || pruned > 0 {
		e.logger.WithFields(logrus.Fields{
			"decayed":           sweep.Decayed,
			"evicted":           sweep.Evicted,
			"expired_honeypots": expired,
			"pruned_sessions":   pruned,
		}).Debug("engine tick")
	}
}

// endpointAnomaly keeps endpoint-wide findings out of the profile state
// machine: they raise the threat level and are logged.
func (e *Engine) endpointAnomaly(verdict traffic.Verdict, f finding.Finding, now time.Time) {
	e.mu.Lock()
	e.endpointAlerts[verdict.Endpoint] = endpointAlert{severity: f.Severity, at: now}
	e.mu.Unlock()

	prometheus.FindingsTotal.WithLabelValues(string(f.Kind), f.Severity.String()).Inc()
	record := incident.NewRecord(incident.RecordTypeScan, f.SourceID, f.Severity, []finding.Finding{f})
	record.Message = fmt.Sprintf("volumetric anomaly on %s: %s", verdict.Endpoint, verdict.String())
	record.CreatedAt = now
	e.log.Append(record)

	e.logger.WithFields(logrus.Fields{
		"endpoint": verdict.Endpoint,
		"severity": f.Severity.String(),
		"score":    verdict.Score,
	}).Warn("volumetric anomaly detected")
}

func (e *Engine) submit(findings ...finding.Finding) {
	for _, f := range findings {
		if f.SourceID == "" {
			continue
		}
		prometheus.FindingsTotal.WithLabelValues(string(f.Kind), f.Severity.String()).Inc()
		if !e.pool.Submit(f.SourceID, func() { e.classify(f) }) {
			e.logger.WithFields(logrus.Fields{
				"source_id":  f.SourceID,
				"finding_id": f.ID,
			}).Warn("finding dropped, classification queue is full")
		}
	}
}

func (e *Engine) classify(f finding.Finding) {
	decision, err := e.classifier.Classify(e.ctx, f)
	if err != nil {
		e.logger.WithError(err).WithField("finding_id", f.ID).Error("failed to classify finding")
		return
	}
	prometheus.IncidentsTotal.WithLabelValues(
		decision.Incident.AssignedSeverity.String(),
		decision.Profile.State.String(),
	).Inc()
	for _, outcome := range decision.Incident.CountermeasuresDispatched {
		prometheus.CountermeasuresTotal.WithLabelValues(
			string(outcome.Countermeasure.Kind),
			string(outcome.Status),
		).Inc()
	}
	e.publish(decision.Incident)
}

// Subscribe streams classification incidents. Slow subscribers miss
// incidents rather than stall classification.
func (e *Engine) Subscribe() (<-chan incident.Incident, func()) {
	ch := make(chan incident.Incident, e.cfg.SubscriberBuffer)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			if _, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(ch)
			}
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) publish(inc incident.Incident) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- inc:
		default:
			prometheus.DroppedTotal.WithLabelValues("incident_stream").Inc()
		}
	}
}
