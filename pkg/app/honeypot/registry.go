package honeypot

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustSentinel/pkg/detection/scanner"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/finding"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const shardCount = 32

type Config struct {
	TTL             time.Duration `mapstructure:"ttl"`
	Retention       time.Duration `mapstructure:"retention"`
	MaxInteractions int           `mapstructure:"max_interactions"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
}

func DefaultConfig() Config {
	return Config{
		TTL:             30 * time.Minute,
		Retention:       24 * time.Hour,
		MaxInteractions: 500,
		MaxPayloadBytes: 4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.MaxInteractions <= 0 {
		c.MaxInteractions = d.MaxInteractions
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = d.MaxPayloadBytes
	}
	return c
}

//go:generate mockery --name=Registry --dir=. --output=./mocks --filename=registry_mock.go --case=underscore --with-expecter
type Registry interface {
	Deploy(sourceID string, kind honeypot.Kind, aggressive bool) honeypot.Honeypot
	// RecordInteraction appends to an ACTIVE honeypot and returns the scanner
	// findings of the payload so the caller can feed them back.
	RecordInteraction(ctx context.Context, honeypotID string, interaction honeypot.Interaction) ([]finding.Finding, error)
	Summarize(sourceID string) honeypot.Intelligence
	Teardown(honeypotID string) error
	Sweep(now time.Time) int
	Get(honeypotID string) (honeypot.Honeypot, error)
	Resource(honeypotID, path string) (honeypot.Resource, error)
	ActiveCount() int
}

type Option func(*registry)

func WithTimeProvider(fn func() time.Time) Option {
	return func(r *registry) {
		r.timeProvider = fn
	}
}

func WithIncidentLog(log incident.Log) Option {
	return func(r *registry) {
		r.log = log
	}
}

type sourceHoneypots struct {
	all    []*honeypot.Honeypot
	active map[honeypot.Kind]*honeypot.Honeypot
}

type shard struct {
	mu      sync.RWMutex
	sources map[string]*sourceHoneypots
}

type registry struct {
	logger       *logrus.Logger
	cfg          Config
	scanner      scanner.Scanner
	log          incident.Log
	shards       [shardCount]*shard
	owners       sync.Map
	timeProvider func() time.Time
}

func NewRegistry(logger *logrus.Logger, cfg Config, s scanner.Scanner, opts ...Option) Registry {
	r := &registry{
		logger:       logger,
		cfg:          cfg.withDefaults(),
		scanner:      s,
		timeProvider: time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{sources: make(map[string]*sourceHoneypots)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *registry) shard(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return r.shards[h.Sum32()%shardCount]
}

// Deploy keeps exactly one ACTIVE honeypot per (source, kind); redeploying
// extends its TTL and widens the decoy set when escalated to aggressive.
func (r *registry) Deploy(sourceID string, kind honeypot.Kind, aggressive bool) honeypot.Honeypot {
	now := r.timeProvider()
	sh := r.shard(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.sources[sourceID]
	if !ok {
		set = &sourceHoneypots{active: make(map[honeypot.Kind]*honeypot.Honeypot)}
		sh.sources[sourceID] = set
	}

	if hp, ok := set.active[kind]; ok {
		if hp.ActiveAt(now) {
			hp.ExpiresAt = now.Add(r.cfg.TTL)
			if aggressive && !hp.Aggressive {
				hp.Aggressive = true
				hp.Resources = resourcesFor(kind, true, hp.CanaryToken)
			}
			return hp.Copy()
		}
		hp.Status = honeypot.StatusInactive
		delete(set.active, kind)
	}

	canary := newCanary()
	hp := &honeypot.Honeypot{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		Kind:        kind,
		Aggressive:  aggressive,
		CanaryToken: canary,
		Resources:   resourcesFor(kind, aggressive, canary),
		Status:      honeypot.StatusActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.cfg.TTL),
	}
	set.all = append(set.all, hp)
	set.active[kind] = hp
	r.owners.Store(hp.ID, sourceID)

	r.logger.WithFields(logrus.Fields{
		"source_id":   sourceID,
		"honeypot_id": hp.ID,
		"kind":        string(kind),
		"aggressive":  aggressive,
	}).Info("honeypot deployed")
	return hp.Copy()
}

func (r *registry) RecordInteraction(
	ctx context.Context,
	honeypotID string,
	interaction honeypot.Interaction,
) ([]finding.Finding, error) {
	sh, hp, err := r.locate(honeypotID)
	if err != nil {
		return nil, err
	}
	now := r.timeProvider()
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = now
	}
	if len(interaction.Payload) > r.cfg.MaxPayloadBytes {
		interaction.Payload = interaction.Payload[:r.cfg.MaxPayloadBytes]
	}

	sh.mu.RLock()
	active := hp.ActiveAt(now)
	sourceID := hp.SourceID
	kind := hp.Kind
	sh.mu.RUnlock()
	if !active {
		return nil, fmt.Errorf("honeypot %s: %w", honeypotID, domain.ErrHoneypotInactive)
	}

	var findings []finding.Finding
	if interaction.Payload != "" {
		result := r.scanner.Detect(sourceID, interaction.Payload, "honeypot:"+interaction.Resource)
		findings = result.Findings
	}
	interaction.Technique = r.technique(kind, interaction.Resource, findings)
	interaction.Payload = finding.SanitizeSample(interaction.Payload)

	sh.mu.Lock()
	if !hp.ActiveAt(now) {
		sh.mu.Unlock()
		return nil, fmt.Errorf("honeypot %s: %w", honeypotID, domain.ErrHoneypotInactive)
	}
	hp.Interactions = append(hp.Interactions, interaction)
	if len(hp.Interactions) > r.cfg.MaxInteractions {
		hp.Interactions = hp.Interactions[len(hp.Interactions)-r.cfg.MaxInteractions:]
	}
	sh.mu.Unlock()

	if r.log != nil {
		record := incident.NewRecord(incident.RecordTypeHoneypotInteraction, sourceID, finding.HighestSeverity(findings), findings)
		record.Message = fmt.Sprintf("honeypot %s %s %s", honeypotID, interaction.Resource, interaction.Technique)
		record.CreatedAt = now
		r.log.Append(record)
	}

	r.logger.WithFields(logrus.Fields{
		"source_id":   sourceID,
		"honeypot_id": honeypotID,
		"resource":    interaction.Resource,
		"technique":   string(interaction.Technique),
		"findings":    len(findings),
	}).Info("honeypot interaction recorded")
	return findings, nil
}

// technique tags an interaction with the technique of its most severe
// signature match.
func (r *registry) technique(kind honeypot.Kind, resource string, findings []finding.Finding) honeypot.Technique {
	var best *finding.Finding
	for i := range findings {
		f := &findings[i]
		family, ok := r.scanner.Library().Family(f.Evidence.Family)
		if !ok || family.Technique == "" {
			continue
		}
		if best == nil || f.Severity > best.Severity {
			best = f
		}
	}
	if best != nil {
		family, _ := r.scanner.Library().Family(best.Evidence.Family)
		return honeypot.Technique(family.Technique)
	}
	if kind == honeypot.KindCredential || isCredentialResource(resource) {
		return honeypot.TechniqueCredentialHarvest
	}
	return honeypot.TechniqueReconnaissance
}

// Summarize never mutates registry state.
func (r *registry) Summarize(sourceID string) honeypot.Intelligence {
	now := r.timeProvider()
	intel := honeypot.Intelligence{
		SourceID:         sourceID,
		Techniques:       make(map[honeypot.Technique]int),
		ResourcesTouched: make(map[string]int),
		GeneratedAt:      now,
	}

	sh := r.shard(sourceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	set, ok := sh.sources[sourceID]
	if !ok {
		return intel
	}
	for _, hp := range set.all {
		intel.Honeypots++
		if hp.ActiveAt(now) {
			intel.ActiveHoneypots++
		}
		for _, in := range hp.Interactions {
			intel.InteractionCount++
			intel.Techniques[in.Technique]++
			intel.ResourcesTouched[in.Resource]++
			if intel.FirstInteraction.IsZero() || in.Timestamp.Before(intel.FirstInteraction) {
				intel.FirstInteraction = in.Timestamp
			}
			if in.Timestamp.After(intel.LastInteraction) {
				intel.LastInteraction = in.Timestamp
			}
		}
	}
	if intel.InteractionCount > 0 {
		intel.EngagementSeconds = intel.LastInteraction.Sub(intel.FirstInteraction).Seconds()
		intel.DominantTechnique = dominant(intel.Techniques)
	}
	return intel
}

func dominant(techniques map[honeypot.Technique]int) honeypot.Technique {
	keys := make([]honeypot.Technique, 0, len(techniques))
	for t := range techniques {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool {
		if techniques[keys[i]] == techniques[keys[j]] {
			return keys[i] < keys[j]
		}
		return techniques[keys[i]] > techniques[keys[j]]
	})
	return keys[0]
}

func (r *registry) Teardown(honeypotID string) error {
	sh, hp, err := r.locate(honeypotID)
	if err != nil {
		return err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	hp.Status = honeypot.StatusInactive
	if set, ok := sh.sources[hp.SourceID]; ok {
		if current, ok := set.active[hp.Kind]; ok && current == hp {
			delete(set.active, hp.Kind)
		}
	}
	r.logger.WithField("honeypot_id", honeypotID).Info("honeypot torn down")
	return nil
}

// Sweep deactivates expired honeypots and forgets inactive ones past the
// retention period. It returns the number deactivated.
func (r *registry) Sweep(now time.Time) int {
	expired := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for sourceID, set := range sh.sources {
			for kind, hp := range set.active {
				if !hp.ActiveAt(now) {
					hp.Status = honeypot.StatusInactive
					delete(set.active, kind)
					expired++
				}
			}
			kept := set.all[:0]
			for _, hp := range set.all {
				if hp.Status == honeypot.StatusInactive && now.Sub(hp.ExpiresAt) > r.cfg.Retention {
					r.owners.Delete(hp.ID)
					continue
				}
				kept = append(kept, hp)
			}
			set.all = kept
			if len(set.all) == 0 {
				delete(sh.sources, sourceID)
			}
		}
		sh.mu.Unlock()
	}
	return expired
}

func (r *registry) Get(honeypotID string) (honeypot.Honeypot, error) {
	sh, hp, err := r.locate(honeypotID)
	if err != nil {
		return honeypot.Honeypot{}, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return hp.Copy(), nil
}

// Resource resolves a decoy resource of an ACTIVE honeypot.
func (r *registry) Resource(honeypotID, path string) (honeypot.Resource, error) {
	sh, hp, err := r.locate(honeypotID)
	if err != nil {
		return honeypot.Resource{}, err
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if !hp.ActiveAt(r.timeProvider()) {
		return honeypot.Resource{}, fmt.Errorf("honeypot %s: %w", honeypotID, domain.ErrHoneypotInactive)
	}
	for _, res := range hp.Resources {
		if res.Path == path {
			return res, nil
		}
	}
	return honeypot.Resource{}, domain.NewNotFoundError("decoy resource", path)
}

func (r *registry) ActiveCount() int {
	now := r.timeProvider()
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, set := range sh.sources {
			for _, hp := range set.active {
				if hp.ActiveAt(now) {
					n++
				}
			}
		}
		sh.mu.RUnlock()
	}
	return n
}

func (r *registry) locate(honeypotID string) (*shard, *honeypot.Honeypot, error) {
	owner, ok := r.owners.Load(honeypotID)
	if !ok {
		return nil, nil, domain.NewNotFoundError("honeypot", honeypotID)
	}
	sourceID := owner.(string)
	sh := r.shard(sourceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if set, ok := sh.sources[sourceID]; ok {
		for _, hp := range set.all {
			if hp.ID == honeypotID {
				return sh, hp, nil
			}
		}
	}
	return nil, nil, domain.NewNotFoundError("honeypot", honeypotID)
}
