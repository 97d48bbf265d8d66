package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/model"
)

const driverMemory = "memory"

// MemoryStore is a mutex-guarded, in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]model.WeightProfile
	entities  map[string]model.Entity
	inputs    map[string]model.CategoryScoreSet
	scores    map[string]model.ScoreRecord
	alerts    map[string]model.AlertRecord
	alertKeys map[string]string // dedupe key -> alert id
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]model.WeightProfile),
		entities:  make(map[string]model.Entity),
		inputs:    make(map[string]model.CategoryScoreSet),
		scores:    make(map[string]model.ScoreRecord),
		alerts:    make(map[string]model.AlertRecord),
		alertKeys: make(map[string]string),
	}
}

func keyString(k model.ScoreKey) string {
	return fmt.Sprintf("%s|%s|%s", k.EntityID, k.Timeframe, k.Period)
}

func samePeriod(a, b model.Period) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End)
}

func cloneProfile(p model.WeightProfile) model.WeightProfile {
	p.Weights = append([]model.CategoryWeight(nil), p.Weights...)
	if p.RoleAdjustments != nil {
		adj := make(map[string]map[string]float64, len(p.RoleAdjustments))
		for role, m := range p.RoleAdjustments {
			adj[role] = maps.Clone(m)
		}
		p.RoleAdjustments = adj
	}
	if p.ActivatedAt != nil {
		at := *p.ActivatedAt
		p.ActivatedAt = &at
	}
	return p
}

func cloneRecord(r model.ScoreRecord) model.ScoreRecord {
	r.CategoryScores = maps.Clone(r.CategoryScores)
	if r.Percentiles != nil {
		p := *r.Percentiles
		p.Categories = maps.Clone(p.Categories)
		r.Percentiles = &p
	}
	return r
}

func (s *MemoryStore) CreateProfile(_ context.Context, p model.WeightProfile) error {
	defer observe(driverMemory, "create_profile", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.Version]; ok {
		return fmt.Errorf("%w: %s", model.ErrProfileExists, p.Version)
	}
	p = cloneProfile(p)
	p.Active = false
	p.ActivatedAt = nil
	s.profiles[p.Version] = p
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, version string) (model.WeightProfile, error) {
	defer observe(driverMemory, "get_profile", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[version]
	if !ok {
		return model.WeightProfile{}, fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) ListProfiles(_ context.Context) ([]model.WeightProfile, error) {
	defer observe(driverMemory, "list_profiles", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WeightProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// ActivateProfile flips the active flag inside a single critical section.
func (s *MemoryStore) ActivateProfile(_ context.Context, version string, at time.Time) error {
	defer observe(driverMemory, "activate_profile", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.profiles[version]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	for v, p := range s.profiles {
		if p.Active {
			p.Active = false
			s.profiles[v] = p
		}
	}
	target.Active = true
	target.ActivatedAt = &at
	s.profiles[version] = target
	return nil
}

func (s *MemoryStore) ActiveProfile(_ context.Context) (model.WeightProfile, error) {
	defer observe(driverMemory, "active_profile", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Active {
			return cloneProfile(p), nil
		}
	}
	return model.WeightProfile{}, model.ErrNoActiveProfile
}

func (s *MemoryStore) UpsertEntity(_ context.Context, e model.Entity) error {
	defer observe(driverMemory, "upsert_entity", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	return nil
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, fmt.Errorf("%w: %s", model.ErrEntityNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) ListActiveEntities(_ context.Context) ([]model.Entity, error) {
	defer observe(driverMemory, "list_active_entities", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutScoreSet(_ context.Context, set model.CategoryScoreSet) error {
	defer observe(driverMemory, "put_score_set", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	set.Scores = maps.Clone(set.Scores)
	s.inputs[keyString(model.ScoreKey{EntityID: set.EntityID, Timeframe: set.Timeframe, Period: set.Period})] = set
	return nil
}

func (s *MemoryStore) GetScoreSet(_ context.Context, key model.ScoreKey) (model.CategoryScoreSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.inputs[keyString(key)]
	if !ok {
		return model.CategoryScoreSet{}, fmt.Errorf("score set for %s %s: %w", key.EntityID, key.Period, model.ErrNotFound)
	}
	set.Scores = maps.Clone(set.Scores)
	return set, nil
}

func (s *MemoryStore) UpsertScore(_ context.Context, r model.ScoreRecord) (model.ScoreRecord, error) {
	defer observe(driverMemory, "upsert_score", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyString(r.Key())
	r = cloneRecord(r)
	if prev, ok := s.scores[k]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	r.Percentiles = nil
	r.Trend = model.Trend{Direction: model.TrendUnknown}
	s.scores[k] = r
	return cloneRecord(r), nil
}

func (s *MemoryStore) GetScore(_ context.Context, key model.ScoreKey) (model.ScoreRecord, error) {
	defer observe(driverMemory, "get_score", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.scores[keyString(key)]
	if !ok {
		return model.ScoreRecord{}, fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) ListPeriodScores(_ context.Context, tf model.Timeframe, p model.Period) ([]model.ScoreRecord, error) {
	defer observe(driverMemory, "list_period_scores", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScoreRecord
	for _, r := range s.scores {
		if r.Timeframe == tf && samePeriod(r.Period, p) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *MemoryStore) CountPeriodScores(_ context.Context, tf model.Timeframe, p model.Period) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.scores {
		if r.Timeframe == tf && samePeriod(r.Period, p) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdatePercentiles(_ context.Context, key model.ScoreKey, p model.Percentiles) error {
	defer observe(driverMemory, "update_percentiles", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyString(key)
	r, ok := s.scores[k]
	if !ok {
		return fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	p.Categories = maps.Clone(p.Categories)
	r.Percentiles = &p
	s.scores[k] = r
	return nil
}

func (s *MemoryStore) UpdateTrend(_ context.Context, key model.ScoreKey, t model.Trend) error {
	defer observe(driverMemory, "update_trend", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyString(key)
	r, ok := s.scores[k]
	if !ok {
		return fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	r.Trend = t
	s.scores[k] = r
	return nil
}

func (s *MemoryStore) PreviousScore(_ context.Context, entityID string, tf model.Timeframe, before time.Time) (model.ScoreRecord, error) {
	defer observe(driverMemory, "previous_score", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *model.ScoreRecord
	for _, r := range s.scores {
		if r.EntityID != entityID || r.Timeframe != tf || !r.Period.Start.Before(before) {
			continue
		}
		if best == nil || r.Period.Start.After(best.Period.Start) {
			rr := r
			best = &rr
		}
	}
	if best == nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: no period of %s before %s", model.ErrScoreNotFound, entityID, before.Format(model.DateLayout))
	}
	return cloneRecord(*best), nil
}

func (s *MemoryStore) ScoreHistory(_ context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error) {
	defer observe(driverMemory, "score_history", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScoreRecord
	for _, r := range s.scores {
		if r.EntityID == entityID && r.Timeframe == tf {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.After(out[j].Period.Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertAlert(_ context.Context, a model.AlertRecord) (bool, error) {
	defer observe(driverMemory, "insert_alert", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.DedupeKey()
	if _, dup := s.alertKeys[key]; dup {
		return false, nil
	}
	s.alertKeys[key] = a.ID
	s.alerts[a.ID] = a
	return true, nil
}

func (s *MemoryStore) ActiveAlerts(_ context.Context, entityID string, since time.Time) ([]model.AlertRecord, error) {
	defer observe(driverMemory, "active_alerts", time.Now(), nil)
	s.mu.RLock()
	defer s.mu.RUnlock()
	since = model.Date(since)
	var out []model.AlertRecord
	for _, a := range s.alerts {
		if a.EntityID != entityID || !a.IsActive || a.AcknowledgedAt != nil || a.AlertDate.Before(since) {
			continue
		}
		out = append(out, a)
	}
	SortAlerts(out)
	return out, nil
}

func (s *MemoryStore) AcknowledgeAlert(_ context.Context, id string, at time.Time) (model.AlertRecord, error) {
	defer observe(driverMemory, "acknowledge_alert", time.Now(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.AlertRecord{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	if a.AcknowledgedAt == nil {
		a.AcknowledgedAt = &at
		s.alerts[id] = a
	}
	return a, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// SortAlerts orders by alert date desc, then severity desc, then creation time.
func SortAlerts(alerts []model.AlertRecord) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if !a.AlertDate.Equal(b.AlertDate) {
			return a.AlertDate.After(b.AlertDate)
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
