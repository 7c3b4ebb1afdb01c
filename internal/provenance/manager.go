package provenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
)

// DefaultMaxDepth bounds lineage walks when the caller gives no depth
const DefaultMaxDepth = 10

// Manager records PROV entities, activities and agents in a Backend
type Manager struct {
	backend  Backend
	logger   *zap.Logger
	maxDepth int
	now      func() time.Time
	newID    func() string
}

// NewManager creates a manager over backend. maxDepth <= 0 uses DefaultMaxDepth.
func NewManager(backend Backend, maxDepth int, logger *zap.Logger) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Manager{
		backend:  backend,
		logger:   logging.OrNop(logger),
		maxDepth: maxDepth,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Close closes the backend
func (m *Manager) Close() error {
	return m.backend.Close()
}

// EntityOption sets optional entity relations
type EntityOption func(*model.Entity)

// WithGeneratedBy records the activity that produced the entity
func WithGeneratedBy(activityID string) EntityOption {
	return func(e *model.Entity) { e.GeneratedBy = activityID }
}

// WithDerivedFrom records parent entities
func WithDerivedFrom(parentIDs ...string) EntityOption {
	return func(e *model.Entity) { e.DerivedFrom = append(e.DerivedFrom, parentIDs...) }
}

// WithAttributedTo records the responsible agent
func WithAttributedTo(agentID string) EntityOption {
	return func(e *model.Entity) { e.AttributedTo = agentID }
}

// TrackEntity stores an entity, replacing any entity with the same id
func (m *Manager) TrackEntity(ctx context.Context, id, entityType string, attrs map[string]any, opts ...EntityOption) (*model.Entity, error) {
	if id == "" {
		return nil, errors.New("track entity: empty id")
	}
	e := &model.Entity{
		ID:         id,
		Type:       entityType,
		Attributes: attrs,
		CreatedAt:  m.now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := m.put(ctx, KindEntity, id, e); err != nil {
		return nil, fmt.Errorf("track entity: %w", err)
	}
	m.logger.Debug("tracked entity",
		zap.String("entity_id", id),
		zap.String("type", entityType),
		zap.Strings("derived_from", e.DerivedFrom),
	)
	return e, nil
}

// ActivityOption sets optional activity fields
type ActivityOption func(*model.Activity)

// WithAssociatedWith records the agent that performed the activity
func WithAssociatedWith(agentID string) ActivityOption {
	return func(a *model.Activity) { a.AssociatedWith = agentID }
}

// WithActivityAttributes attaches free-form attributes
func WithActivityAttributes(attrs map[string]any) ActivityOption {
	return func(a *model.Activity) { a.Attributes = attrs }
}

// WithStartedAt overrides the start time; the end time stays "now"
func WithStartedAt(t time.Time) ActivityOption {
	return func(a *model.Activity) { a.StartedAt = t.UTC() }
}

// RecordActivity stores a new activity with a generated id
func (m *Manager) RecordActivity(ctx context.Context, activityType string, used, generated []string, opts ...ActivityOption) (*model.Activity, error) {
	now := m.now()
	a := &model.Activity{
		ID:        "activity:" + m.newID(),
		Type:      activityType,
		StartedAt: now,
		EndedAt:   now,
		Used:      used,
		Generated: generated,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := m.put(ctx, KindActivity, a.ID, a); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}
	return a, nil
}

// RegisterAgent stores an agent, replacing any agent with the same id
func (m *Manager) RegisterAgent(ctx context.Context, id, agentType, name string) (*model.Agent, error) {
	a := &model.Agent{ID: id, Type: agentType, Name: name}
	if err := m.put(ctx, KindAgent, id, a); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return a, nil
}

// GetEntity returns one entity
func (m *Manager) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	if err := m.get(ctx, KindEntity, id, &e); err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// GetActivity returns one activity
func (m *Manager) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	var a model.Activity
	if err := m.get(ctx, KindActivity, id, &a); err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}
	return &a, nil
}

// GetAgent returns one agent
func (m *Manager) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	if err := m.get(ctx, KindAgent, id, &a); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

// LineageRecord is an entity found during a lineage walk
type LineageRecord struct {
	Entity model.Entity `json:"entity"`
	Depth  int          `json:"depth"`
}

// GetLineage walks derived_from links breadth first, starting with the
// entity itself at depth 0. Parents that were never tracked are skipped and
// the walk stops silently at maxDepth. maxDepth < 0 uses the manager default.
func (m *Manager) GetLineage(ctx context.Context, id string, maxDepth int) ([]LineageRecord, error) {
	if maxDepth < 0 {
		maxDepth = m.maxDepth
	}

	root, err := m.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	lineage := []LineageRecord{{Entity: *root, Depth: 0}}
	visited := map[string]bool{id: true}

	for i := 0; i < len(lineage); i++ {
		current := lineage[i]
		if current.Depth >= maxDepth {
			continue
		}
		for _, parentID := range current.Entity.DerivedFrom {
			if visited[parentID] {
				continue
			}
			visited[parentID] = true

			parent, err := m.GetEntity(ctx, parentID)
			if errors.Is(err, ErrNotFound) {
				m.logger.Debug("lineage parent not tracked", zap.String("entity_id", parentID))
				continue
			}
			if err != nil {
				return nil, err
			}
			lineage = append(lineage, LineageRecord{Entity: *parent, Depth: current.Depth + 1})
		}
	}

	return lineage, nil
}

// GetActivitiesForEntity returns activities that used or generated the entity
func (m *Manager) GetActivitiesForEntity(ctx context.Context, id string) ([]model.Activity, error) {
	all, err := m.activities(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Activity
	for _, a := range all {
		if containsID(a.Used, id) || containsID(a.Generated, id) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetEntitiesByType returns all entities of a type, oldest first
func (m *Manager) GetEntitiesByType(ctx context.Context, entityType string) ([]model.Entity, error) {
	all, err := m.entities(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Entity
	for _, e := range all {
		if e.Type == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

// Summary counts stored records
type Summary struct {
	Entities       int            `json:"entities"`
	Activities     int            `json:"activities"`
	Agents         int            `json:"agents"`
	EntitiesByType map[string]int `json:"entities_by_type"`
}

// Summary returns record counts
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	entities, err := m.entities(ctx)
	if err != nil {
		return Summary{}, err
	}
	activities, err := m.backend.List(ctx, KindActivity)
	if err != nil {
		return Summary{}, fmt.Errorf("list activities: %w", err)
	}
	agents, err := m.backend.List(ctx, KindAgent)
	if err != nil {
		return Summary{}, fmt.Errorf("list agents: %w", err)
	}

	s := Summary{
		Entities:       len(entities),
		Activities:     len(activities),
		Agents:         len(agents),
		EntitiesByType: make(map[string]int),
	}
	for _, e := range entities {
		s.EntitiesByType[e.Type]++
	}
	return s, nil
}

func (m *Manager) entities(ctx context.Context) ([]model.Entity, error) {
	raw, err := m.backend.List(ctx, KindEntity)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	out := make([]model.Entity, 0, len(raw))
	for _, data := range raw {
		var e model.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Manager) activities(ctx context.Context) ([]model.Activity, error) {
	raw, err := m.backend.List(ctx, KindActivity)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out := make([]model.Activity, 0, len(raw))
	for _, data := range raw {
		var a model.Activity
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode activity: %w", err)
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Manager) put(ctx context.Context, kind Kind, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return m.backend.Put(ctx, kind, id, data)
}

func (m *Manager) get(ctx context.Context, kind Kind, id string, out any) error {
	data, err := m.backend.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
