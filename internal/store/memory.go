package store

import (
	"context"
	"sync"
	"time"

	"jobcoach/internal/types"
)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu           sync.RWMutex
	applications map[string]*types.Application
	narratives   map[string]*types.Narrative
	interviews   map[string]*types.Interview
	now          func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		applications: make(map[string]*types.Application),
		narratives:   make(map[string]*types.Narrative),
		interviews:   make(map[string]*types.Interview),
		now:          time.Now,
	}
}

func (m *Memory) GetApplication(_ context.Context, id string) (*types.Application, error) {
	return getRecord(m, m.applications, "application", id)
}

func (m *Memory) PutApplication(_ context.Context, app *types.Application) error {
	if app.ID == "" {
		return missingID("application")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&app.CreatedAt, &app.UpdatedAt, m.now())
	return putRecord(m.applications, app.ID, app)
}

func (m *Memory) GetNarrative(_ context.Context, id string) (*types.Narrative, error) {
	return getRecord(m, m.narratives, "narrative", id)
}

func (m *Memory) PutNarrative(_ context.Context, n *types.Narrative) error {
	if n.ID == "" {
		return missingID("narrative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.UpdatedAt = m.now().UTC()
	return putRecord(m.narratives, n.ID, n)
}

func (m *Memory) GetInterview(_ context.Context, id string) (*types.Interview, error) {
	return getRecord(m, m.interviews, "interview", id)
}

func (m *Memory) PutInterview(_ context.Context, iv *types.Interview) error {
	if iv.ID == "" {
		return missingID("interview")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&iv.CreatedAt, &iv.UpdatedAt, m.now())
	return putRecord(m.interviews, iv.ID, iv)
}

func (m *Memory) PatchInterview(_ context.Context, id string, patch types.InterviewPatch) (*types.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.interviews[id]
	if !ok {
		return nil, notFound("interview", id)
	}
	next, err := ApplyPatch(cur, patch, m.now())
	if err != nil {
		return nil, err
	}
	m.interviews[id] = next
	return clone(next)
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Driver:       DriverMemory,
		Applications: len(m.applications),
		Narratives:   len(m.narratives),
		Interviews:   len(m.interviews),
	}, nil
}

func (m *Memory) Close() error { return nil }

func getRecord[T any](m *Memory, records map[string]*T, kind, id string) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := records[id]
	if !ok {
		return nil, notFound(kind, id)
	}
	return clone(rec)
}

func putRecord[T any](records map[string]*T, id string, rec *T) error {
	cp, err := clone(rec)
	if err != nil {
		return storageErr("failed to store record", err)
	}
	records[id] = cp
	return nil
}
