package directory

import (
	"context"
	"sync"

	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
)

type presence struct {
	instance string
	level    priority.Level
}

// Memory is an in-process presence table. A single Memory can back several
// instances running in one process (tests, single-node deployments); each
// instance talks to it through its own View.
type Memory struct {
	mu       sync.RWMutex
	presence map[user.ID]presence
	known    map[user.ID]struct{}
}

// NewMemory returns an empty presence table.
func NewMemory() *Memory {
	return &Memory{
		presence: make(map[user.ID]presence),
		known:    make(map[user.ID]struct{}),
	}
}

// Register marks id as known without connecting it.
func (m *Memory) Register(id user.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[id] = struct{}{}
}

// View returns the Directory and Tracker seen by instance.
func (m *Memory) View(instance string) *View {
	return &View{table: m, instance: instance}
}

// View is one instance's window onto a Memory table.
type View struct {
	table    *Memory
	instance string
}

var (
	_ Directory = (*View)(nil)
	_ Tracker   = (*View)(nil)
)

func (v *View) Locate(_ context.Context, id user.ID) (Location, error) {
	v.table.mu.RLock()
	defer v.table.mu.RUnlock()

	p, ok := v.table.presence[id]
	switch {
	case !ok:
		return Location{Kind: Offline}, nil
	case p.instance == v.instance:
		return Location{Kind: Local, Instance: p.instance, Priority: p.level}, nil
	default:
		return Location{Kind: Remote, Instance: p.instance, Priority: p.level}, nil
	}
}

func (v *View) Exists(_ context.Context, id user.ID) (bool, error) {
	v.table.mu.RLock()
	defer v.table.mu.RUnlock()
	_, ok := v.table.known[id]
	return ok, nil
}

// Connect records id as connected to this view's instance, replacing any other instance.
func (v *View) Connect(_ context.Context, id user.ID, level priority.Level) error {
	v.table.mu.Lock()
	defer v.table.mu.Unlock()
	v.table.presence[id] = presence{instance: v.instance, level: level}
	v.table.known[id] = struct{}{}
	return nil
}

// Disconnect clears id's presence if it is still held by this view's instance.
func (v *View) Disconnect(_ context.Context, id user.ID) error {
	v.table.mu.Lock()
	defer v.table.mu.Unlock()
	if v.table.presence[id].instance == v.instance {
		delete(v.table.presence, id)
	}
	return nil
}
