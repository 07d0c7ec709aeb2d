package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestManager(t *testing.T) {
	h := newHarness()
	m := NewManager(h.cache, DefaultConfig(), nil, nil)

	a := m.Create()
	b := m.Create()
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Errorf("session id %q is not a UUID: %v", a.ID(), err)
	}
	if a.ID() == b.ID() {
		t.Error("two sessions share an id")
	}
	if got, ok := m.Get(a.ID()); !ok || got != a {
		t.Error("Get() did not return the created session")
	}
	if len(m.List()) != 2 {
		t.Errorf("List() has %d entries, want 2", len(m.List()))
	}

	if !m.Remove(a.ID()) {
		t.Error("Remove() = false for existing session")
	}
	if m.Remove(a.ID()) {
		t.Error("Remove() = true for removed session")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_SharedCacheRunsOnce(t *testing.T) {
	h := newHarness()
	m := NewManager(h.cache, DefaultConfig(), nil, nil)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Create()
			if _, err := s.Run(context.Background(), map[string]any{"stack-cell_number": 3}); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := h.calls.Load(); got != 1 {
		t.Errorf("simulation ran %d times across sessions, want 1", got)
	}
}

func TestManager_RemoveIdle(t *testing.T) {
	m := NewManager(newHarness().cache, DefaultConfig(), nil, nil)
	old := m.Create()
	old.mu.Lock()
	old.updatedAt = time.Now().Add(-time.Hour)
	old.mu.Unlock()
	fresh := m.Create()

	if n := m.RemoveIdle(10 * time.Minute); n != 1 {
		t.Errorf("RemoveIdle() = %d, want 1", n)
	}
	if _, ok := m.Get(old.ID()); ok {
		t.Error("idle session still present")
	}
	if _, ok := m.Get(fresh.ID()); !ok {
		t.Error("fresh session removed")
	}
}

func TestManager_CustomIDs(t *testing.T) {
	m := NewManager(newHarness().cache, DefaultConfig(), nil, nil)
	n := 0
	m.newID = func() string {
		n++
		return "s" + string(rune('0'+n))
	}
	m.Create()
	m.Create()

	list := m.List()
	if len(list) != 2 || list[0].ID != "s1" || list[1].ID != "s2" {
		t.Errorf("List() = %+v, want s1 then s2", list)
	}
}
