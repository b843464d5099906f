// Package monitor counts recent admission conflicts for the contention report.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report is the read-only contention snapshot exposed to operators.
type Report struct {
	Window      string           `json:"window"`
	Total       int64            `json:"total"`
	ByReason    map[string]int64 `json:"by_reason"`
	ByRoom      map[string]int64 `json:"by_room"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// TopRooms returns up to n room ids ordered by conflict count.
func (r Report) TopRooms(n int) []string {
	rooms := make([]string, 0, len(r.ByRoom))
	for id := range r.ByRoom {
		rooms = append(rooms, id)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if r.ByRoom[rooms[i]] == r.ByRoom[rooms[j]] {
			return rooms[i] < rooms[j]
		}
		return r.ByRoom[rooms[i]] > r.ByRoom[rooms[j]]
	})
	if n > 0 && len(rooms) > n {
		rooms = rooms[:n]
	}
	return rooms
}

type Monitor interface {
	RecordConflict(ctx context.Context, roomID uuid.UUID, reason string)
	Report(ctx context.Context, window time.Duration) (Report, error)
}

// retention is how long conflicts are kept; reports cannot look further back.
const retention = 25 * time.Hour

func newReport(window time.Duration, now time.Time) Report {
	return Report{
		Window:      window.String(),
		ByReason:    map[string]int64{},
		ByRoom:      map[string]int64{},
		GeneratedAt: now,
	}
}

type conflict struct {
	at     time.Time
	roomID uuid.UUID
	reason string
}

// Memory keeps conflicts in process.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	conflicts []conflict
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now}
}

func (m *Memory) RecordConflict(ctx context.Context, roomID uuid.UUID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-retention)
	kept := m.conflicts[:0]
	for _, c := range m.conflicts {
		if c.at.After(cutoff) {
			kept = append(kept, c)
		}
	}
	m.conflicts = append(kept, conflict{at: now, roomID: roomID, reason: reason})
}

func (m *Memory) Report(ctx context.Context, window time.Duration) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	r := newReport(window, now)
	since := now.Add(-window)
	for _, c := range m.conflicts {
		if c.at.Before(since) {
			continue
		}
		r.Total++
		r.ByReason[c.reason]++
		r.ByRoom[c.roomID.String()]++
	}
	return r, nil
}
