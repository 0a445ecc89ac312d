package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

// DefaultTTL is how long a fetched collection is served from cache.
const DefaultTTL = 5 * time.Minute

// Entry is a snapshot of one user's task collection
type Entry struct {
	Tasks      []models.Task `json:"tasks"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Valid reports whether the entry is still inside the ttl window at now.
func (e *Entry) Valid(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.CapturedAt) < ttl
}

// Cache stores collection snapshots keyed by user. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (*Entry, error)
	Put(ctx context.Context, userID uuid.UUID, entry Entry) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// MemoryCache is a Cache held in process memory
type MemoryCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uuid.UUID]Entry)}
}

// Get returns a copy of the stored entry.
func (c *MemoryCache) Get(_ context.Context, userID uuid.UUID) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	return &Entry{Tasks: cloneTasks(e.Tasks), CapturedAt: e.CapturedAt}, nil
}

func (c *MemoryCache) Put(_ context.Context, userID uuid.UUID, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = Entry{Tasks: cloneTasks(entry.Tasks), CapturedAt: entry.CapturedAt}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	return nil
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	return out
}
