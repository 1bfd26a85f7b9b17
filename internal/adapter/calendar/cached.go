package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"secretary-ai/internal/domain"
)

// busyIntervalCost approximates the memory held by one cached interval.
const busyIntervalCost = 64

// CachingConnector wraps a CalendarConnector and caches BusyIntervals results
// per user and time range. Creating an event invalidates that user's entries.
type CachingConnector struct {
	inner domain.CalendarConnector
	ttl   time.Duration
	cache *ristretto.Cache[string, []domain.BusyInterval]

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachingConnector wraps inner with a busy-interval cache bounded by
// maxCost (approximate bytes). A non-positive ttl returns inner unchanged.
func NewCachingConnector(inner domain.CalendarConnector, ttl time.Duration, maxCost int64) (domain.CalendarConnector, error) {
	if ttl <= 0 {
		return inner, nil
	}
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []domain.BusyInterval]{
		NumCounters: maxCost / busyIntervalCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("busy cache: %w", err)
	}
	return &CachingConnector{
		inner:       inner,
		ttl:         ttl,
		cache:       cache,
		generations: make(map[string]uint64),
	}, nil
}

// Connect implements domain.CalendarConnector.
func (c *CachingConnector) Connect(ctx context.Context, creds *domain.CalendarCredentials) (domain.CalendarProvider, error) {
	p, err := c.inner.Connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	return &cachedCalendar{inner: p, userID: creds.UserID, parent: c}, nil
}

// Close releases the cache.
func (c *CachingConnector) Close() {
	c.cache.Close()
}

func (c *CachingConnector) generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// invalidate orphans every entry cached for userID.
func (c *CachingConnector) invalidate(userID string) {
	c.mu.Lock()
	c.generations[userID]++
	c.mu.Unlock()
}

func (c *CachingConnector) key(userID string, timeMin, timeMax time.Time) string {
	return fmt.Sprintf("%s|%d|%d|%d", userID, c.generation(userID), timeMin.UnixNano(), timeMax.UnixNano())
}

type cachedCalendar struct {
	inner  domain.CalendarProvider
	userID string
	parent *CachingConnector
}

func (c *cachedCalendar) BusyIntervals(ctx context.Context, timeMin, timeMax time.Time) ([]domain.BusyInterval, error) {
	key := c.parent.key(c.userID, timeMin, timeMax)
	if busy, ok := c.parent.cache.Get(key); ok {
		return append([]domain.BusyInterval(nil), busy...), nil
	}

	busy, err := c.inner.BusyIntervals(ctx, timeMin, timeMax)
	if err != nil {
		return nil, err
	}
	cost := int64(len(busy)+1) * busyIntervalCost
	c.parent.cache.SetWithTTL(key, append([]domain.BusyInterval(nil), busy...), cost, c.parent.ttl)
	c.parent.cache.Wait()
	return busy, nil
}

func (c *cachedCalendar) CreateEvent(ctx context.Context, details domain.EventDetails) (*domain.CreatedEvent, error) {
	ev, err := c.inner.CreateEvent(ctx, details)
	if err != nil {
		return nil, err
	}
	c.parent.invalidate(c.userID)
	return ev, nil
}

func (c *cachedCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]domain.CalendarEvent, error) {
	return c.inner.ListEvents(ctx, timeMin, timeMax, maxResults)
}
