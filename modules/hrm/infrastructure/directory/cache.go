package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "scope_cache",
		Name:      "requests_total",
		Help:      "Scope directory cache lookups broken down by level and hit/miss.",
	}, []string{"level", "result"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "scope_cache",
		Name:      "errors_total",
		Help:      "Scope directory cache backend errors broken down by operation.",
	}, []string{"op"})
)

// Source is the set of scope directory reads.
type Source interface {
	Segments(ctx context.Context) ([]orglevel.OptionRecord, error)
	SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error)
	Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error)
	Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error)
}

// Store holds option lists by key.
type Store interface {
	Get(ctx context.Context, key string) ([]orglevel.OptionRecord, bool, error)
	Set(ctx context.Context, key string, options []orglevel.OptionRecord, ttl time.Duration) error
}

// CachedDirectory serves repeated reads for the same parent from a Store.
// Store failures degrade to a direct read.
type CachedDirectory struct {
	next  Source
	store Store
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCachedDirectory(next Source, store Store, ttl time.Duration, log *logrus.Logger) *CachedDirectory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedDirectory{
		next:  next,
		store: store,
		ttl:   ttl,
		log:   log.WithField("component", "scope-cache"),
	}
}

func cacheKey(level orglevel.Level, parent *int64) string {
	if parent == nil {
		return "hrm:scope:" + level.Key()
	}
	return fmt.Sprintf("hrm:scope:%s:%d", level.Key(), *parent)
}

func (d *CachedDirectory) cached(
	ctx context.Context,
	level orglevel.Level,
	parent *int64,
	load func(context.Context) ([]orglevel.OptionRecord, error),
) ([]orglevel.OptionRecord, error) {
	key := cacheKey(level, parent)
	opts, ok, err := d.store.Get(ctx, key)
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		d.log.WithError(err).WithField("key", key).Warn("scope cache get failed")
	}
	if ok {
		cacheRequests.WithLabelValues(level.Key(), "hit").Inc()
		return opts, nil
	}
	cacheRequests.WithLabelValues(level.Key(), "miss").Inc()

	opts, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.store.Set(ctx, key, opts, d.ttl); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		d.log.WithError(err).WithField("key", key).Warn("scope cache set failed")
	}
	return opts, nil
}

func (d *CachedDirectory) Segments(ctx context.Context) ([]orglevel.OptionRecord, error) {
	return d.cached(ctx, orglevel.Segment, nil, d.next.Segments)
}

func (d *CachedDirectory) SubSegments(ctx context.Context, segmentID int64) ([]orglevel.OptionRecord, error) {
	return d.cached(ctx, orglevel.SubSegment, &segmentID, func(ctx context.Context) ([]orglevel.OptionRecord, error) {
		return d.next.SubSegments(ctx, segmentID)
	})
}

func (d *CachedDirectory) Projects(ctx context.Context, subSegmentID int64) ([]orglevel.OptionRecord, error) {
	return d.cached(ctx, orglevel.Project, &subSegmentID, func(ctx context.Context) ([]orglevel.OptionRecord, error) {
		return d.next.Projects(ctx, subSegmentID)
	})
}

func (d *CachedDirectory) Teams(ctx context.Context, projectID int64) ([]orglevel.OptionRecord, error) {
	return d.cached(ctx, orglevel.Team, &projectID, func(ctx context.Context) ([]orglevel.OptionRecord, error) {
		return d.next.Teams(ctx, projectID)
	})
}

type memoryEntry struct {
	options   []orglevel.OptionRecord
	expiresAt time.Time
}

// MemoryStore is a process-local Store with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]orglevel.OptionRecord, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return orglevel.CloneOptions(e.options), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, options []orglevel.OptionRecord, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	e := memoryEntry{options: orglevel.CloneOptions(options)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Invalidate drops every cached entry.
func (s *MemoryStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
}

// RedisStore keeps option lists as JSON strings with a TTL.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client, prefix: "competency-hub:v1"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]orglevel.OptionRecord, bool, error) {
	result, err := s.redis.Get(ctx, s.prefix+":"+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []orglevel.OptionRecord
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, options []orglevel.OptionRecord, ttl time.Duration) error {
	if options == nil {
		options = []orglevel.OptionRecord{}
	}
	payload, err := json.Marshal(options)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.prefix+":"+key, payload, ttl).Err()
}
