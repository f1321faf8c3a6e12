package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// maximum number of concurrent SETs when caching an import
const importCacheConcurrency = 8

// number of per-id locks; ids share a lock when equal modulo lockStripes
const lockStripes = 64

type cache struct {
	redis.UniversalClient
}

func newCache(conn redis.UniversalClient) *cache {
	return &cache{
		conn,
	}
}

func (c *cache) get(ctx context.Context, key string, value interface{}) error {
	str, err := c.Get(ctx, key).Result()
	if err != nil {
		// returns err redis.Nil if key does not exist
		return err
	}

	return json.Unmarshal([]byte(str), value)
}

func (c *cache) set(ctx context.Context, key string, value interface{}, expiration int) error {
	str, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, str, time.Duration(expiration)*time.Second).Err()
}

/*
	cachedStorage is a read-through cache in front of another Storage. Single leads are cached by id:
	they're set on insert, update & select (on a miss) and deleted on delete.

	Lists (GetAll & Search) always go to the underlying storage; every write would invalidate them anyway.

	The cache is never the source of truth so a cache error is logged and then ignored: the call
	falls through to the underlying storage.

	A storage call and the cache write that follows it happen under the lock of that id, so a Get
	that missed can't put back a lead a concurrent Delete just removed. Create & Import don't know
	their ids up front and take batch for writing instead
*/
type cachedStorage struct {
	next  Storage
	cache *cache

	keyPrefix string // e.g. `service:leads|leads`
	ttl       int

	batch   sync.RWMutex
	stripes [lockStripes]sync.Mutex

	log *logger
}

func newCachedStorage(next Storage, conn redis.UniversalClient, serviceName string, ttl int, l *logger) *cachedStorage {
	return &cachedStorage{
		next:      next,
		cache:     newCache(conn),
		keyPrefix: fmt.Sprintf("service:%s|leads", serviceName),
		ttl:       ttl,
		log:       l.WithField("cache", "redis"),
	}
}

// keyName returns the cache key for a lead e.g. `service:leads|leads|id=1273`
func (s *cachedStorage) keyName(id int64) string {
	return fmt.Sprintf("%s|id=%v", s.keyPrefix, id)
}

// lock takes the lock of id and returns its unlock
func (s *cachedStorage) lock(id int64) func() {
	s.batch.RLock()
	m := &s.stripes[uint64(id)%lockStripes]
	m.Lock()

	return func() {
		m.Unlock()
		s.batch.RUnlock()
	}
}

func (s *cachedStorage) GetAll(ctx context.Context) ([]*Lead, error) {
	return s.next.GetAll(ctx)
}

func (s *cachedStorage) Search(ctx context.Context, f Filter) ([]*Lead, error) {
	return s.next.Search(ctx, f)
}

func (s *cachedStorage) Get(ctx context.Context, id int64) (*Lead, bool, error) {
	keyName := s.keyName(id)

	l := &Lead{}
	err := s.cache.get(ctx, keyName, l)
	if err == nil {
		s.log.debug(ctx, "found %s in cache", keyName)
		return l, true, nil
	}

	// check to see if there's a real error
	if err != redis.Nil {
		s.log.warn(ctx, err, "cache get %s", keyName)
	}

	unlock := s.lock(id)
	defer unlock()

	l, ok, err := s.next.Get(ctx, id)
	if err != nil || !ok {
		return l, ok, err
	}

	s.store(ctx, l)
	return l, true, nil
}

func (s *cachedStorage) Create(ctx context.Context, in Input) (*Lead, error) {
	s.batch.Lock()
	defer s.batch.Unlock()

	l, err := s.next.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	s.store(ctx, l)
	return l, nil
}

func (s *cachedStorage) Update(ctx context.Context, id int64, p Patch) (*Lead, bool, error) {
	unlock := s.lock(id)
	defer unlock()

	l, ok, err := s.next.Update(ctx, id, p)
	if err != nil {
		// we don't know what the storage ended up with so don't keep a possibly stale copy around
		s.evict(ctx, id)
		return nil, false, err
	}
	if !ok {
		s.evict(ctx, id)
		return nil, false, nil
	}

	s.store(ctx, l)
	return l, true, nil
}

func (s *cachedStorage) Delete(ctx context.Context, id int64) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	ok, err := s.next.Delete(ctx, id)

	// deleting the key is never the wrong move
	s.evict(ctx, id)
	return ok, err
}

func (s *cachedStorage) Import(ctx context.Context, ins []Input) ([]*Lead, error) {
	s.batch.Lock()
	defer s.batch.Unlock()

	res, err := s.next.Import(ctx, ins)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importCacheConcurrency)
	for _, l := range res {
		l := l
		g.Go(func() error {
			return s.cache.set(gctx, s.keyName(l.ID), l, s.ttl)
		})
	}
	if err := g.Wait(); err != nil {
		s.log.warn(ctx, err, "caching %d imported leads", len(res))
	}

	return res, nil
}

func (s *cachedStorage) store(ctx context.Context, l *Lead) {
	keyName := s.keyName(l.ID)
	if err := s.cache.set(ctx, keyName, l, s.ttl); err != nil {
		s.log.warn(ctx, err, "cache set %s", keyName)
		return
	}
	s.log.debug(ctx, "cached %s", keyName)
}

func (s *cachedStorage) evict(ctx context.Context, id int64) {
	keyName := s.keyName(id)
	if err := s.cache.Del(ctx, keyName).Err(); err != nil {
		s.log.warn(ctx, err, "cache del %s", keyName)
	}
}
