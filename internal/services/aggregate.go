package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ideabox/internal/models"
	"ideabox/internal/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// AggregateCache stores per-idea vote totals. Every entry is tagged with the
// generation current when the read began; Invalidate bumps the generation, so a
// reader that raced a vote can never store totals that predate it.
type AggregateCache interface {
	// Get returns the cached totals, or ok=false and the generation to pass to Set.
	Get(ctx context.Context, ideaID uint) (totals models.VoteTotals, gen uint64, ok bool, err error)
	Set(ctx context.Context, ideaID uint, gen uint64, totals models.VoteTotals) error
	Invalidate(ctx context.Context, ideaIDs ...uint) error
}

type genTotals struct {
	gen    uint64
	totals models.VoteTotals
}

// LocalAggregateCache 进程内实现, 只适合单实例部署.
// Generations live in their own bounded LRU; when one is evicted its value
// raises floor, which then stands in for every idea without a generation. A
// reader holding a generation from before the eviction can therefore never
// match again.
type LocalAggregateCache struct {
	mu      sync.Mutex
	seq     uint64
	floor   uint64
	gens    *lru.Cache[uint, uint64]
	entries *utils.TTLCache[uint, genTotals]
}

func NewLocalAggregateCache(size int, ttl time.Duration) (*LocalAggregateCache, error) {
	entries, err := utils.NewTTLCache[uint, genTotals](size, ttl)
	if err != nil {
		return nil, err
	}
	c := &LocalAggregateCache{entries: entries}
	// 回调在持有 c.mu 时触发
	c.gens, err = lru.NewWithEvict[uint, uint64](size*4, func(_ uint, gen uint64) {
		if gen > c.floor {
			c.floor = gen
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *LocalAggregateCache) current(ideaID uint) uint64 {
	if gen, ok := c.gens.Get(ideaID); ok {
		return gen
	}
	return c.floor
}

func (c *LocalAggregateCache) Get(_ context.Context, ideaID uint) (models.VoteTotals, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.current(ideaID)
	if e, ok := c.entries.Get(ideaID); ok && e.gen == gen {
		return e.totals, gen, true, nil
	}
	return models.VoteTotals{}, gen, false, nil
}

func (c *LocalAggregateCache) Set(_ context.Context, ideaID uint, gen uint64, totals models.VoteTotals) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current(ideaID) != gen {
		return nil
	}
	c.entries.Set(ideaID, genTotals{gen: gen, totals: totals})
	return nil
}

func (c *LocalAggregateCache) Invalidate(_ context.Context, ideaIDs ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ideaIDs {
		c.seq++
		c.gens.Add(id, c.seq)
		c.entries.Delete(id)
	}
	return nil
}

// RedisAggregateCache shares totals between API instances.
// agg:gen:{id} holds the generation and agg:{id}:{gen} the totals, so a stale Set
// lands on a key nobody reads again and simply expires.
type RedisAggregateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAggregateCache(client *redis.Client, ttl time.Duration) *RedisAggregateCache {
	return &RedisAggregateCache{client: client, ttl: ttl}
}

func genKey(ideaID uint) string {
	return fmt.Sprintf("agg:gen:%d", ideaID)
}

func totalsKey(ideaID uint, gen uint64) string {
	return fmt.Sprintf("agg:%d:%d", ideaID, gen)
}

func (c *RedisAggregateCache) Get(ctx context.Context, ideaID uint) (models.VoteTotals, uint64, bool, error) {
	gen, err := c.client.Get(ctx, genKey(ideaID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.VoteTotals{}, 0, false, fmt.Errorf("read aggregate generation: %w", err)
	}

	data, err := c.client.Get(ctx, totalsKey(ideaID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.VoteTotals{}, gen, false, nil
	}
	if err != nil {
		return models.VoteTotals{}, gen, false, fmt.Errorf("read aggregate: %w", err)
	}

	var totals models.VoteTotals
	if err := json.Unmarshal(data, &totals); err != nil {
		return models.VoteTotals{}, gen, false, nil
	}
	return totals, gen, true, nil
}

func (c *RedisAggregateCache) Set(ctx context.Context, ideaID uint, gen uint64, totals models.VoteTotals) error {
	data, err := json.Marshal(totals)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, totalsKey(ideaID, gen), data, c.ttl).Err()
}

func (c *RedisAggregateCache) Invalidate(ctx context.Context, ideaIDs ...uint) error {
	if len(ideaIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, id := range ideaIDs {
		pipe.Incr(ctx, genKey(id))
		if c.ttl > 0 {
			// generation 比它保护的计票结果活得更久
			pipe.Expire(ctx, genKey(id), 2*c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate aggregate: %w", err)
	}
	return nil
}

// TotalsFunc computes fresh totals from the database.
type TotalsFunc func(ctx context.Context, ideaID uint) (models.VoteTotals, error)

// AggregateBroker is the single source of vote totals for every reader: the
// aggregate endpoint, idea cards, the workflow sidebar and live subscribers.
// Mutations call Invalidate; a background worker then pushes the new totals to
// subscribers of the touched ideas.
type AggregateBroker struct {
	cache   AggregateCache
	compute TotalsFunc

	subMu sync.RWMutex
	subs  map[uint]map[chan models.VoteTotals]struct{}

	queue   chan uint // 待推送的想法 ID 队列
	pending map[uint]bool
	// 缓存失效失败的想法: 本实例绕过缓存直读数据库, Run 定期重试失效
	stale map[uint]uint64
	mu    sync.Mutex
}

func NewAggregateBroker(cache AggregateCache) *AggregateBroker {
	return &AggregateBroker{
		cache:   cache,
		subs:    make(map[uint]map[chan models.VoteTotals]struct{}),
		queue:   make(chan uint, 1000), // 缓冲队列，防止阻塞
		pending: make(map[uint]bool),
		stale:   make(map[uint]uint64),
	}
}

// SetSource wires the function used on cache misses. VoteService installs itself.
func (b *AggregateBroker) SetSource(fn TotalsFunc) {
	b.compute = fn
}

// Totals returns the cached totals or computes and caches them.
// A cache failure falls through to the database rather than failing the read.
func (b *AggregateBroker) Totals(ctx context.Context, ideaID uint) (models.VoteTotals, error) {
	if b.isStale(ideaID) {
		return b.compute(ctx, ideaID)
	}

	totals, gen, ok, err := b.cache.Get(ctx, ideaID)
	if err != nil {
		log.Printf("aggregate cache read for idea %d failed: %v", ideaID, err)
	} else if ok {
		return totals, nil
	}

	totals, err = b.compute(ctx, ideaID)
	if err != nil {
		return models.VoteTotals{}, err
	}
	if err := b.cache.Set(ctx, ideaID, gen, totals); err != nil {
		log.Printf("aggregate cache write for idea %d failed: %v", ideaID, err)
	}
	return totals, nil
}

// Invalidate drops cached totals synchronously and schedules a push to subscribers.
// When the cache cannot be invalidated the ideas are read from the database until
// a retry from Run succeeds, so a committed write is never hidden by old totals.
func (b *AggregateBroker) Invalidate(ctx context.Context, ideaIDs ...uint) error {
	err := b.cache.Invalidate(ctx, ideaIDs...)
	if err != nil {
		b.mu.Lock()
		for _, id := range ideaIDs {
			b.stale[id]++
		}
		b.mu.Unlock()
	}
	for _, id := range ideaIDs {
		b.schedule(id)
	}
	return err
}

func (b *AggregateBroker) isStale(ideaID uint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stale[ideaID] > 0
}

// retryStale re-runs failed invalidations. An idea stays stale if it failed again
// while the retry was in flight.
func (b *AggregateBroker) retryStale(ctx context.Context) {
	b.mu.Lock()
	if len(b.stale) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make(map[uint]uint64, len(b.stale))
	ids := make([]uint, 0, len(b.stale))
	for id, n := range b.stale {
		snapshot[id] = n
		ids = append(ids, id)
	}
	b.mu.Unlock()

	if err := b.cache.Invalidate(ctx, ids...); err != nil {
		log.Printf("retry aggregate invalidation for %d ideas: %v", len(ids), err)
		return
	}

	b.mu.Lock()
	for id, n := range snapshot {
		if b.stale[id] == n {
			delete(b.stale, id)
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a listener for one idea. The channel holds only the latest
// totals; a slow reader skips intermediate values. Call cancel to unsubscribe.
func (b *AggregateBroker) Subscribe(ideaID uint) (<-chan models.VoteTotals, func()) {
	ch := make(chan models.VoteTotals, 1)

	b.subMu.Lock()
	if b.subs[ideaID] == nil {
		b.subs[ideaID] = make(map[chan models.VoteTotals]struct{})
	}
	b.subs[ideaID][ch] = struct{}{}
	b.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs[ideaID], ch)
			if len(b.subs[ideaID]) == 0 {
				delete(b.subs, ideaID)
			}
			b.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *AggregateBroker) hasSubscribers(ideaID uint) bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subs[ideaID]) > 0
}

// schedule 去重后加入推送队列（非阻塞）
func (b *AggregateBroker) schedule(ideaID uint) {
	if !b.hasSubscribers(ideaID) {
		return
	}

	b.mu.Lock()
	if b.pending[ideaID] {
		b.mu.Unlock()
		return
	}
	b.pending[ideaID] = true
	b.mu.Unlock()

	select {
	case b.queue <- ideaID:
	default:
		b.mu.Lock()
		delete(b.pending, ideaID)
		b.mu.Unlock()
		log.Printf("aggregate publish queue full, skipping idea %d", ideaID)
	}
}

// Run processes the publish queue until ctx is done.
func (b *AggregateBroker) Run(ctx context.Context) {
	batch := make([]uint, 0, 50)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-b.queue:
			batch = append(batch, id)
			if len(batch) >= 50 {
				b.publishBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			b.retryStale(ctx)
			if len(batch) > 0 {
				b.publishBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (b *AggregateBroker) publishBatch(ctx context.Context, ideaIDs []uint) {
	for _, id := range ideaIDs {
		// 先清除 pending, 推送期间到达的新投票会再次入队
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()

		totals, err := b.Totals(ctx, id)
		if err != nil {
			log.Printf("aggregate publish for idea %d failed: %v", id, err)
			continue
		}
		b.publish(id, totals)
	}
}

func (b *AggregateBroker) publish(ideaID uint, totals models.VoteTotals) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for ch := range b.subs[ideaID] {
		select {
		case ch <- totals:
		default:
			// 丢弃旧值, 只保留最新
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- totals:
			default:
			}
		}
	}
}
