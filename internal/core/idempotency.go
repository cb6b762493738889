package core

import "container/list"

// IdempotencyChecker deduplicates instruction and callback deliveries in
// two tiers: a bounded in-memory LRU over composite keys (hot path) and
// an optional lookup against the durable event log (cold path). A tier-2
// hit is cached so redeliveries of old events stop touching Postgres.
type IdempotencyChecker struct {
	lru   *dedupLRU
	db    DBIdempotencyChecker
	stats DedupStats
}

// DBIdempotencyChecker answers whether an event already exists in the
// durable event log. Implemented by the persistence layer.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// DedupStats counts duplicate deliveries by tier. Mutated only from the
// single-threaded core loop.
type DedupStats struct {
	LRUHits  int64
	DBHits   int64
	DBErrors int64
}

func NewIdempotencyChecker(capacity int, db DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru: newDedupLRU(capacity),
		db:  db,
	}
}

// IsDuplicate reports whether the event was already processed. A tier-2
// lookup error is treated as "not a duplicate" so a Postgres outage
// degrades dedup instead of halting the ingest loop; the unique index on
// the event log still rejects the replayed row at persist time.
func (ic *IdempotencyChecker) IsDuplicate(eventType string, idempotencyKey string) bool {
	key := eventType + ":" + idempotencyKey

	if ic.lru.touch(key) {
		ic.stats.LRUHits++
		return true
	}

	if ic.db == nil {
		return false
	}
	dup, err := ic.db.IsDuplicate(eventType, idempotencyKey)
	if err != nil {
		ic.stats.DBErrors++
		return false
	}
	if dup {
		ic.stats.DBHits++
		ic.lru.add(key)
		return true
	}
	return false
}

// MarkProcessed records the event's composite key after it has been
// applied to state.
func (ic *IdempotencyChecker) MarkProcessed(eventType string, idempotencyKey string) {
	ic.lru.add(eventType + ":" + idempotencyKey)
}

// WarmLRU preloads composite keys recovered from the event log on
// restart, so recently processed events dedup without a DB round trip.
func (ic *IdempotencyChecker) WarmLRU(keys []string) {
	for _, key := range keys {
		ic.lru.add(key)
	}
}

// Stats returns a copy of the dedup counters.
func (ic *IdempotencyChecker) Stats() DedupStats {
	return ic.stats
}

// dedupLRU is a plain map + intrusive list LRU. Not safe for concurrent
// use; the core loop is its only caller.
type dedupLRU struct {
	capacity  int
	index     map[string]*list.Element
	order     *list.List // front = most recent, values are string keys
	evictions int64
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// touch reports whether key is cached, promoting it on a hit.
func (c *dedupLRU) touch(key string) bool {
	elem, ok := c.index[key]
	if !ok {
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

func (c *dedupLRU) add(key string) {
	if elem, ok := c.index[key]; ok {
		c.order.MoveToFront(elem)
		return
	}
	c.index[key] = c.order.PushFront(key)
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
		c.evictions++
	}
}
