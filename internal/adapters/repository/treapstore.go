package repository

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/pkg/metrics"
)

// Treap-backed, in-memory ScoreStore.
//
// One treap per leaderboard key. Ordering: score DESC, then member id ASC,
// so in-order traversal yields the leaderboard best to worst. Subtree sizes
// make rank and windowed range queries O(log n).
//
// Expiry is per key, refreshed on every upsert. Reads treat an expired board
// as absent; a janitor goroutine reclaims the memory.

// scoreScale controls fixed-point scaling from float64. Fixed point keeps
// score comparisons exact under repeated delete/insert cycles.
const scoreScale = 1_000_000_000 // 9 decimal places

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * scoreScale
	if scaled > float64(math.MaxInt64) {
		return scoreFP(math.MaxInt64)
	}
	if scaled < float64(math.MinInt64) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(scaled))
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

// treap node
type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aID) ranks before (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore // higher score ranks earlier
	}
	return aID < bID // tie-breaker by member id asc
}

// idPriority derives a deterministic treap priority from the member id, so
// rebuilds produce an identical structure regardless of insertion order.
func idPriority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: idPriority(id), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = remove(n.left, id, score)
	} else {
		n.right = remove(n.right, id, score)
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of (id, score), or 0 if absent.
func rankOf(n *node, id string, score scoreFP) int {
	before := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return before + nsize(n.left) + 1
		case less(score, id, n.score, n.id):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// board holds one leaderboard key's sorted structure.
type board struct {
	root      *node
	byID      map[string]scoreFP
	expiresAt time.Time
}

// rangeEntries collects up to limit entries starting at offset in rank
// order, skipping whole subtrees via size counts.
func (b *board) rangeEntries(offset, limit int) []MemberScore {
	out := make([]MemberScore, 0, limit)
	var rec func(n *node, skip int)
	rec = func(n *node, skip int) {
		if n == nil || len(out) >= limit {
			return
		}
		l := nsize(n.left)
		if skip > l {
			rec(n.right, skip-l-1)
			return
		}
		rec(n.left, skip)
		if len(out) >= limit {
			return
		}
		out = append(out, MemberScore{MemberID: n.id, Score: toFloat(n.score)})
		rec(n.right, 0)
	}
	rec(b.root, offset)
	return out
}

// Default store configuration.
const (
	defaultTTL             = 10 * time.Minute
	defaultJanitorInterval = time.Minute
)

// TreapStore implements ScoreStore in process memory.
type TreapStore struct {
	mu     sync.RWMutex
	boards map[string]*board
	closed bool

	ttl             time.Duration
	janitorInterval time.Duration
	now             func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a store and starts its expiry janitor.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:          make(map[string]*board),
		ttl:             defaultTTL,
		janitorInterval: defaultJanitorInterval,
		now:             time.Now,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startJanitor(ctx)
	return s
}

// startJanitor sweeps expired boards in the background.
func (s *TreapStore) startJanitor(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *TreapStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for k, b := range s.boards {
		if now.After(b.expiresAt) {
			delete(s.boards, k)
		}
	}
	metrics.UpdateCachedBoards(len(s.boards))
	s.mu.Unlock()
}

// Close stops the janitor and marks the store unavailable.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopChan)
	s.wg.Wait()
	return nil
}

// Ping implements ScoreStore.Ping.
func (s *TreapStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrUnavailable
	}
	return nil
}

// live returns the board for key if present and fresh. Callers hold at least
// a read lock. Expired boards are left for the janitor.
func (s *TreapStore) live(key model.LeaderboardKey) *board {
	b, ok := s.boards[key.String()]
	if !ok || s.now().After(b.expiresAt) {
		return nil
	}
	return b
}

// Upsert implements ScoreStore.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, key model.LeaderboardKey, memberID string, score float64) error {
	start := time.Now()
	defer func() {
		metrics.RecordCacheUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	ns := toFixedPoint(score)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}

	b := s.live(key)
	if b == nil {
		b = &board{byID: make(map[string]scoreFP)}
		s.boards[key.String()] = b
		metrics.UpdateCachedBoards(len(s.boards))
	}
	if old, ok := b.byID[memberID]; ok {
		if old == ns {
			b.expiresAt = s.now().Add(s.ttl)
			return nil
		}
		b.root = remove(b.root, memberID, old)
	}
	b.byID[memberID] = ns
	b.root = insert(b.root, memberID, ns)
	// TTL covers the whole key, not one member: every write keeps the
	// board alive, and an idle board self-heals by expiring.
	b.expiresAt = s.now().Add(s.ttl)
	return nil
}

// TopRange implements ScoreStore.TopRange.
func (s *TreapStore) TopRange(ctx context.Context, key model.LeaderboardKey, limit, offset int) ([]MemberScore, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCacheQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if limit < 1 || offset < 0 {
		return nil, ErrInvalidRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUnavailable
	}
	b := s.live(key)
	if b == nil {
		return []MemberScore{}, nil
	}
	return b.rangeEntries(offset, limit), nil
}

// RankOf implements ScoreStore.RankOf.
func (s *TreapStore) RankOf(ctx context.Context, key model.LeaderboardKey, memberID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrUnavailable
	}
	b := s.live(key)
	if b == nil {
		return 0, ErrNotFound
	}
	score, ok := b.byID[memberID]
	if !ok {
		return 0, ErrNotFound
	}
	return rankOf(b.root, memberID, score), nil
}

// Cardinality implements ScoreStore.Cardinality.
func (s *TreapStore) Cardinality(ctx context.Context, key model.LeaderboardKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrUnavailable
	}
	b := s.live(key)
	if b == nil {
		return 0, nil
	}
	return len(b.byID), nil
}

// Remove implements ScoreStore.Remove.
func (s *TreapStore) Remove(ctx context.Context, key model.LeaderboardKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	delete(s.boards, key.String())
	metrics.UpdateCachedBoards(len(s.boards))
	return nil
}
