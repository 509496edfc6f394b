package risk

import (
	"sync"
	"time"
)

// sessionShardCount is the number of stripes in the sharded account-session
// map, grounded on the teacher's dailyVolumes sharding in engine.go. A power
// of two so the shard index is a cheap mask.
const sessionShardCount = 32

// tradeTimestamp is one accepted order's acceptance time, kept only long
// enough to answer the rolling 60s TRADE_FREQUENCY window.
type tradeTimestamp struct {
	at time.Time
}

// accountSession is the mutable per-account state the evaluators need beyond
// the immutable AccountSnapshot: the peak-equity high-water mark for
// DRAWDOWN, the running realized PnL for DAILY_LOSS (summed with the
// account's live unrealized PnL at evaluation time), and the rolling trade
// timestamps for TRADE_FREQUENCY. Its realized PnL resets daily at 00:00 UTC.
type accountSession struct {
	mu sync.Mutex

	peakEquity   float64
	realizedPnL  float64
	sessionDay   int // days since epoch, UTC
	recentTrades []tradeTimestamp
}

func newAccountSession() *accountSession {
	return &accountSession{sessionDay: dayNumber(timeNow())}
}

func dayNumber(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}

// rolloverIfNeeded resets realizedPnL (the peak-equity high-water mark used
// for drawdown persists across days) when UTC midnight has passed since the
// session was last touched.
func (s *accountSession) rolloverIfNeeded(now time.Time) {
	today := dayNumber(now)
	if today != s.sessionDay {
		s.sessionDay = today
		s.realizedPnL = 0
	}
}

// observe updates the session with a fresh equity reading and returns the
// snapshot evaluators need: current peak equity and running realized PnL
// (the caller adds live unrealized PnL on top to get total session PnL).
func (s *accountSession) observe(now time.Time, equity float64) (peakEquity, realizedPnL float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverIfNeeded(now)
	if equity > s.peakEquity {
		s.peakEquity = equity
	}
	return s.peakEquity, s.realizedPnL
}

// recordRealized folds a realized PnL delta (from a fill or position close)
// into the running session total.
func (s *accountSession) recordRealized(now time.Time, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverIfNeeded(now)
	s.realizedPnL += delta
}

// recordTrade appends an acceptance timestamp and prunes entries older than
// 60s, then returns the count in the rolling window (spec §4.1
// TRADE_FREQUENCY).
func (s *accountSession) recordTrade(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentTrades = append(s.recentTrades, tradeTimestamp{at: now})
	return s.pruneAndCount(now)
}

// tradeCount returns the rolling-window count without recording a new trade,
// used by the monitor loop's position-centric pass.
func (s *accountSession) tradeCount(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pruneAndCount(now)
}

func (s *accountSession) pruneAndCount(now time.Time) int {
	cutoff := now.Add(-60 * time.Second)
	kept := s.recentTrades[:0]
	for _, t := range s.recentTrades {
		if t.at.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.recentTrades = kept
	return len(kept)
}

// sessionStore is a sharded registry of per-account session state, avoiding
// a single global lock across unrelated accounts. Grounded on the teacher's
// sharded locker pattern in engine.go.
type sessionStore struct {
	shards [sessionShardCount]struct {
		mu       sync.Mutex
		sessions map[string]*accountSession
	}
}

func newSessionStore() *sessionStore {
	s := &sessionStore{}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*accountSession)
	}
	return s
}

func (s *sessionStore) shardFor(accountID string) *struct {
	mu       sync.Mutex
	sessions map[string]*accountSession
} {
	h := fnv32(accountID)
	return &s.shards[h%sessionShardCount]
}

// get returns the session for accountID, creating it on first use.
func (s *sessionStore) get(accountID string) *accountSession {
	shard := s.shardFor(accountID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	sess, ok := shard.sessions[accountID]
	if !ok {
		sess = newAccountSession()
		shard.sessions[accountID] = sess
	}
	return sess
}

// accountIDs returns a snapshot of every account currently tracked. The
// monitor loop does not use it; it lists accounts through PositionService.
func (s *sessionStore) accountIDs() []string {
	var out []string
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for id := range shard.sessions {
			out = append(out, id)
		}
		shard.mu.Unlock()
	}
	return out
}

// fnv32 is a tiny non-cryptographic hash used only to pick a shard.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
