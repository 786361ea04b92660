package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Each entry keeps the policy it was created under so Cleanup honours
// per-call overrides.
type windowEntry struct {
	count  int
	start  time.Time
	window time.Duration
}

type blockEntry struct {
	count      int
	until      time.Time
	lastBlock  time.Time
	inactivity time.Duration
}

// MemoryLimiter keeps its counters in process memory.  State is lost on
// restart and is not shared between instances; use RedisLimiter when the
// service runs more than one replica.
type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	windows map[string]*windowEntry
	blocks  map[string]*blockEntry
	logger  *zap.Logger
}

// NewMemoryLimiter returns a limiter enforcing cfg.
func NewMemoryLimiter(cfg Config, now func() time.Time, logger *zap.Logger) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		now:     now,
		windows: map[string]*windowEntry{},
		blocks:  map[string]*blockEntry{},
		logger:  logger,
	}
}

// Check implements Limiter.  It never fails.
func (m *MemoryLimiter) Check(_ context.Context, endpoint, clientID string, cfg Config) (Result, error) {
	if cfg.IsZero() {
		cfg = m.cfg
	} else {
		cfg = cfg.withDefaults()
	}
	key := Key(endpoint, clientID)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if b, ok := m.blocks[key]; ok && now.Before(b.until) {
		return Result{Limit: cfg.MaxRequests, ResetAt: b.until, RetryAfterSeconds: ceilSeconds(b.until.Sub(now))}, nil
	}

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= cfg.Window {
		w = &windowEntry{start: now, window: cfg.Window}
		m.windows[key] = w
	}
	w.count++
	if w.count <= cfg.MaxRequests {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests - w.count,
			ResetAt:   w.start.Add(cfg.Window),
		}, nil
	}

	b, ok := m.blocks[key]
	if !ok || now.Sub(b.lastBlock) > cfg.Inactivity {
		b = &blockEntry{}
		m.blocks[key] = b
	}
	b.count++
	lockout := cfg.Backoff(b.count)
	b.until = now.Add(lockout)
	b.lastBlock = now
	b.inactivity = cfg.Inactivity
	delete(m.windows, key)

	m.logger.Info("rate limit block",
		zap.String("key", key), zap.Int("blocks", b.count), zap.Duration("lockout", lockout))
	return Result{Limit: cfg.MaxRequests, ResetAt: b.until, RetryAfterSeconds: ceilSeconds(lockout)}, nil
}

// Cleanup evicts windows that have elapsed and blocks that are both
// expired and past the inactivity period, each judged by the policy it
// was created under.  It returns the number of
// entries removed.
func (m *MemoryLimiter) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, w := range m.windows {
		if now.Sub(w.start) >= w.window {
			delete(m.windows, k)
			removed++
		}
	}
	for k, b := range m.blocks {
		if !now.Before(b.until) && now.Sub(b.lastBlock) > b.inactivity {
			delete(m.blocks, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows and blocks.
func (m *MemoryLimiter) Len() (windows, blocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows), len(m.blocks)
}

// Run calls Cleanup every interval until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Debug("rate limit cleanup", zap.Int("evicted", n))
			}
		}
	}
}
