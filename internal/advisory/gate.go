package advisory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between two advisory calls for the
// same user.
const DefaultCooldown = 2 * time.Second

// Gate rejections.
var (
	ErrBusy        = errors.New("advisory: call already in flight")
	ErrCoolingDown = errors.New("advisory: cooldown active")
)

// Gate admits at most one advisory call per key at a time, and no call within
// the cooldown window of the previous admitted one. Acquire never blocks
// waiting for a slot. The returned release func is safe to call more than
// once.
type Gate interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type gateState struct {
	locked     bool
	lastCallAt time.Time
}

// MemoryGate is a process-local Gate.
type MemoryGate struct {
	mu          sync.Mutex
	users       map[string]*gateState
	cooldown    time.Duration
	now         func() time.Time
	cleanupTick *time.Ticker
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryGate creates a gate and starts a goroutine pruning idle users.
// Call Stop to end it.
func NewMemoryGate(cooldown time.Duration) *MemoryGate {
	g := &MemoryGate{
		users:       make(map[string]*gateState),
		cooldown:    cooldown,
		now:         time.Now,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// Acquire checks the lock and the cooldown and takes the lock in one step.
func (g *MemoryGate) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st, ok := g.users[key]
	if !ok {
		st = &gateState{}
		g.users[key] = st
	}
	if st.locked {
		return nil, ErrBusy
	}
	if !st.lastCallAt.IsZero() && now.Sub(st.lastCallAt) < g.cooldown {
		return nil, ErrCoolingDown
	}
	st.locked = true
	st.lastCallAt = now

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			st.locked = false
			g.mu.Unlock()
		})
	}, nil
}

func (g *MemoryGate) cleanup() {
	for {
		select {
		case <-g.cleanupTick.C:
			g.prune()
		case <-g.stopCleanup:
			return
		}
	}
}

// prune drops users that are unlocked and out of cooldown.
func (g *MemoryGate) prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, st := range g.users {
		if !st.locked && now.Sub(st.lastCallAt) >= g.cooldown {
			delete(g.users, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (g *MemoryGate) Stop() {
	g.stopOnce.Do(func() {
		g.cleanupTick.Stop()
		close(g.stopCleanup)
	})
}
