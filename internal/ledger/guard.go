package ledger

import (
	"context"
	"sync"
)

type guardKey struct{}

// callGuard marks the context handed to the Transferer during one withdraw.
// It is active only until the transfer returns.
type callGuard struct {
	ledger *Ledger
	mu     sync.Mutex
	active bool
}

// enter serializes ledger calls. A call carrying the active guard of an
// in-flight withdraw is reentrant: it runs under the guard's own lock instead
// of the ledger lock, and only if it does not mutate. A stale guard falls back
// to the ledger lock.
func (l *Ledger) enter(ctx context.Context, mutating bool) (func(), error) {
	if g, ok := ctx.Value(guardKey{}).(*callGuard); ok && g.ledger == l {
		g.mu.Lock()
		if g.active {
			if mutating {
				g.mu.Unlock()
				return nil, ErrReentrantCall
			}
			return g.mu.Unlock, nil
		}
		g.mu.Unlock()
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// guard returns ctx marked for reentrant reads and the func that retires the
// mark. done waits for in-flight reentrant reads.
func (l *Ledger) guard(ctx context.Context) (context.Context, func()) {
	g := &callGuard{ledger: l, active: true}
	done := func() {
		g.mu.Lock()
		g.active = false
		g.mu.Unlock()
	}
	return context.WithValue(ctx, guardKey{}, g), done
}
