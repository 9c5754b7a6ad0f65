package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"stakepool/internal/model"
)

// Sink receives committed ledger events.
type Sink interface {
	Notify(ctx context.Context, event model.Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, event model.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Notify(_ context.Context, event model.Event) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("ledger event",
		zap.String("kind", event.Kind),
		zap.String("pool", event.Pool),
		zap.String("member", event.Member),
		zap.String("amount", event.Amount),
		zap.Uint64("sequence", event.Sequence),
	)
	return nil
}

// Buffer collects events in memory until drained.
type Buffer struct {
	mu     sync.Mutex
	events []model.Event
}

func (b *Buffer) Notify(_ context.Context, event model.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}
