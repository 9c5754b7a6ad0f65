package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakepool/internal/model"
	"stakepool/internal/percent"
)

// PostReward appends a reward to the caller's pool. Only stake present before
// this call shares in it; members fold their share on their next touch.
func (l *Ledger) PostReward(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	release, err := l.enter(ctx, true)
	if err != nil {
		return err
	}
	event, err := l.postReward(caller, amount)
	release()
	if err != nil {
		return err
	}

	l.notify(ctx, event)
	return nil
}

func (l *Ledger) postReward(caller common.Address, amount *uint256.Int) (model.Event, error) {
	p, ok := l.pools[caller]
	if !ok {
		return model.Event{}, ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return model.Event{}, ErrEmptyDeposit
	}

	rewards, err := checkedAdd(&p.totalRewards, amount)
	if err != nil {
		return model.Event{}, err
	}
	// With no stakers the reward is all dust: snapshot 0, stake untouched.
	var snapshot, total uint256.Int
	if p.stakers > 0 && !p.totalStake.IsZero() {
		next, err := checkedAdd(&p.totalStake, amount)
		if err != nil {
			return model.Event{}, err
		}
		snapshot = p.totalStake
		total = *next
	}

	event := rewardEvent{sequence: uint64(len(p.events)) + 1}
	event.amount.Set(amount)
	event.snapshot = snapshot

	p.events = append(p.events, event)
	p.totalStake = total
	p.totalRewards = *rewards
	l.changed = true

	l.logger.Debug("reward posted",
		zap.String("pool", caller.Hex()),
		zap.Uint64("sequence", event.sequence),
		zap.String("amount", amount.Dec()),
		zap.String("stake_snapshot", event.snapshot.Dec()),
	)

	return model.Event{
		Kind:     model.EventRewardPosted,
		Pool:     caller.Hex(),
		Amount:   amount.Dec(),
		Sequence: event.sequence,
	}, nil
}

// resolve folds every event after s.checkpoint into s.principal. Each share
// is truncated; the remainder stays in the pool as dust.
func resolve(s *stake, p *pool) error {
	for i := s.checkpoint; i < uint64(len(p.events)); i++ {
		e := &p.events[i]
		if e.snapshot.IsZero() || s.principal.IsZero() {
			continue
		}
		share, err := percent.MulDiv(&s.principal, &e.amount, &e.snapshot)
		if err != nil {
			return fmt.Errorf("reward %d: %w", e.sequence, err)
		}
		principal, err := checkedAdd(&s.principal, share)
		if err != nil {
			return fmt.Errorf("reward %d: %w", e.sequence, err)
		}
		s.principal = *principal
	}
	s.checkpoint = uint64(len(p.events))
	return nil
}
