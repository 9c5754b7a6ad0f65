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

// Deposit stakes amount for member into the member's team pool. The new
// stake takes part only in rewards posted after this call.
func (l *Ledger) Deposit(ctx context.Context, member common.Address, amount *uint256.Int) error {
	release, err := l.enter(ctx, true)
	if err != nil {
		return err
	}
	event, err := l.deposit(member, amount)
	release()
	if err != nil {
		return err
	}

	l.notify(ctx, event)
	return nil
}

func (l *Ledger) deposit(member common.Address, amount *uint256.Int) (model.Event, error) {
	authority, ok := l.memberOf[member]
	if !ok {
		return model.Event{}, ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return model.Event{}, ErrEmptyDeposit
	}
	p := l.pools[authority]

	_, existing := l.stakes[member]
	staged := l.stakeFor(member, authority, p)
	if err := resolve(&staged, p); err != nil {
		return model.Event{}, err
	}

	principal, err := checkedAdd(&staged.principal, amount)
	if err != nil {
		return model.Event{}, err
	}
	total, err := checkedAdd(&p.totalStake, amount)
	if err != nil {
		return model.Event{}, err
	}

	staged.principal = *principal
	l.stakes[member] = &staged
	p.totalStake = *total
	if !existing {
		p.stakers++
	}
	l.changed = true

	l.logger.Debug("stake committed",
		zap.String("pool", authority.Hex()),
		zap.String("member", member.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("principal", principal.Dec()),
	)

	return model.Event{
		Kind:   model.EventStake,
		Pool:   authority.Hex(),
		Member: member.Hex(),
		Amount: amount.Dec(),
	}, nil
}

// BalanceOf returns member's principal after folding every pending reward
// into it. The folded value is persisted. Non-members hold 0.
func (l *Ledger) BalanceOf(ctx context.Context, member common.Address) (*uint256.Int, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	return l.balanceOf(member)
}

// MemberStake is BalanceOf.
func (l *Ledger) MemberStake(ctx context.Context, member common.Address) (*uint256.Int, error) {
	return l.BalanceOf(ctx, member)
}

// WithdrawLimit is the most member can withdraw right now. It always equals
// the member's stake.
func (l *Ledger) WithdrawLimit(ctx context.Context, member common.Address) (*uint256.Int, error) {
	return l.BalanceOf(ctx, member)
}

// MemberShare returns the member's share of its pool's total stake.
func (l *Ledger) MemberShare(ctx context.Context, member common.Address) (percent.Result, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return percent.Result{}, err
	}
	defer release()

	balance, err := l.balanceOf(member)
	if err != nil {
		return percent.Result{}, err
	}
	authority, ok := l.memberOf[member]
	if !ok {
		return percent.Result{Precision: l.cfg.Precision}, nil
	}
	p := l.pools[authority]
	if p.totalStake.IsZero() {
		return percent.Result{Precision: l.cfg.Precision}, nil
	}
	return percent.PercentOf(balance, &p.totalStake, l.cfg.Precision)
}

func (l *Ledger) balanceOf(member common.Address) (*uint256.Int, error) {
	s, ok := l.stakes[member]
	if !ok {
		return new(uint256.Int), nil
	}
	p := l.pools[s.pool]
	if s.checkpoint < uint64(len(p.events)) {
		staged := *s
		if err := resolve(&staged, p); err != nil {
			return nil, err
		}
		*s = staged
		l.changed = true
	}
	return s.principal.Clone(), nil
}

// stakeFor returns a copy of the member's record, or a fresh record that
// starts after every event already in the pool log.
func (l *Ledger) stakeFor(member, authority common.Address, p *pool) stake {
	if s, ok := l.stakes[member]; ok {
		return *s
	}
	return stake{pool: authority, checkpoint: uint64(len(p.events))}
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, a.Dec(), b.Dec())
	}
	return out, nil
}
