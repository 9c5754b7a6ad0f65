package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakepool/internal/model"
)

// Withdraw pays amount out of member's stake. The debit is committed before
// the transfer and undone if the transfer fails, so nothing the transfer
// does can observe or spend the pre-debit balance. A transfer that reports
// ErrTransferPending keeps the debit.
func (l *Ledger) Withdraw(ctx context.Context, member common.Address, amount *uint256.Int) error {
	release, err := l.enter(ctx, true)
	if err != nil {
		return err
	}
	event, err := l.withdraw(ctx, member, amount)
	release()
	if err != nil {
		return err
	}

	l.notify(ctx, event)
	return nil
}

func (l *Ledger) withdraw(ctx context.Context, member common.Address, amount *uint256.Int) (model.Event, error) {
	authority, ok := l.memberOf[member]
	if !ok {
		return model.Event{}, ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return model.Event{}, ErrEmptyWithdraw
	}
	p := l.pools[authority]

	staged := l.stakeFor(member, authority, p)
	if err := resolve(&staged, p); err != nil {
		return model.Event{}, err
	}
	if amount.Gt(&staged.principal) {
		return model.Event{}, fmt.Errorf("%w: requested %s, limit %s", ErrWithdrawLimitExceeded, amount.Dec(), staged.principal.Dec())
	}

	var total uint256.Int
	if _, underflow := total.SubOverflow(&p.totalStake, amount); underflow {
		return model.Event{}, fmt.Errorf("pool %s stake below member principal", authority.Hex())
	}
	staged.principal.Sub(&staged.principal, amount)

	prev, hadPrev := l.stakes[member]
	prevTotal := p.totalStake
	prevStakers := p.stakers

	p.totalStake = total
	if staged.principal.IsZero() {
		delete(l.stakes, member)
		if hadPrev {
			p.stakers--
		}
		if p.stakers == 0 {
			if dust := p.sweep(); !dust.IsZero() {
				l.logger.Debug("pool dust swept", zap.String("pool", authority.Hex()), zap.String("dust", dust.Dec()))
			}
		}
	} else {
		l.stakes[member] = &staged
	}

	err := l.transfer(ctx, member, amount)
	switch {
	case errors.Is(err, ErrTransferPending):
		l.logger.Warn("withdraw payout unconfirmed, debit kept",
			zap.String("pool", authority.Hex()),
			zap.String("member", member.Hex()),
			zap.String("amount", amount.Dec()),
			zap.Error(err),
		)
	case err != nil:
		if hadPrev {
			l.stakes[member] = prev
		} else {
			delete(l.stakes, member)
		}
		p.totalStake = prevTotal
		p.stakers = prevStakers

		l.logger.Warn("withdraw rolled back",
			zap.String("pool", authority.Hex()),
			zap.String("member", member.Hex()),
			zap.String("amount", amount.Dec()),
			zap.Error(err),
		)
		return model.Event{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	l.changed = true

	l.logger.Debug("withdraw committed",
		zap.String("pool", authority.Hex()),
		zap.String("member", member.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("principal", staged.principal.Dec()),
	)

	return model.Event{
		Kind:   model.EventWithdraw,
		Pool:   authority.Hex(),
		Member: member.Hex(),
		Amount: amount.Dec(),
	}, nil
}

func (l *Ledger) transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if l.transferer == nil {
		return fmt.Errorf("no transferer configured")
	}
	guarded, done := l.guard(ctx)
	defer done()
	return l.transferer.Transfer(guarded, to, amount.Clone())
}
