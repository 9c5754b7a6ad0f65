package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakepool/internal/model"
)

// Snapshot exports the full ledger state. Member records are exported as
// stored; pending rewards are not folded.
func (l *Ledger) Snapshot(ctx context.Context) (model.Snapshot, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer release()

	snap := model.Snapshot{
		Owner:  l.cfg.Owner.Hex(),
		Teams:  make([]model.Team, 0, len(l.order)),
		Pools:  make([]model.Pool, 0, len(l.order)),
		Stakes: make([]model.Stake, 0, len(l.stakes)),
	}
	for _, authority := range l.order {
		t := l.teams[authority]
		members := make([]string, 0, len(t.members))
		for _, member := range t.members {
			members = append(members, member.Hex())
		}
		snap.Teams = append(snap.Teams, model.Team{Authority: authority.Hex(), Members: members})

		p := l.pools[authority]
		snap.Pools = append(snap.Pools, model.Pool{
			Team:         authority.Hex(),
			TotalStake:   p.totalStake.Dec(),
			TotalRewards: p.totalRewards.Dec(),
			Events:       encodeEvents(p.events),
		})
	}

	members := make([]common.Address, 0, len(l.stakes))
	for member := range l.stakes {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i][:], members[j][:]) < 0
	})
	for _, member := range members {
		s := l.stakes[member]
		snap.Stakes = append(snap.Stakes, model.Stake{
			Member:     member.Hex(),
			Pool:       s.pool.Hex(),
			Principal:  s.principal.Dec(),
			Checkpoint: s.checkpoint,
		})
	}
	return snap, nil
}

// Restore rebuilds a ledger from a snapshot. The snapshot owner replaces
// cfg.Owner.
func Restore(snap model.Snapshot, cfg Config, transferer Transferer, notifier Notifier, logger *zap.Logger) (*Ledger, error) {
	owner, err := parseAddress(snap.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	cfg.Owner = owner
	l := New(cfg, transferer, notifier, logger)

	for _, t := range snap.Teams {
		authority, err := parseAddress(t.Authority)
		if err != nil {
			return nil, fmt.Errorf("team: %w", err)
		}
		members := make([]common.Address, 0, len(t.Members))
		for _, raw := range t.Members {
			member, err := parseAddress(raw)
			if err != nil {
				return nil, fmt.Errorf("team %s member: %w", t.Authority, err)
			}
			members = append(members, member)
		}
		if err := l.createTeam(owner, authority, members); err != nil {
			return nil, fmt.Errorf("team %s: %w", t.Authority, err)
		}
	}

	for _, rec := range snap.Pools {
		authority, err := parseAddress(rec.Team)
		if err != nil {
			return nil, fmt.Errorf("pool: %w", err)
		}
		p, ok := l.pools[authority]
		if !ok {
			return nil, fmt.Errorf("pool %s has no team", rec.Team)
		}
		if err := parseAmount(&p.totalStake, rec.TotalStake); err != nil {
			return nil, fmt.Errorf("pool %s total stake: %w", rec.Team, err)
		}
		if err := parseAmount(&p.totalRewards, rec.TotalRewards); err != nil {
			return nil, fmt.Errorf("pool %s total rewards: %w", rec.Team, err)
		}
		p.events = make([]rewardEvent, 0, len(rec.Events))
		for i, e := range rec.Events {
			if e.Sequence != uint64(i)+1 {
				return nil, fmt.Errorf("pool %s: reward sequence %d at position %d", rec.Team, e.Sequence, i+1)
			}
			event := rewardEvent{sequence: e.Sequence}
			if err := parseAmount(&event.amount, e.Amount); err != nil {
				return nil, fmt.Errorf("pool %s reward %d: %w", rec.Team, e.Sequence, err)
			}
			if err := parseAmount(&event.snapshot, e.StakeSnapshot); err != nil {
				return nil, fmt.Errorf("pool %s reward %d: %w", rec.Team, e.Sequence, err)
			}
			p.events = append(p.events, event)
		}
	}

	for _, rec := range snap.Stakes {
		member, err := parseAddress(rec.Member)
		if err != nil {
			return nil, fmt.Errorf("stake: %w", err)
		}
		pool, err := parseAddress(rec.Pool)
		if err != nil {
			return nil, fmt.Errorf("stake %s: %w", rec.Member, err)
		}
		authority, ok := l.memberOf[member]
		if !ok || authority != pool {
			return nil, fmt.Errorf("stake %s: not a member of pool %s", rec.Member, rec.Pool)
		}
		s := &stake{pool: authority, checkpoint: rec.Checkpoint}
		if err := parseAmount(&s.principal, rec.Principal); err != nil {
			return nil, fmt.Errorf("stake %s: %w", rec.Member, err)
		}
		if s.checkpoint > uint64(len(l.pools[authority].events)) {
			return nil, fmt.Errorf("stake %s: checkpoint %d beyond reward log", rec.Member, s.checkpoint)
		}
		l.stakes[member] = s
		l.pools[authority].stakers++
	}

	// Dust left behind by older snapshots of emptied pools.
	swept := false
	for _, p := range l.pools {
		if p.stakers == 0 && !p.totalStake.IsZero() {
			p.sweep()
			swept = true
		}
	}

	l.changed = swept
	return l, nil
}

func encodeEvents(events []rewardEvent) []model.RewardEvent {
	out := make([]model.RewardEvent, 0, len(events))
	for _, e := range events {
		out = append(out, model.RewardEvent{
			Sequence:      e.sequence,
			Amount:        e.amount.Dec(),
			StakeSnapshot: e.snapshot.Dec(),
		})
	}
	return out
}
