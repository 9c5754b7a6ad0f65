package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stakepool/internal/model"
)

// DefaultPrecision is the number of fractional digits used for share queries.
const DefaultPrecision = 4

// Transferer moves value out of ledger custody. It may fail, for example when
// the recipient rejects the payment.
type Transferer interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Notifier observes committed ledger calls.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}

// Config holds ledger settings.
type Config struct {
	Owner     common.Address
	Precision uint8
}

type team struct {
	authority common.Address
	members   []common.Address
}

type rewardEvent struct {
	sequence uint64
	amount   uint256.Int
	snapshot uint256.Int
}

// stakers counts live stake records. Without stakers, totalStake is dust.
type pool struct {
	totalStake   uint256.Int
	totalRewards uint256.Int
	events       []rewardEvent
	stakers      int
}

// sweep drops the unowned dust left once the last stake record is gone and
// returns the amount dropped.
func (p *pool) sweep() uint256.Int {
	dust := p.totalStake
	p.totalStake.Clear()
	return dust
}

type stake struct {
	pool       common.Address
	principal  uint256.Int
	checkpoint uint64
}

// Ledger is the pooled staking ledger. Every call runs to completion under a
// single lock.
type Ledger struct {
	mu sync.Mutex

	cfg        Config
	transferer Transferer
	notifier   Notifier
	logger     *zap.Logger

	order    []common.Address
	teams    map[common.Address]*team
	memberOf map[common.Address]common.Address
	pools    map[common.Address]*pool
	stakes   map[common.Address]*stake
	changed  bool
}

// New builds an empty ledger owned by cfg.Owner.
func New(cfg Config, transferer Transferer, notifier Notifier, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		cfg:        cfg,
		transferer: transferer,
		notifier:   notifier,
		logger:     logger,
		teams:      make(map[common.Address]*team),
		memberOf:   make(map[common.Address]common.Address),
		pools:      make(map[common.Address]*pool),
		stakes:     make(map[common.Address]*stake),
	}
}

// Owner returns the address allowed to create teams.
func (l *Ledger) Owner() common.Address {
	return l.cfg.Owner
}

// Changed reports whether any call has modified state since the ledger was
// built or restored.
func (l *Ledger) Changed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// CreateTeam registers a team authority and its members. Only the owner may
// create teams.
func (l *Ledger) CreateTeam(ctx context.Context, caller, authority common.Address, members []common.Address) error {
	release, err := l.enter(ctx, true)
	if err != nil {
		return err
	}
	err = l.createTeam(caller, authority, members)
	release()
	if err != nil {
		return err
	}

	l.notify(ctx, model.Event{Kind: model.EventTeamCreated, Pool: authority.Hex()})
	return nil
}

func (l *Ledger) createTeam(caller, authority common.Address, members []common.Address) error {
	if caller != l.cfg.Owner {
		return ErrUnauthorized
	}
	if authority == (common.Address{}) {
		return fmt.Errorf("%w: team authority", ErrInvalidAddress)
	}
	if len(members) < 2 {
		return ErrMinTeamMembers
	}
	if _, ok := l.teams[authority]; ok {
		return fmt.Errorf("%w: %s", ErrTeamExists, authority.Hex())
	}

	seen := make(map[common.Address]struct{}, len(members))
	for _, member := range members {
		if member == (common.Address{}) {
			return fmt.Errorf("%w: team member", ErrInvalidAddress)
		}
		if _, ok := seen[member]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, member.Hex())
		}
		if _, ok := l.memberOf[member]; ok {
			return fmt.Errorf("%w: %s", ErrMemberAssigned, member.Hex())
		}
		seen[member] = struct{}{}
	}

	list := make([]common.Address, len(members))
	copy(list, members)
	l.teams[authority] = &team{authority: authority, members: list}
	l.pools[authority] = &pool{}
	for _, member := range list {
		l.memberOf[member] = authority
	}
	l.order = append(l.order, authority)
	l.changed = true

	l.logger.Debug("team created", zap.String("pool", authority.Hex()), zap.Int("members", len(list)))
	return nil
}

// Team returns the members of a team.
func (l *Ledger) Team(ctx context.Context, authority common.Address) ([]common.Address, bool) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return nil, false
	}
	defer release()

	t, ok := l.teams[authority]
	if !ok {
		return nil, false
	}
	out := make([]common.Address, len(t.members))
	copy(out, t.members)
	return out, true
}

// PoolOf returns the team a member belongs to.
func (l *Ledger) PoolOf(ctx context.Context, member common.Address) (common.Address, bool) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return common.Address{}, false
	}
	defer release()

	authority, ok := l.memberOf[member]
	return authority, ok
}

// PoolStake returns the total stake of a team's pool. Unknown teams hold 0.
func (l *Ledger) PoolStake(ctx context.Context, authority common.Address) (*uint256.Int, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	p, ok := l.pools[authority]
	if !ok {
		return new(uint256.Int), nil
	}
	return p.totalStake.Clone(), nil
}

// PoolRewards returns the cumulative rewards posted to a team's pool.
func (l *Ledger) PoolRewards(ctx context.Context, authority common.Address) (*uint256.Int, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	p, ok := l.pools[authority]
	if !ok {
		return new(uint256.Int), nil
	}
	return p.totalRewards.Clone(), nil
}

// RewardEvents returns the pool's reward log.
func (l *Ledger) RewardEvents(ctx context.Context, authority common.Address) ([]model.RewardEvent, error) {
	release, err := l.enter(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()

	p, ok := l.pools[authority]
	if !ok {
		return nil, nil
	}
	return encodeEvents(p.events), nil
}

func (l *Ledger) notify(ctx context.Context, event model.Event) {
	if l.notifier == nil {
		return
	}
	event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if err := l.notifier.Notify(ctx, event); err != nil {
		l.logger.Warn("notify failed", zap.String("kind", event.Kind), zap.String("pool", event.Pool), zap.Error(err))
	}
}
