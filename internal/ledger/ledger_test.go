package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/internal/model"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	team1     = common.HexToAddress("0x0000000000000000000000000000000000000101")
	team2     = common.HexToAddress("0x0000000000000000000000000000000000000102")
	member11  = common.HexToAddress("0x0000000000000000000000000000000000001101")
	member12  = common.HexToAddress("0x0000000000000000000000000000000000001102")
	member13  = common.HexToAddress("0x0000000000000000000000000000000000001103")
	member21  = common.HexToAddress("0x0000000000000000000000000000000000002101")
	member22  = common.HexToAddress("0x0000000000000000000000000000000000002102")
	member23  = common.HexToAddress("0x0000000000000000000000000000000000002103")
	nonMember = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

type payout struct {
	to     common.Address
	amount uint64
}

type fakeTransferer struct {
	reject     map[common.Address]bool
	paid       []payout
	onTransfer func(ctx context.Context)
	result     error
}

func (f *fakeTransferer) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if f.onTransfer != nil {
		f.onTransfer(ctx)
	}
	if f.reject[to] {
		return errors.New("recipient rejected payment")
	}
	if f.result != nil {
		return f.result
	}
	f.paid = append(f.paid, payout{to: to, amount: amount.Uint64()})
	return nil
}

type fakeNotifier struct {
	events []model.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, event model.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func newBareLedger() (*Ledger, *fakeTransferer, *fakeNotifier) {
	transferer := &fakeTransferer{reject: make(map[common.Address]bool)}
	notifier := &fakeNotifier{}
	return New(Config{Owner: owner, Precision: DefaultPrecision}, transferer, notifier, nil), transferer, notifier
}

func newTestLedger(t *testing.T) (*Ledger, *fakeTransferer, *fakeNotifier) {
	t.Helper()
	l, transferer, notifier := newBareLedger()
	ctx := context.Background()
	if err := l.CreateTeam(ctx, owner, team1, []common.Address{member11, member12, member13}); err != nil {
		t.Fatalf("create team1: %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team2, []common.Address{member21, member22, member23}); err != nil {
		t.Fatalf("create team2: %v", err)
	}
	notifier.events = nil
	return l, transferer, notifier
}

func balance(t *testing.T, l *Ledger, member common.Address) uint64 {
	t.Helper()
	v, err := l.BalanceOf(context.Background(), member)
	if err != nil {
		t.Fatalf("balance of %s: %v", member.Hex(), err)
	}
	return v.Uint64()
}

func poolStake(t *testing.T, l *Ledger, authority common.Address) uint64 {
	t.Helper()
	v, err := l.PoolStake(context.Background(), authority)
	if err != nil {
		t.Fatalf("pool stake of %s: %v", authority.Hex(), err)
	}
	return v.Uint64()
}

func poolRewards(t *testing.T, l *Ledger, authority common.Address) uint64 {
	t.Helper()
	v, err := l.PoolRewards(context.Background(), authority)
	if err != nil {
		t.Fatalf("pool rewards of %s: %v", authority.Hex(), err)
	}
	return v.Uint64()
}

func mustDeposit(t *testing.T, l *Ledger, member common.Address, amount uint64) {
	t.Helper()
	if err := l.Deposit(context.Background(), member, u(amount)); err != nil {
		t.Fatalf("deposit %d for %s: %v", amount, member.Hex(), err)
	}
}

func mustWithdraw(t *testing.T, l *Ledger, member common.Address, amount uint64) {
	t.Helper()
	if err := l.Withdraw(context.Background(), member, u(amount)); err != nil {
		t.Fatalf("withdraw %d for %s: %v", amount, member.Hex(), err)
	}
}

func mustPost(t *testing.T, l *Ledger, authority common.Address, amount uint64) {
	t.Helper()
	if err := l.PostReward(context.Background(), authority, u(amount)); err != nil {
		t.Fatalf("post reward %d to %s: %v", amount, authority.Hex(), err)
	}
}

func TestCreateTeamRequiresOwner(t *testing.T) {
	l, _, _ := newBareLedger()
	err := l.CreateTeam(context.Background(), member11, team1, []common.Address{member11, member12})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, ok := l.Team(context.Background(), team1); ok {
		t.Fatalf("team should not exist")
	}
}

func TestCreateTeamStartsEmpty(t *testing.T) {
	l, _, notifier := newBareLedger()
	if err := l.CreateTeam(context.Background(), owner, team1, []common.Address{member11, member12}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := poolRewards(t, l, team1); got != 0 {
		t.Fatalf("pool rewards should be 0, got %d", got)
	}
	if got := poolStake(t, l, team1); got != 0 {
		t.Fatalf("pool stake should be 0, got %d", got)
	}
	for _, member := range []common.Address{member11, member12, member13} {
		if got := balance(t, l, member); got != 0 {
			t.Fatalf("stake of %s should be 0, got %d", member.Hex(), got)
		}
		limit, err := l.WithdrawLimit(context.Background(), member)
		if err != nil || !limit.IsZero() {
			t.Fatalf("withdraw limit of %s should be 0, got %v %v", member.Hex(), limit, err)
		}
	}

	members, ok := l.Team(context.Background(), team1)
	if !ok || len(members) != 2 || members[0] != member11 || members[1] != member12 {
		t.Fatalf("team members mismatch: %v", members)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != model.EventTeamCreated {
		t.Fatalf("expected team_created event, got %+v", notifier.events)
	}
}

func TestCreateTeamMinMembers(t *testing.T) {
	l, _, _ := newBareLedger()
	ctx := context.Background()
	if err := l.CreateTeam(ctx, owner, team1, []common.Address{member11}); !errors.Is(err, ErrMinTeamMembers) {
		t.Fatalf("expected min team members, got %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team1, nil); !errors.Is(err, ErrMinTeamMembers) {
		t.Fatalf("expected min team members for empty list, got %v", err)
	}
}

func TestCreateTeamUniqueMembers(t *testing.T) {
	l, _, _ := newBareLedger()
	ctx := context.Background()

	if err := l.CreateTeam(ctx, owner, team1, []common.Address{member11, member11}); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("expected duplicate member, got %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team1, []common.Address{member11, member12}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team1, []common.Address{member21, member22}); !errors.Is(err, ErrTeamExists) {
		t.Fatalf("expected team exists, got %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team2, []common.Address{member12, member21}); !errors.Is(err, ErrMemberAssigned) {
		t.Fatalf("expected member assigned, got %v", err)
	}
	if err := l.CreateTeam(ctx, owner, team2, []common.Address{{}, member21}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if _, ok := l.PoolOf(ctx, member21); ok {
		t.Fatalf("failed creation must not assign members")
	}
}

func TestNonMemberCannotStake(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if err := l.Deposit(context.Background(), nonMember, u(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := balance(t, l, nonMember); got != 0 {
		t.Fatalf("non-member stake should be 0, got %d", got)
	}
}

func TestStakeRejectsZero(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if err := l.Deposit(context.Background(), member11, u(0)); !errors.Is(err, ErrEmptyDeposit) {
		t.Fatalf("expected empty deposit, got %v", err)
	}
	if err := l.Deposit(context.Background(), member11, nil); !errors.Is(err, ErrEmptyDeposit) {
		t.Fatalf("expected empty deposit for nil, got %v", err)
	}
}

func TestStakeIsCumulative(t *testing.T) {
	l, _, notifier := newTestLedger(t)

	mustDeposit(t, l, member21, 100)
	if got := balance(t, l, member21); got != 100 {
		t.Fatalf("stake mismatch: %d", got)
	}
	if got := poolStake(t, l, team2); got != 100 {
		t.Fatalf("pool stake mismatch: %d", got)
	}

	mustDeposit(t, l, member21, 200)
	if got := balance(t, l, member21); got != 300 {
		t.Fatalf("stake mismatch: %d", got)
	}

	mustDeposit(t, l, member22, 230)
	if got := balance(t, l, member22); got != 230 {
		t.Fatalf("stake mismatch: %d", got)
	}
	if got := poolStake(t, l, team2); got != 530 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
	if got := poolStake(t, l, team1); got != 0 {
		t.Fatalf("other pool must be untouched: %d", got)
	}

	if len(notifier.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(notifier.events))
	}
	last := notifier.events[2]
	if last.Kind != model.EventStake || last.Pool != team2.Hex() || last.Member != member22.Hex() || last.Amount != "230" {
		t.Fatalf("event mismatch: %+v", last)
	}
}

func TestPostRewardsCumulative(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustPost(t, l, team1, 1000)
	if got := poolRewards(t, l, team1); got != 1000 {
		t.Fatalf("pool rewards mismatch: %d", got)
	}
	mustPost(t, l, team1, 1150)
	if got := poolRewards(t, l, team1); got != 2150 {
		t.Fatalf("pool rewards mismatch: %d", got)
	}
}

func TestNonTeamCannotPostRewards(t *testing.T) {
	l, _, _ := newTestLedger(t)
	if err := l.PostReward(context.Background(), member12, u(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := l.PostReward(context.Background(), team1, u(0)); !errors.Is(err, ErrEmptyDeposit) {
		t.Fatalf("expected empty deposit, got %v", err)
	}
}

func TestRewardToEmptyPoolIsNotDistributed(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustPost(t, l, team1, 1000)
	mustDeposit(t, l, member11, 100)

	if got := balance(t, l, member11); got != 100 {
		t.Fatalf("late staker must not receive earlier reward: %d", got)
	}
	if got := poolStake(t, l, team1); got != 100 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
	if got := poolRewards(t, l, team1); got != 1000 {
		t.Fatalf("pool rewards mismatch: %d", got)
	}
	if got := balance(t, l, member12); got != 0 {
		t.Fatalf("member12 stake should be 0: %d", got)
	}
	if got := balance(t, l, member21); got != 0 {
		t.Fatalf("member21 stake should be 0: %d", got)
	}
}

func TestSingleStakerTakesWholeReward(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustPost(t, l, team1, 1000)

	if got := balance(t, l, member11); got != 1100 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if got := poolStake(t, l, team1); got != 1100 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
}

func TestTwoStakersShareReward(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustDeposit(t, l, member12, 101)
	mustPost(t, l, team1, 1150)

	a := balance(t, l, member11)
	b := balance(t, l, member12)
	if a != 100+572 || b != 101+577 {
		t.Fatalf("shares mismatch: %d %d", a, b)
	}
	if got := poolStake(t, l, team1); got != 1351 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
	if dust := poolStake(t, l, team1) - a - b; dust != 1 {
		t.Fatalf("dust mismatch: %d", dust)
	}
}

func TestLateStakerMissesReward(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustPost(t, l, team1, 1150)
	mustDeposit(t, l, member12, 101)

	if got := balance(t, l, member11); got != 1250 {
		t.Fatalf("early staker balance mismatch: %d", got)
	}
	if got := balance(t, l, member12); got != 101 {
		t.Fatalf("late staker balance mismatch: %d", got)
	}
}

func TestLateStakerGetsNextReward(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustPost(t, l, team1, 1150)
	mustDeposit(t, l, member12, 101)
	mustPost(t, l, team1, 1351)

	if got := balance(t, l, member11); got != 2500 {
		t.Fatalf("early staker balance mismatch: %d", got)
	}
	if got := balance(t, l, member12); got != 202 {
		t.Fatalf("late staker balance mismatch: %d", got)
	}
	if got := poolStake(t, l, team1); got != 2702 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
}

func TestDepositFoldsPendingRewardsFirst(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustDeposit(t, l, member12, 100)
	mustPost(t, l, team1, 100)

	// member11 now holds 150 and tops up to 300; member12 still holds 150.
	mustDeposit(t, l, member11, 150)
	mustPost(t, l, team1, 450)

	if got := balance(t, l, member11); got != 300+300 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if got := balance(t, l, member12); got != 150+150 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if got := poolStake(t, l, team1); got != 900 {
		t.Fatalf("pool stake mismatch: %d", got)
	}
}

func TestBalanceOfIsIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 7)
	mustDeposit(t, l, member12, 11)
	mustPost(t, l, team1, 1000)

	first := balance(t, l, member11)
	second := balance(t, l, member11)
	if first != second {
		t.Fatalf("balance changed between reads: %d != %d", first, second)
	}
}

func TestRewardSharesNeverExceedAmount(t *testing.T) {
	l, _, _ := newTestLedger(t)
	stakes := map[common.Address]uint64{member11: 7, member12: 11, member13: 13}
	for member, amount := range stakes {
		mustDeposit(t, l, member, amount)
	}
	const reward = 1000
	mustPost(t, l, team1, reward)

	var distributed uint64
	for member, amount := range stakes {
		distributed += balance(t, l, member) - amount
	}
	if distributed > reward {
		t.Fatalf("distributed %d exceeds reward %d", distributed, reward)
	}
	if dust := reward - distributed; dust >= uint64(len(stakes)) {
		t.Fatalf("dust %d not bounded by staker count", dust)
	}
}

func TestMemberShare(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustDeposit(t, l, member12, 101)

	share, err := l.MemberShare(context.Background(), member11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := share.String(); got != "49.7512" {
		t.Fatalf("share mismatch: %s", got)
	}

	empty, err := l.MemberShare(context.Background(), member21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := empty.String(); got != "0.0000" {
		t.Fatalf("empty pool share mismatch: %s", got)
	}
}

func TestNotifyFailureDoesNotFailCall(t *testing.T) {
	l, _, notifier := newTestLedger(t)
	notifier.err = errors.New("sink down")
	mustDeposit(t, l, member11, 100)
	mustPost(t, l, team1, 10)
	if got := balance(t, l, member11); got != 110 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if len(notifier.events) != 2 || notifier.events[1].Sequence != 1 {
		t.Fatalf("events mismatch: %+v", notifier.events)
	}
}
