package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakepool/internal/ledger"
	"stakepool/internal/model"
	"stakepool/internal/percent"
)

func runInit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	owner, err := ledger.ParseAddress(s.cfg.Owner)
	if err != nil {
		return err
	}

	_, ok, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		return fmt.Errorf("ledger already initialized")
	}

	l := ledger.New(ledger.Config{Owner: owner, Precision: s.cfg.Precision}, nil, nil, s.logger)
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.save(ctx, snap); err != nil {
		return err
	}

	s.logger.Info("ledger initialized", zap.String("owner", owner.Hex()))
	return nil
}

func runCreateTeam(cmd *cobra.Command, _ []string) error {
	callerRaw, _ := cmd.Flags().GetString("caller")
	teamRaw, _ := cmd.Flags().GetString("team")
	membersRaw, _ := cmd.Flags().GetStringSlice("members")

	caller, err := ledger.ParseAddress(callerRaw)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	team, err := ledger.ParseAddress(teamRaw)
	if err != nil {
		return fmt.Errorf("team: %w", err)
	}
	members, err := ledger.ParseAddresses(membersRaw)
	if err != nil {
		return fmt.Errorf("members: %w", err)
	}

	return withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
		return l.CreateTeam(ctx, caller, team, members)
	})
}

func runStake(cmd *cobra.Command, _ []string) error {
	return runAmountOp(cmd, func(ctx context.Context, l *ledger.Ledger, caller common.Address, amount *uint256.Int) error {
		return l.Deposit(ctx, caller, amount)
	})
}

func runPostRewards(cmd *cobra.Command, _ []string) error {
	return runAmountOp(cmd, func(ctx context.Context, l *ledger.Ledger, caller common.Address, amount *uint256.Int) error {
		return l.PostReward(ctx, caller, amount)
	})
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	return runAmountOp(cmd, func(ctx context.Context, l *ledger.Ledger, caller common.Address, amount *uint256.Int) error {
		return l.Withdraw(ctx, caller, amount)
	})
}

func runAmountOp(cmd *cobra.Command, op func(context.Context, *ledger.Ledger, common.Address, *uint256.Int) error) error {
	callerRaw, _ := cmd.Flags().GetString("caller")
	amountRaw, _ := cmd.Flags().GetString("amount")

	caller, err := ledger.ParseAddress(callerRaw)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	amount, err := ledger.ParseAmount(amountRaw)
	if err != nil {
		return err
	}

	return withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
		return op(ctx, l, caller, amount)
	})
}

// withLedger runs fn against the stored ledger and saves the result. A failed
// call leaves the stored ledger untouched.
func withLedger(cmd *cobra.Command, fn func(context.Context, *ledger.Ledger) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(ctx, s.ledger); err != nil {
		s.logger.Warn("call rejected", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return s.commit(ctx)
}

// memberView is the query output for a member. ProjectedReward is what the
// member would get, at its current share, if the pool's last reward were
// posted again.
type memberView struct {
	Member          string          `json:"member"`
	Pool            string          `json:"pool,omitempty"`
	Stake           string          `json:"stake"`
	WithdrawLimit   string          `json:"withdraw_limit"`
	Share           decimal.Decimal `json:"share_percent"`
	ProjectedReward string          `json:"projected_reward,omitempty"`
}

type poolView struct {
	Team    string              `json:"team"`
	Members []string            `json:"members"`
	Stake   string              `json:"stake"`
	Rewards string              `json:"rewards"`
	Events  []model.RewardEvent `json:"events"`
}

func runQuery(cmd *cobra.Command, _ []string) error {
	memberRaw, _ := cmd.Flags().GetString("member")
	teamRaw, _ := cmd.Flags().GetString("team")
	if (memberRaw == "") == (teamRaw == "") {
		return fmt.Errorf("exactly one of --member or --team is required")
	}

	return withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
		var view interface{}
		var err error
		if memberRaw != "" {
			view, err = queryMember(ctx, l, memberRaw)
		} else {
			view, err = queryPool(ctx, l, teamRaw)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	})
}

func queryMember(ctx context.Context, l *ledger.Ledger, raw string) (memberView, error) {
	member, err := ledger.ParseAddress(raw)
	if err != nil {
		return memberView{}, err
	}
	stake, err := l.MemberStake(ctx, member)
	if err != nil {
		return memberView{}, err
	}
	limit, err := l.WithdrawLimit(ctx, member)
	if err != nil {
		return memberView{}, err
	}
	share, err := l.MemberShare(ctx, member)
	if err != nil {
		return memberView{}, err
	}

	view := memberView{
		Member:        member.Hex(),
		Stake:         stake.Dec(),
		WithdrawLimit: limit.Dec(),
		Share:         share.AsDecimal(),
	}
	pool, ok := l.PoolOf(ctx, member)
	if !ok {
		return view, nil
	}
	view.Pool = pool.Hex()

	events, err := l.RewardEvents(ctx, pool)
	if err != nil {
		return memberView{}, err
	}
	if len(events) > 0 {
		last, err := ledger.ParseAmount(events[len(events)-1].Amount)
		if err != nil {
			return memberView{}, err
		}
		projected, err := percent.AmountOf(&share.Scaled, last, share.Precision)
		if err != nil {
			return memberView{}, err
		}
		view.ProjectedReward = projected.Dec()
	}
	return view, nil
}

func queryPool(ctx context.Context, l *ledger.Ledger, raw string) (poolView, error) {
	team, err := ledger.ParseAddress(raw)
	if err != nil {
		return poolView{}, err
	}
	members, ok := l.Team(ctx, team)
	if !ok {
		return poolView{}, fmt.Errorf("unknown team %s", team.Hex())
	}
	stake, err := l.PoolStake(ctx, team)
	if err != nil {
		return poolView{}, err
	}
	rewards, err := l.PoolRewards(ctx, team)
	if err != nil {
		return poolView{}, err
	}
	events, err := l.RewardEvents(ctx, team)
	if err != nil {
		return poolView{}, err
	}

	view := poolView{
		Team:    team.Hex(),
		Members: make([]string, 0, len(members)),
		Stake:   stake.Dec(),
		Rewards: rewards.Dec(),
		Events:  events,
	}
	for _, member := range members {
		view.Members = append(view.Members, member.Hex())
	}
	return view, nil
}
