package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakepool/internal/ledger"
	"stakepool/internal/model"
)

type applyStats struct {
	Total   int
	Applied int
	Failed  int
}

func runApply(cmd *cobra.Command, _ []string) error {
	inPath, _ := cmd.Flags().GetString("in")
	if inPath == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	s.logger.Info("apply start", zap.String("input", inPath))

	stats, err := s.apply(ctx, file)
	fields := []zap.Field{
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("failed", stats.Failed),
	}
	if err != nil {
		s.logger.Warn("apply stopped early", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Info("apply complete", fields...)
	return nil
}

// apply runs the batch and commits whatever it applied, also when the batch
// stops early: applied withdrawals have already paid out.
func (s *session) apply(ctx context.Context, r io.Reader) (applyStats, error) {
	stats, runErr := applyOperations(ctx, s.ledger, r, s.logger)
	if err := s.commit(ctx); err != nil {
		return stats, errors.Join(runErr, err)
	}
	return stats, runErr
}

// applyOperations runs each JSONL operation in order. A rejected operation is
// logged and skipped; it leaves no trace in the ledger.
func applyOperations(ctx context.Context, l *ledger.Ledger, r io.Reader, logger *zap.Logger) (applyStats, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var stats applyStats
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		stats.Total++

		var op model.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			stats.Failed++
			logger.Warn("decode operation", zap.Int("line", line), zap.Error(err))
			continue
		}

		if err := applyOperation(ctx, l, op); err != nil {
			stats.Failed++
			logger.Warn("operation rejected", zap.Int("line", line), zap.String("op", op.Op), zap.String("caller", op.Caller), zap.Error(err))
			continue
		}
		stats.Applied++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func applyOperation(ctx context.Context, l *ledger.Ledger, op model.Operation) error {
	caller, err := ledger.ParseAddress(op.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}

	switch op.Op {
	case model.OpCreateTeam:
		team, err := ledger.ParseAddress(op.Team)
		if err != nil {
			return fmt.Errorf("team: %w", err)
		}
		members, err := ledger.ParseAddresses(op.Members)
		if err != nil {
			return fmt.Errorf("members: %w", err)
		}
		return l.CreateTeam(ctx, caller, team, members)
	case model.OpStake, model.OpPostRewards, model.OpWithdraw:
		amount, err := ledger.ParseAmount(op.Amount)
		if err != nil {
			return err
		}
		switch op.Op {
		case model.OpStake:
			return l.Deposit(ctx, caller, amount)
		case model.OpPostRewards:
			return l.PostReward(ctx, caller, amount)
		default:
			return l.Withdraw(ctx, caller, amount)
		}
	default:
		return fmt.Errorf("unknown operation %q", op.Op)
	}
}
