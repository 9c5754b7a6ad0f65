package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "stakepool",
		Short:        "Pooled staking reward ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("owner", "", "ledger owner address (init only)")
	flags.String("state-file", "./data/ledger.json", "ledger snapshot file")
	flags.String("pg-dsn", "", "Postgres DSN; replaces the snapshot file when set")
	flags.String("state-name", "stakepool", "snapshot name in Postgres")
	flags.String("events-out", "", "append ledger events to this JSONL file")
	flags.Int("precision", 4, "fractional digits for share percentages")
	flags.StringSlice("reject", nil, "recipients that refuse payouts (comma-separated)")
	flags.String("rpc", "", "RPC URL for on-chain payouts")
	flags.String("private-key", "", "hex key of the custody account paying withdrawals")
	flags.Int("max-retries", 5, "maximum RPC retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	flags.Duration("poll-interval", 2*time.Second, "receipt poll interval")
	flags.Duration("confirm-timeout", 2*time.Minute, "how long to wait for a sent payout to be mined")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty ledger",
		RunE:  runInit,
	}
	root.AddCommand(initCmd)

	createTeamCmd := &cobra.Command{
		Use:   "create-team",
		Short: "Register a team and its members",
		RunE:  runCreateTeam,
	}
	createTeamCmd.Flags().String("caller", "", "calling address (must be the owner)")
	createTeamCmd.Flags().String("team", "", "team authority address")
	createTeamCmd.Flags().StringSlice("members", nil, "member addresses (comma-separated)")
	root.AddCommand(createTeamCmd)

	stakeCmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake value into the caller's team pool",
		RunE:  runStake,
	}
	addAmountFlags(stakeCmd, "member address")
	root.AddCommand(stakeCmd)

	postRewardsCmd := &cobra.Command{
		Use:   "post-rewards",
		Short: "Post a reward to the caller's pool",
		RunE:  runPostRewards,
	}
	addAmountFlags(postRewardsCmd, "team authority address")
	root.AddCommand(postRewardsCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw stake, including folded rewards",
		RunE:  runWithdraw,
	}
	addAmountFlags(withdrawCmd, "member address")
	root.AddCommand(withdrawCmd)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Print member or pool balances as JSON",
		RunE:  runQuery,
	}
	queryCmd.Flags().String("member", "", "member address")
	queryCmd.Flags().String("team", "", "team authority address")
	root.AddCommand(queryCmd)

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a JSONL file of ledger operations in order",
		RunE:  runApply,
	}
	applyCmd.Flags().String("in", "", "input operations JSONL")
	root.AddCommand(applyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addAmountFlags(cmd *cobra.Command, callerUsage string) {
	cmd.Flags().String("caller", "", callerUsage)
	cmd.Flags().String("amount", "", "amount in the smallest value unit (decimal or 0x hex)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
