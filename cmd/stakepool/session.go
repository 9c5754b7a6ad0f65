package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakepool/internal/chain"
	"stakepool/internal/config"
	"stakepool/internal/ledger"
	"stakepool/internal/model"
	"stakepool/internal/notify"
	"stakepool/internal/storage"
	"stakepool/internal/storage/postgres"
	"stakepool/internal/transfer"
)

var errNotInitialized = errors.New("ledger not initialized, run init first")

// session is one CLI invocation: the ledger restored from its store plus the
// collaborators it was built with.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	store  storage.Store
	pg     *postgres.Store
	chain  *chain.Client
	ledger *ledger.Ledger
	buffer *notify.Buffer
}

func openSession(ctx context.Context, cmd *cobra.Command, batchEvents bool) (*session, error) {
	s, err := newSession(ctx, cmd)
	if err != nil {
		return nil, err
	}

	snap, ok, err := s.store.Load(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		s.Close()
		return nil, errNotInitialized
	}

	transferer, err := s.transferer(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.ledger, err = ledger.Restore(snap, ledger.Config{Precision: s.cfg.Precision}, transferer, s.sinks(batchEvents), s.logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	s.logger.Debug("ledger restored", zap.String("owner", s.ledger.Owner().Hex()))
	return s, nil
}

func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pg = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.store = &storage.DBStore{Store: pg, Name: cfg.StateName}
	} else {
		if cfg.StateFile == "" {
			s.Close()
			return nil, fmt.Errorf("state file is required")
		}
		s.store = &storage.FileStore{Path: cfg.StateFile}
	}
	return s, nil
}

func (s *session) sinks(batchEvents bool) notify.Multi {
	sinks := notify.Multi{notify.LogSink{Logger: s.logger}}
	if s.cfg.EventsOut != "" {
		sinks = append(sinks, notify.NewJsonlSink(s.cfg.EventsOut))
	}
	if s.pg != nil {
		if batchEvents {
			s.buffer = &notify.Buffer{}
			sinks = append(sinks, s.buffer)
		} else {
			sinks = append(sinks, s.pg)
		}
	}
	return sinks
}

func (s *session) transferer(ctx context.Context) (ledger.Transferer, error) {
	if s.cfg.RPCURL == "" && s.cfg.PrivateKey == "" {
		reject, err := ledger.ParseAddresses(s.cfg.Reject)
		if err != nil {
			return nil, fmt.Errorf("parse reject list: %w", err)
		}
		return transfer.NewCustody(reject, s.logger), nil
	}
	if s.cfg.RPCURL == "" || s.cfg.PrivateKey == "" {
		return nil, fmt.Errorf("rpc and private-key must be set together")
	}

	client, err := chain.NewClient(ctx, s.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	s.chain = client

	t, err := chain.NewTransferer(ctx, client, chain.TransferConfig{
		PrivateKey: s.cfg.PrivateKey,
		Retry: chain.RetryPolicy{
			MaxRetries: s.cfg.MaxRetries,
			Backoff:    s.cfg.RetryBackoff,
		},
		PollInterval:   s.cfg.PollInterval,
		ConfirmTimeout: s.cfg.ConfirmTimeout,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("on-chain payouts enabled", zap.String("rpc", s.cfg.RPCURL), zap.String("from", t.From().Hex()))
	return t, nil
}

// commit saves the ledger if any call changed it, then flushes batched events.
// It outlives cancellation of ctx so paid-out debits are never dropped.
func (s *session) commit(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if s.ledger.Changed() {
		snap, err := s.ledger.Snapshot(ctx)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if s.buffer != nil {
		if err := s.pg.InsertEvents(ctx, s.buffer.Drain()); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	return nil
}

func (s *session) save(ctx context.Context, snap model.Snapshot) error {
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *session) Close() {
	if s.chain != nil {
		s.chain.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}
