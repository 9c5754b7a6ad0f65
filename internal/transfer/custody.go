package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ErrRecipientRejected is returned for recipients that refuse payment.
var ErrRecipientRejected = errors.New("recipient rejected payment")

// Payout is a completed custody transfer.
type Payout struct {
	To     common.Address
	Amount *uint256.Int
}

// Custody keeps value in ledger custody and records payouts instead of
// moving funds. Recipients in the reject set refuse every payment.
type Custody struct {
	mu      sync.Mutex
	reject  map[common.Address]struct{}
	payouts []Payout
	logger  *zap.Logger
}

func NewCustody(reject []common.Address, logger *zap.Logger) *Custody {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[common.Address]struct{}, len(reject))
	for _, addr := range reject {
		set[addr] = struct{}{}
	}
	return &Custody{reject: set, logger: logger}
}

func (c *Custody) Transfer(_ context.Context, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("amount is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.reject[to]; ok {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to.Hex())
	}
	c.payouts = append(c.payouts, Payout{To: to, Amount: amount.Clone()})
	c.logger.Info("payout recorded", zap.String("to", to.Hex()), zap.String("amount", amount.Dec()))
	return nil
}

// Payouts returns the recorded payouts in order.
func (c *Custody) Payouts() []Payout {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Payout, len(c.payouts))
	copy(out, c.payouts)
	return out
}
