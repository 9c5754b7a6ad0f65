package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestCustodyRecordsPayouts(t *testing.T) {
	alice := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	c := NewCustody(nil, nil)

	amount := uint256.NewInt(100)
	if err := c.Transfer(context.Background(), alice, amount); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	amount.SetUint64(1)

	payouts := c.Payouts()
	if len(payouts) != 1 || payouts[0].To != alice || payouts[0].Amount.Uint64() != 100 {
		t.Fatalf("payouts mismatch: %+v", payouts)
	}
}

func TestCustodyRejects(t *testing.T) {
	unpayable := common.HexToAddress("0x000000000000000000000000000000000000beef")
	c := NewCustody([]common.Address{unpayable}, nil)

	err := c.Transfer(context.Background(), unpayable, uint256.NewInt(1))
	if !errors.Is(err, ErrRecipientRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(c.Payouts()) != 0 {
		t.Fatalf("rejected transfer must not be recorded")
	}
}
