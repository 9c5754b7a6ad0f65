package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"stakepool/internal/model"
)

func TestSnapshotRestoreKeepsPendingRewards(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mustDeposit(t, l, member11, 100)
	mustPost(t, l, team1, 1150)
	mustDeposit(t, l, member12, 101)
	mustPost(t, l, team1, 1351)

	ctx := context.Background()
	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored, err := Restore(snap, Config{Precision: DefaultPrecision}, nil, nil, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Owner() != owner {
		t.Fatalf("owner mismatch: %s", restored.Owner().Hex())
	}
	if restored.Changed() {
		t.Fatalf("restored ledger should be unchanged")
	}

	again, err := restored.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(snap, again) {
		t.Fatalf("snapshot mismatch: %+v != %+v", snap, again)
	}

	if got := balance(t, restored, member11); got != 2500 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if got := balance(t, restored, member12); got != 202 {
		t.Fatalf("balance mismatch: %d", got)
	}
	if !restored.Changed() {
		t.Fatalf("folding rewards should mark the ledger changed")
	}
}

func TestRestoreRejectsBrokenLog(t *testing.T) {
	snap := model.Snapshot{
		Owner: owner.Hex(),
		Teams: []model.Team{{Authority: team1.Hex(), Members: []string{member11.Hex(), member12.Hex()}}},
		Pools: []model.Pool{{
			Team:       team1.Hex(),
			TotalStake: "100",
			Events:     []model.RewardEvent{{Sequence: 2, Amount: "10", StakeSnapshot: "100"}},
		}},
	}
	if _, err := Restore(snap, Config{}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for out-of-order sequence")
	}

	snap.Pools[0].Events[0].Sequence = 1
	snap.Stakes = []model.Stake{{Member: member11.Hex(), Pool: team1.Hex(), Principal: "100", Checkpoint: 2}}
	if _, err := Restore(snap, Config{}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for checkpoint beyond log")
	}

	snap.Stakes[0].Checkpoint = 0
	snap.Stakes[0].Member = "not-an-address"
	if _, err := Restore(snap, Config{}, nil, nil, nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1150 ")
	if err != nil || v.Uint64() != 1150 {
		t.Fatalf("decimal parse mismatch: %v %v", v, err)
	}
	v, err = ParseAmount("0x10")
	if err != nil || v.Uint64() != 16 {
		t.Fatalf("hex parse mismatch: %v %v", v, err)
	}
	if _, err := ParseAmount("-1"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
