package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPendingReviewItemRounds(t *testing.T) {
	item := &PendingReviewItem{
		SnapshotStock: decimal.NewFromInt(10),
		History: map[int]*RoundHistory{
			3: {Total: decimal.NewFromInt(7), Logs: []RoundHistoryEntry{{UserId: 2, ItemId: 5, Qty: decimal.NewFromInt(7)}}},
			1: {Total: decimal.NewFromInt(12), Logs: []RoundHistoryEntry{{UserId: 1, ItemId: 5, Qty: decimal.NewFromInt(12)}}},
			2: {Total: decimal.Zero, Logs: []RoundHistoryEntry{}},
		},
		Differences: map[int]decimal.Decimal{
			1: decimal.NewFromInt(2),
			2: decimal.NewFromInt(-10),
			3: decimal.NewFromInt(-3),
		},
	}

	rounds := item.Rounds()
	if len(rounds) != 3 {
		t.Fatalf("got %d rounds", len(rounds))
	}
	wantDiff := []int64{2, -10, -3}
	for i, r := range rounds {
		if r.RoundNumber != i+1 {
			t.Fatalf("position %d holds round %d", i, r.RoundNumber)
		}
		if !r.Difference.Equal(decimal.NewFromInt(wantDiff[i])) {
			t.Fatalf("round %d difference: got %s", r.RoundNumber, r.Difference)
		}
	}
	if len(rounds[0].Logs) != 1 || rounds[0].Logs[0].UserId != 1 || !rounds[2].Total.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected rounds: %+v", rounds)
	}
}
