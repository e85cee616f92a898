package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNextRoundDecision(t *testing.T) {
	cases := []struct {
		round       int
		client      bool
		server      bool
		wantRelease bool
		wantNext    int
	}{
		{1, false, false, false, 0},
		{1, true, false, true, 2},
		{1, false, true, true, 2},
		{2, true, true, true, 3},
		{2, false, false, false, 0},
		{3, true, true, false, 0},
		{0, true, true, false, 0},
	}
	for _, tc := range cases {
		release, next := NextRoundDecision(tc.round, tc.client, tc.server)
		if release != tc.wantRelease || next != tc.wantNext {
			t.Fatalf("round=%d client=%t server=%t: got (%t, %d) want (%t, %d)",
				tc.round, tc.client, tc.server, release, next, tc.wantRelease, tc.wantNext)
		}
	}
}

func TestRoundState(t *testing.T) {
	cases := []struct {
		round CountRound
		want  RoundState
	}{
		{CountRound{Status: RoundStatusActive, IsReleased: true}, RoundStateReleased},
		{CountRound{Status: RoundStatusActive, IsReleased: false}, RoundStateLocked},
		{CountRound{Status: RoundStatusDeleted, IsReleased: true}, RoundStateDeleted},
		{CountRound{Status: RoundStatusDeleted}, RoundStateDeleted},
	}
	for _, tc := range cases {
		if got := tc.round.RoundState(); got != tc.want {
			t.Fatalf("%+v: got %s want %s", tc.round, got, tc.want)
		}
	}
}

func TestItemsByProduct(t *testing.T) {
	items := []CountItem{
		{ProductCode: 30, ItemKey: "30-d"},
		{ProductCode: 10, ItemKey: "10-d"},
		{ProductCode: 10, ItemKey: "10-d", NeedsReview: true},
		{ProductCode: 10, ItemKey: "10-d-v2"},
		{ProductCode: 20, ItemKey: "20-d"},
	}
	got := itemsByProduct(items)
	if len(got) != 3 {
		t.Fatalf("expected 3 products; got %+v", got)
	}
	if got[0].ProductCode != 10 || got[1].ProductCode != 20 || got[2].ProductCode != 30 {
		t.Fatalf("not ordered by product code: %+v", got)
	}
	if len(got[0].ItemKeys) != 2 || got[0].ItemKeys[0] != "10-d" || got[0].ItemKeys[1] != "10-d-v2" {
		t.Fatalf("product 10 keys: %v", got[0].ItemKeys)
	}
	if !got[0].NeedsReview || got[1].NeedsReview {
		t.Fatalf("review flags: %+v", got)
	}
}

func TestSignedDifference(t *testing.T) {
	cases := []struct {
		kind          AuditMovementKind
		qty           decimal.Decimal
		wantFlagged   decimal.Decimal
		wantMagnitude decimal.Decimal
	}{
		{AuditMovementReduce, decimal.NewFromInt(4), decimal.NewFromInt(-4), decimal.NewFromInt(4)},
		{AuditMovementReduce, decimal.NewFromInt(-4), decimal.NewFromInt(-4), decimal.NewFromInt(4)},
		{AuditMovementInclude, decimal.NewFromInt(3), decimal.NewFromInt(3), decimal.NewFromInt(3)},
		{AuditMovementInclude, decimal.NewFromInt(-3), decimal.NewFromInt(3), decimal.NewFromInt(3)},
		{AuditMovementCorrect, decimal.NewFromInt(9), decimal.Zero, decimal.Zero},
	}
	for _, tc := range cases {
		flagged, magnitude := SignedDifference(tc.kind, tc.qty)
		if !flagged.Equal(tc.wantFlagged) || !magnitude.Equal(tc.wantMagnitude) {
			t.Fatalf("%s %s: got (%s, %s) want (%s, %s)", tc.kind, tc.qty, flagged, magnitude, tc.wantFlagged, tc.wantMagnitude)
		}
	}
}
